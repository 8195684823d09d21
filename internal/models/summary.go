package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonthlySpending is one month of the spending trend
type MonthlySpending struct {
	Month    string          `json:"month"` // YYYY-MM
	Label    string          `json:"label"` // Jan, Feb, ...
	Spending decimal.Decimal `json:"spending"`
}

// CategorySpending is the spending total for one category
type CategorySpending struct {
	CategoryID   *uuid.UUID      `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	TotalSpent   decimal.Decimal `json:"totalSpent"`
}
