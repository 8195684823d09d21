package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Budget caps spending over a date range
type Budget struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	Name        string          `json:"name"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	StartDate   time.Time       `json:"startDate"`
	EndDate     time.Time       `json:"endDate"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewBudget creates a budget with generated ID and timestamp
func NewBudget(userID uuid.UUID, name string, total decimal.Decimal, start, end time.Time) *Budget {
	return &Budget{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		TotalAmount: total,
		StartDate:   start.UTC(),
		EndDate:     end.UTC(),
		CreatedAt:   time.Now().UTC(),
	}
}

// Range returns the half-open interval [start day 00:00, end day + 1) the
// budget covers. Both bounds are whole UTC days.
func (b *Budget) Range() (from, to time.Time) {
	return StartOfDay(b.StartDate), StartOfDay(b.EndDate).AddDate(0, 0, 1)
}

// BudgetProgress is a budget together with its spending so far
type BudgetProgress struct {
	Budget
	TotalSpent         decimal.Decimal `json:"totalSpent"`
	ProgressPercentage int64           `json:"progressPercentage"`
	IsOverspent        bool            `json:"isOverspent"`
}
