package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a money movement
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// Transaction is a single income or expense record
type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
	Type       TransactionType `json:"type"`
	CategoryID *uuid.UUID      `json:"categoryId"`
	Note       string          `json:"note,omitempty"`
	Date       time.Time       `json:"date"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`

	// Populated by listings that join the category.
	Category *CategoryRef `json:"category,omitempty"`
}

// CategoryRef is the category summary embedded in transaction listings
type CategoryRef struct {
	ID   uuid.UUID    `json:"id"`
	Name string       `json:"name"`
	Type CategoryType `json:"type"`
}

// NewTransaction creates a transaction with generated ID and timestamps
func NewTransaction(userID uuid.UUID, amount decimal.Decimal, typ TransactionType, date time.Time) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Type:      typ,
		Date:      date.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsSpending reports whether a transaction counts toward spending totals.
// The category type wins when there is one; uncategorized transactions
// fall back to their own type.
func IsSpending(txType TransactionType, categoryType *CategoryType) bool {
	if categoryType != nil {
		return *categoryType == CategoryExpense
	}
	return txType == TransactionExpense
}

// ParseDate accepts either a calendar day (YYYY-MM-DD, taken as UTC
// midnight) or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
