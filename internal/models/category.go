package models

import (
	"time"

	"github.com/google/uuid"
)

// CategoryType classifies a category as income or expense
type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

// Valid reports whether t is a known category type.
func (t CategoryType) Valid() bool {
	return t == CategoryIncome || t == CategoryExpense
}

// Category groups a user's transactions
type Category struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"userId"`
	Name      string       `json:"name"`
	Type      CategoryType `json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
}

// NewCategory creates a category with generated ID and timestamp
func NewCategory(userID uuid.UUID, name string, typ CategoryType) *Category {
	return &Category{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
}
