package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/findosh/fintrack/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const budgetColumns = `id, user_id, name, total_amount, start_date, end_date, created_at`

// BudgetRepository provides budget data access
type BudgetRepository struct {
	db *DB
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db *DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Create inserts a new budget
func (r *BudgetRepository) Create(ctx context.Context, b *models.Budget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(),
		b.UserID.String(),
		b.Name,
		b.TotalAmount.String(),
		formatTime(b.StartDate),
		formatTime(b.EndDate),
		formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create budget: %w", classify(err))
	}
	return nil
}

// Get retrieves a budget owned by userID
func (r *BudgetRepository) Get(ctx context.Context, userID, id uuid.UUID) (*models.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// List returns the user's budgets, latest end date first
func (r *BudgetRepository) List(ctx context.Context, userID uuid.UUID) ([]models.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY end_date DESC, created_at DESC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	budgets := []models.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

// Update overwrites a budget's name, amount and dates
func (r *BudgetRepository) Update(ctx context.Context, b *models.Budget) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets SET name = ?, total_amount = ?, start_date = ?, end_date = ?
		WHERE id = ? AND user_id = ?`,
		b.Name,
		b.TotalAmount.String(),
		formatTime(b.StartDate),
		formatTime(b.EndDate),
		b.ID.String(),
		b.UserID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}
	return affectedOrNotFound(res)
}

// Delete removes a budget
func (r *BudgetRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	return affectedOrNotFound(res)
}

func scanBudget(row rowScanner) (*models.Budget, error) {
	var b models.Budget
	var id, userID, total, start, end, createdAt string
	if err := row.Scan(&id, &userID, &b.Name, &total, &start, &end, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid budget id %q: %w", id, err)
	}
	if b.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	if b.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid budget amount %q: %w", total, err)
	}
	if b.StartDate, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.EndDate, err = parseTime(end); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}
