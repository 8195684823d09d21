package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/findosh/fintrack/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transactionSelect = `
	SELECT t.id, t.user_id, t.amount, t.type, t.category_id, t.note, t.date, t.created_at, t.updated_at,
	       c.name, c.type
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id
`

// TransactionFilter narrows a transaction listing. Zero values disable a bound.
type TransactionFilter struct {
	From       time.Time  // inclusive
	Before     time.Time  // exclusive
	CategoryID *uuid.UUID // exact match
}

// TransactionRepository provides transaction data access
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new transaction
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, category_id, note, date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(),
		t.UserID.String(),
		t.Amount.String(),
		string(t.Type),
		nullUUID(t.CategoryID),
		nullString(t.Note),
		formatTime(t.Date),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", classify(err))
	}
	return nil
}

// Get retrieves a transaction owned by userID, with its category joined
func (r *TransactionRepository) Get(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	row := r.db.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ? AND t.user_id = ?`, id.String(), userID.String())
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns the user's transactions matching filter, newest first
func (r *TransactionRepository) List(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]models.Transaction, error) {
	where := []string{"t.user_id = ?"}
	args := []any{userID.String()}

	if !filter.From.IsZero() {
		where = append(where, "t.date >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.Before.IsZero() {
		where = append(where, "t.date < ?")
		args = append(args, formatTime(filter.Before))
	}
	if filter.CategoryID != nil {
		where = append(where, "t.category_id = ?")
		args = append(args, filter.CategoryID.String())
	}

	query := transactionSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY t.date DESC, t.created_at DESC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

// Update overwrites the mutable fields of a transaction
func (r *TransactionRepository) Update(ctx context.Context, t *models.Transaction) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET amount = ?, type = ?, category_id = ?, note = ?, date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Amount.String(),
		string(t.Type),
		nullUUID(t.CategoryID),
		nullString(t.Note),
		formatTime(t.Date),
		formatTime(t.UpdatedAt),
		t.ID.String(),
		t.UserID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", classify(err))
	}
	return affectedOrNotFound(res)
}

// Delete removes a transaction
func (r *TransactionRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return affectedOrNotFound(res)
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var id, userID, amount, typ, date, createdAt, updatedAt string
	var categoryID, note, categoryName, categoryType sql.NullString

	if err := row.Scan(&id, &userID, &amount, &typ, &categoryID, &note, &date, &createdAt, &updatedAt,
		&categoryName, &categoryType); err != nil {
		return nil, err
	}

	var err error
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid transaction id %q: %w", id, err)
	}
	if t.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	t.Type = models.TransactionType(typ)
	t.Note = note.String
	if t.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if categoryID.Valid {
		cid, err := uuid.Parse(categoryID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid category id %q: %w", categoryID.String, err)
		}
		t.CategoryID = &cid
		if categoryType.Valid {
			t.Category = &models.CategoryRef{
				ID:   cid,
				Name: categoryName.String,
				Type: models.CategoryType(categoryType.String),
			}
		}
	}
	return &t, nil
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
