package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/findosh/fintrack/internal/models"
	"github.com/google/uuid"
)

// CategoryRepository provides category data access
type CategoryRepository struct {
	db *DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a new category
func (r *CategoryRepository) Create(ctx context.Context, c *models.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), c.UserID.String(), c.Name, string(c.Type), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", classify(err))
	}
	return nil
}

// Get retrieves a category owned by userID
func (r *CategoryRepository) Get(ctx context.Context, userID, id uuid.UUID) (*models.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, created_at FROM categories WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns the user's categories ordered by name
func (r *CategoryRepository) List(ctx context.Context, userID uuid.UUID) ([]models.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, created_at FROM categories WHERE user_id = ? ORDER BY name ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// Update changes a category's name and type
func (r *CategoryRepository) Update(ctx context.Context, c *models.Category) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ? WHERE id = ? AND user_id = ?`,
		c.Name, string(c.Type), c.ID.String(), c.UserID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", classify(err))
	}
	return affectedOrNotFound(res)
}

// Delete removes a category. It refuses with ErrReferenced while any
// transaction still points at it; the foreign key enforces the same rule.
func (r *CategoryRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var owned int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE id = ? AND user_id = ?`, id.String(), userID.String(),
	).Scan(&owned); err != nil {
		return fmt.Errorf("failed to look up category: %w", err)
	}
	if owned == 0 {
		return ErrNotFound
	}

	var linked int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id.String(),
	).Scan(&linked); err != nil {
		return fmt.Errorf("failed to count linked transactions: %w", err)
	}
	if linked > 0 {
		return ErrReferenced
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", classify(err))
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	return tx.Commit()
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	var id, userID, typ, createdAt string
	if err := row.Scan(&id, &userID, &c.Name, &typ, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid category id %q: %w", id, err)
	}
	if c.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	c.Type = models.CategoryType(typ)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}
