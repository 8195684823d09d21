// Package analytics aggregates spending for budgets and dashboard summaries
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// TrendMonths is the number of months in the spending trend.
	TrendMonths = 6

	// UnknownCategory names spending whose category cannot be resolved.
	UnknownCategory = "Unknown"

	budgetWorkers = 4
)

var hundred = decimal.NewFromInt(100)

// TransactionSource lists a user's transactions
type TransactionSource interface {
	List(ctx context.Context, userID uuid.UUID, filter storage.TransactionFilter) ([]models.Transaction, error)
}

// BudgetSource lists a user's budgets, newest end date first
type BudgetSource interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.Budget, error)
}

// Service computes spending aggregates
type Service struct {
	transactions TransactionSource
	budgets      BudgetSource
	now          func() time.Time
}

// NewService creates a new analytics service
func NewService(transactions TransactionSource, budgets BudgetSource) *Service {
	return &Service{
		transactions: transactions,
		budgets:      budgets,
		now:          time.Now,
	}
}

// BudgetProgress returns every budget of the user with the spending that
// falls inside its date range. Only transactions in an expense category
// count toward a budget.
func (s *Service) BudgetProgress(ctx context.Context, userID uuid.UUID) ([]models.BudgetProgress, error) {
	budgets, err := s.budgets.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}

	progress := make([]models.BudgetProgress, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(budgetWorkers)

	for i, b := range budgets {
		g.Go(func() error {
			from, before := b.Range()
			spent, err := s.budgetSpending(gctx, userID, from, before)
			if err != nil {
				return err
			}
			progress[i] = newProgress(b, spent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return progress, nil
}

// MonthlySpending returns spending for the trailing months up to and
// including the current one, oldest first. Months without spending are zero.
func (s *Service) MonthlySpending(ctx context.Context, userID uuid.UUID) ([]models.MonthlySpending, error) {
	current := monthStart(s.now())
	first := current.AddDate(0, -(TrendMonths - 1), 0)

	txs, err := s.transactions.List(ctx, userID, storage.TransactionFilter{From: first, Before: current.AddDate(0, 1, 0)})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	totals := make(map[string]decimal.Decimal, TrendMonths)
	for _, tx := range txs {
		if !spendingOf(&tx) {
			continue
		}
		key := tx.Date.UTC().Format("2006-01")
		totals[key] = totals[key].Add(tx.Amount)
	}

	trend := make([]models.MonthlySpending, 0, TrendMonths)
	for i := 0; i < TrendMonths; i++ {
		m := first.AddDate(0, i, 0)
		key := m.Format("2006-01")
		trend = append(trend, models.MonthlySpending{
			Month:    key,
			Label:    m.Format("Jan"),
			Spending: totals[key],
		})
	}
	return trend, nil
}

// CategorySpending returns the current month's spending per category,
// largest first. Categories with nothing spent are left out.
func (s *Service) CategorySpending(ctx context.Context, userID uuid.UUID) ([]models.CategorySpending, error) {
	from := monthStart(s.now())
	before := from.AddDate(0, 1, 0)

	txs, err := s.transactions.List(ctx, userID, storage.TransactionFilter{From: from, Before: before})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	type group struct {
		id    *uuid.UUID
		name  string
		total decimal.Decimal
	}
	groups := make(map[uuid.UUID]*group)
	for _, tx := range txs {
		if !spendingOf(&tx) {
			continue
		}
		var key uuid.UUID // uuid.Nil collects uncategorized spending
		if tx.CategoryID != nil {
			key = *tx.CategoryID
		}
		g, ok := groups[key]
		if !ok {
			g = &group{id: tx.CategoryID, name: UnknownCategory}
			if tx.Category != nil && tx.Category.Name != "" {
				g.name = tx.Category.Name
			}
			groups[key] = g
		}
		g.total = g.total.Add(tx.Amount)
	}

	result := make([]models.CategorySpending, 0, len(groups))
	for _, g := range groups {
		if !g.total.IsPositive() {
			continue
		}
		result = append(result, models.CategorySpending{
			CategoryID:   g.id,
			CategoryName: g.name,
			TotalSpent:   g.total,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if c := result[i].TotalSpent.Cmp(result[j].TotalSpent); c != 0 {
			return c > 0
		}
		return result[i].CategoryName < result[j].CategoryName
	})
	return result, nil
}

func (s *Service) budgetSpending(ctx context.Context, userID uuid.UUID, from, before time.Time) (decimal.Decimal, error) {
	txs, err := s.transactions.List(ctx, userID, storage.TransactionFilter{From: from, Before: before})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list transactions: %w", err)
	}
	total := decimal.Zero
	for _, tx := range txs {
		if inExpenseCategory(&tx) {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func newProgress(b models.Budget, spent decimal.Decimal) models.BudgetProgress {
	var pct int64
	switch {
	case b.TotalAmount.IsPositive():
		pct = spent.Mul(hundred).Div(b.TotalAmount).Round(0).IntPart()
		pct = min(pct, 100)
	case spent.IsPositive():
		pct = 100
	}
	return models.BudgetProgress{
		Budget:             b,
		TotalSpent:         spent,
		ProgressPercentage: pct,
		IsOverspent:        spent.GreaterThan(b.TotalAmount),
	}
}

func spendingOf(tx *models.Transaction) bool {
	var categoryType *models.CategoryType
	if tx.Category != nil {
		categoryType = &tx.Category.Type
	}
	return models.IsSpending(tx.Type, categoryType)
}

func inExpenseCategory(tx *models.Transaction) bool {
	return tx.Category != nil && tx.Category.Type == models.CategoryExpense
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
