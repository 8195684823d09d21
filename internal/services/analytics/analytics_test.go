package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeTransactions struct {
	txs []models.Transaction
	err error
}

func (f *fakeTransactions) List(_ context.Context, userID uuid.UUID, filter storage.TransactionFilter) ([]models.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Transaction
	for _, tx := range f.txs {
		if tx.UserID != userID {
			continue
		}
		if !filter.From.IsZero() && tx.Date.Before(filter.From) {
			continue
		}
		if !filter.Before.IsZero() && !tx.Date.Before(filter.Before) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

type fakeBudgets struct {
	budgets []models.Budget
}

func (f *fakeBudgets) List(_ context.Context, userID uuid.UUID) ([]models.Budget, error) {
	var out []models.Budget
	for _, b := range f.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

var (
	testUser  = uuid.New()
	groceries = &models.CategoryRef{ID: uuid.New(), Name: "Groceries", Type: models.CategoryExpense}
	rent      = &models.CategoryRef{ID: uuid.New(), Name: "Rent", Type: models.CategoryExpense}
	salary    = &models.CategoryRef{ID: uuid.New(), Name: "Salary", Type: models.CategoryIncome}
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tx(amount string, typ models.TransactionType, cat *models.CategoryRef, date time.Time) models.Transaction {
	t := *models.NewTransaction(testUser, decimal.RequireFromString(amount), typ, date)
	if cat != nil {
		t.CategoryID = &cat.ID
		t.Category = cat
	}
	return t
}

func newTestService(txs []models.Transaction, budgets []models.Budget, now time.Time) *Service {
	svc := NewService(&fakeTransactions{txs: txs}, &fakeBudgets{budgets: budgets})
	svc.now = func() time.Time { return now }
	return svc
}

func TestService_BudgetProgress(t *testing.T) {
	june := *models.NewBudget(testUser, "June", decimal.NewFromInt(500), day("2024-06-01"), day("2024-06-30"))
	july := *models.NewBudget(testUser, "July", decimal.NewFromInt(1000), day("2024-07-01"), day("2024-07-31"))

	txs := []models.Transaction{
		tx("500", models.TransactionExpense, groceries, day("2024-06-01")),
		// Last moment of the end day is still inside the budget.
		tx("250", models.TransactionExpense, rent, day("2024-06-30").Add(23*time.Hour+59*time.Minute)),
		tx("99", models.TransactionExpense, rent, day("2024-07-01")),
		tx("4000", models.TransactionIncome, salary, day("2024-06-15")),
		// Uncategorized spending never counts toward a budget.
		tx("10.5", models.TransactionExpense, nil, day("2024-07-10")),
		// Category type wins over transaction type.
		tx("20", models.TransactionIncome, groceries, day("2024-07-11")),
	}

	svc := newTestService(txs, []models.Budget{july, june}, day("2024-07-15"))
	progress, err := svc.BudgetProgress(context.Background(), testUser)
	if err != nil {
		t.Fatalf("BudgetProgress() error: %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("got %d budgets, want 2", len(progress))
	}
	if progress[0].Name != "July" || progress[1].Name != "June" {
		t.Errorf("order = %s, %s; want budget source order", progress[0].Name, progress[1].Name)
	}

	jul := progress[0]
	if !jul.TotalSpent.Equal(decimal.NewFromInt(119)) {
		t.Errorf("July spent = %s, want 119", jul.TotalSpent)
	}
	if jul.ProgressPercentage != 12 || jul.IsOverspent {
		t.Errorf("July progress = %d%%, overspent=%v", jul.ProgressPercentage, jul.IsOverspent)
	}

	jun := progress[1]
	if !jun.TotalSpent.Equal(decimal.NewFromInt(750)) {
		t.Errorf("June spent = %s, want 750", jun.TotalSpent)
	}
	if jun.ProgressPercentage != 100 {
		t.Errorf("June progress = %d, want capped 100", jun.ProgressPercentage)
	}
	if !jun.IsOverspent {
		t.Error("June should be overspent")
	}
}

func TestService_BudgetProgressCountsOnlyExpenseCategories(t *testing.T) {
	march := *models.NewBudget(testUser, "March", decimal.NewFromInt(500), day("2024-03-01"), day("2024-03-31"))
	txs := []models.Transaction{
		tx("100", models.TransactionExpense, groceries, day("2024-03-05")),
		tx("400", models.TransactionExpense, nil, day("2024-03-06")),
		tx("50", models.TransactionIncome, groceries, day("2024-03-07")),
		tx("70", models.TransactionExpense, salary, day("2024-03-08")),
	}

	svc := newTestService(txs, []models.Budget{march}, day("2024-03-20"))
	progress, err := svc.BudgetProgress(context.Background(), testUser)
	if err != nil {
		t.Fatalf("BudgetProgress() error: %v", err)
	}
	if len(progress) != 1 {
		t.Fatalf("got %d budgets, want 1", len(progress))
	}

	got := progress[0]
	if !got.TotalSpent.Equal(decimal.NewFromInt(150)) {
		t.Errorf("spent = %s, want 150", got.TotalSpent)
	}
	if got.ProgressPercentage != 30 || got.IsOverspent {
		t.Errorf("progress = %d%%, overspent=%v; want 30%%, false", got.ProgressPercentage, got.IsOverspent)
	}
}

func TestNewProgress(t *testing.T) {
	tests := []struct {
		name     string
		total    string
		spent    string
		wantPct  int64
		wantOver bool
	}{
		{"nothing spent", "500", "0", 0, false},
		{"rounds half up", "200", "1", 1, false},
		{"rounds down", "300", "1", 0, false},
		{"exactly at limit", "500", "500", 100, false},
		{"over", "500", "750", 100, true},
		{"zero budget unused", "0", "0", 0, false},
		{"zero budget used", "0", "5", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := models.Budget{TotalAmount: decimal.RequireFromString(tt.total)}
			p := newProgress(b, decimal.RequireFromString(tt.spent))
			if p.ProgressPercentage != tt.wantPct || p.IsOverspent != tt.wantOver {
				t.Errorf("got %d%% overspent=%v, want %d%% overspent=%v",
					p.ProgressPercentage, p.IsOverspent, tt.wantPct, tt.wantOver)
			}
		})
	}
}

func TestService_MonthlySpending(t *testing.T) {
	txs := []models.Transaction{
		tx("100", models.TransactionExpense, groceries, day("2024-03-31")),
		tx("40", models.TransactionExpense, rent, day("2024-03-01")),
		tx("25.25", models.TransactionExpense, nil, day("2024-06-20")),
		tx("999", models.TransactionIncome, salary, day("2024-06-01")),
		// Outside the window on both sides.
		tx("7", models.TransactionExpense, groceries, day("2023-12-31")),
		tx("8", models.TransactionExpense, groceries, day("2024-07-01")),
	}

	svc := newTestService(txs, nil, time.Date(2024, 6, 30, 23, 0, 0, 0, time.UTC))
	trend, err := svc.MonthlySpending(context.Background(), testUser)
	if err != nil {
		t.Fatalf("MonthlySpending() error: %v", err)
	}

	want := []struct {
		month, label, spending string
	}{
		{"2024-01", "Jan", "0"},
		{"2024-02", "Feb", "0"},
		{"2024-03", "Mar", "140"},
		{"2024-04", "Apr", "0"},
		{"2024-05", "May", "0"},
		{"2024-06", "Jun", "25.25"},
	}
	if len(trend) != len(want) {
		t.Fatalf("got %d months, want %d", len(trend), len(want))
	}
	for i, w := range want {
		got := trend[i]
		if got.Month != w.month || got.Label != w.label || !got.Spending.Equal(decimal.RequireFromString(w.spending)) {
			t.Errorf("month %d = %+v, want %s %s %s", i, got, w.month, w.label, w.spending)
		}
	}
}

func TestService_MonthlySpendingAcrossYearBoundary(t *testing.T) {
	svc := newTestService(nil, nil, day("2025-02-10"))
	trend, err := svc.MonthlySpending(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if trend[0].Month != "2024-09" || trend[5].Month != "2025-02" {
		t.Errorf("range = %s..%s, want 2024-09..2025-02", trend[0].Month, trend[5].Month)
	}
	for _, m := range trend {
		if !m.Spending.IsZero() {
			t.Errorf("%s spending = %s, want 0", m.Month, m.Spending)
		}
	}
}

func TestService_CategorySpending(t *testing.T) {
	orphanID := uuid.New()
	orphan := tx("15", models.TransactionExpense, nil, day("2024-06-04"))
	orphan.CategoryID = &orphanID

	txs := []models.Transaction{
		tx("30", models.TransactionExpense, groceries, day("2024-06-02")),
		tx("20", models.TransactionExpense, groceries, day("2024-06-03")),
		tx("50", models.TransactionExpense, rent, day("2024-06-01")),
		tx("3000", models.TransactionIncome, salary, day("2024-06-01")),
		tx("0", models.TransactionExpense, nil, day("2024-06-05")),
		tx("500", models.TransactionExpense, rent, day("2024-05-31")),
		orphan,
	}

	svc := newTestService(txs, nil, day("2024-06-15"))
	got, err := svc.CategorySpending(context.Background(), testUser)
	if err != nil {
		t.Fatalf("CategorySpending() error: %v", err)
	}

	want := []struct {
		name  string
		total string
	}{
		{"Groceries", "50"},
		{"Rent", "50"},
		{UnknownCategory, "15"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d categories %+v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		if got[i].CategoryName != w.name || !got[i].TotalSpent.Equal(decimal.RequireFromString(w.total)) {
			t.Errorf("entry %d = %s %s, want %s %s", i, got[i].CategoryName, got[i].TotalSpent, w.name, w.total)
		}
	}
	if got[0].CategoryID == nil || *got[0].CategoryID != groceries.ID {
		t.Error("category id should be carried through")
	}
}

func TestService_SourceErrors(t *testing.T) {
	boom := errors.New("db down")
	budget := *models.NewBudget(testUser, "B", decimal.NewFromInt(1), day("2024-06-01"), day("2024-06-30"))
	svc := NewService(&fakeTransactions{err: boom}, &fakeBudgets{budgets: []models.Budget{budget}})

	if _, err := svc.BudgetProgress(context.Background(), testUser); !errors.Is(err, boom) {
		t.Errorf("BudgetProgress() error = %v", err)
	}
	if _, err := svc.MonthlySpending(context.Background(), testUser); !errors.Is(err, boom) {
		t.Errorf("MonthlySpending() error = %v", err)
	}
	if _, err := svc.CategorySpending(context.Background(), testUser); !errors.Is(err, boom) {
		t.Errorf("CategorySpending() error = %v", err)
	}
}
