package handlers

import (
	"net/http"

	"github.com/findosh/fintrack/internal/middleware"
)

// BudgetProgress returns each budget with its spending so far
func (h *Handler) BudgetProgress(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	progress, err := h.analyticsService.BudgetProgress(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// MonthlySpending returns the six-month spending trend
func (h *Handler) MonthlySpending(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	trend, err := h.analyticsService.MonthlySpending(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// MonthlyCategorySpending returns this month's spending per category
func (h *Handler) MonthlyCategorySpending(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	spending, err := h.analyticsService.CategorySpending(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spending)
}
