package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/findosh/fintrack/internal/middleware"
	"github.com/findosh/fintrack/internal/models"
	"github.com/shopspring/decimal"
)

type budgetRequest struct {
	Name        *string          `json:"name"`
	TotalAmount *decimal.Decimal `json:"totalAmount"`
	StartDate   *string          `json:"startDate"`
	EndDate     *string          `json:"endDate"`
}

func (req *budgetRequest) apply(b *models.Budget) error {
	var v ValidationError

	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	switch {
	case b.Name == "":
		v.add("name", "is required")
	case len(b.Name) > maxNameLen:
		v.add("name", "must be at most 100 characters")
	}

	if req.TotalAmount != nil {
		b.TotalAmount = *req.TotalAmount
	}
	if !b.TotalAmount.IsPositive() {
		v.add("totalAmount", "must be greater than 0")
	}

	parseDay := func(field string, raw *string, dst *time.Time) {
		if raw == nil {
			return
		}
		d, err := models.ParseDate(*raw)
		if err != nil {
			v.add(field, "must be YYYY-MM-DD or RFC 3339")
			return
		}
		*dst = models.StartOfDay(d)
	}
	parseDay("startDate", req.StartDate, &b.StartDate)
	parseDay("endDate", req.EndDate, &b.EndDate)

	if b.StartDate.IsZero() {
		v.add("startDate", "is required")
	}
	if b.EndDate.IsZero() {
		v.add("endDate", "is required")
	}
	if !b.StartDate.IsZero() && !b.EndDate.IsZero() && b.EndDate.Before(b.StartDate) {
		v.add("endDate", "must not be before startDate")
	}
	return v.err()
}

// ListBudgets returns the caller's budgets, latest end date first
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	budgets, err := h.budgetRepo.List(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

// CreateBudget adds a budget
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)

	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	b := models.NewBudget(id.UserID, "", decimal.Zero, time.Time{}, time.Time{})
	if err := req.apply(b); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.budgetRepo.Create(r.Context(), b); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// UpdateBudget changes the fields present in the request
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	budgetID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.budgetRepo.Get(r.Context(), id.UserID, budgetID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.apply(b); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.budgetRepo.Update(r.Context(), b); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteBudget removes a budget
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	budgetID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.budgetRepo.Delete(r.Context(), id.UserID, budgetID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
