package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/findosh/fintrack/internal/middleware"
	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxNoteLen = 500

var errBadCategoryID = errors.New("malformed category id")

type transactionRequest struct {
	Amount     *decimal.Decimal `json:"amount"`
	Type       *string          `json:"type"`
	Note       *string          `json:"note"`
	CategoryID json.RawMessage  `json:"categoryId"` // absent keeps, null clears
	Date       *string          `json:"date"`
}

// applyTransaction validates the request against the caller's categories and copies
// it onto t.
func (h *Handler) applyTransaction(ctx context.Context, req *transactionRequest, t *models.Transaction) error {
	var v ValidationError

	if req.Amount != nil {
		t.Amount = *req.Amount
	}
	if !t.Amount.IsPositive() {
		v.add("amount", "must be greater than 0")
	}

	if req.Type != nil {
		t.Type = models.TransactionType(strings.ToUpper(strings.TrimSpace(*req.Type)))
	}
	if !t.Type.Valid() {
		v.add("type", "must be INCOME or EXPENSE")
	}

	if req.Note != nil {
		t.Note = strings.TrimSpace(*req.Note)
		if len(t.Note) > maxNoteLen {
			v.add("note", "must be at most 500 characters")
		}
	}

	if req.Date != nil && *req.Date != "" {
		d, err := models.ParseDate(*req.Date)
		if err != nil {
			v.add("date", "must be YYYY-MM-DD or RFC 3339")
		} else {
			t.Date = d
		}
	}

	if len(req.CategoryID) > 0 {
		categoryID, err := h.resolveCategory(ctx, t.UserID, req.CategoryID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			v.add("categoryId", "unknown category")
		case errors.Is(err, errBadCategoryID):
			v.add("categoryId", "must be a category id or null")
		case err != nil:
			return err
		default:
			t.CategoryID = categoryID
		}
	}

	return v.err()
}

func (h *Handler) resolveCategory(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (*uuid.UUID, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errBadCategoryID
	}
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, errBadCategoryID
	}
	if _, err := h.categoryRepo.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return &id, nil
}

// ListTransactions returns the caller's transactions, newest first,
// optionally limited to an inclusive day range and a category.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	q := r.URL.Query()

	var v ValidationError
	var filter storage.TransactionFilter
	if s := q.Get("startDate"); s != "" {
		if d, err := models.ParseDate(s); err != nil {
			v.add("startDate", "must be YYYY-MM-DD or RFC 3339")
		} else {
			filter.From = models.StartOfDay(d)
		}
	}
	if s := q.Get("endDate"); s != "" {
		if d, err := models.ParseDate(s); err != nil {
			v.add("endDate", "must be YYYY-MM-DD or RFC 3339")
		} else {
			filter.Before = models.StartOfDay(d).AddDate(0, 0, 1)
		}
	}
	if s := q.Get("categoryId"); s != "" {
		if cid, err := uuid.Parse(s); err != nil {
			v.add("categoryId", "must be a category id")
		} else {
			filter.CategoryID = &cid
		}
	}
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	txs, err := h.transactionRepo.List(r.Context(), id.UserID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// CreateTransaction records income or an expense
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	t := models.NewTransaction(id.UserID, decimal.Zero, "", time.Now())
	if err := h.applyTransaction(r.Context(), &req, t); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.transactionRepo.Create(r.Context(), t); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeTransaction(w, r, http.StatusCreated, t.UserID, t.ID)
}

// UpdateTransaction changes the fields present in the request
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	txID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	t, err := h.transactionRepo.Get(r.Context(), id.UserID, txID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.applyTransaction(r.Context(), &req, t); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.transactionRepo.Update(r.Context(), t); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeTransaction(w, r, http.StatusOK, t.UserID, t.ID)
}

// DeleteTransaction removes a transaction
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	txID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.transactionRepo.Delete(r.Context(), id.UserID, txID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeTransaction reloads a transaction so the response carries its
// joined category.
func (h *Handler) writeTransaction(w http.ResponseWriter, r *http.Request, status int, userID, txID uuid.UUID) {
	t, err := h.transactionRepo.Get(r.Context(), userID, txID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, t)
}
