package handlers

import (
	"net/http"
	"strings"

	"github.com/findosh/fintrack/internal/middleware"
	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxNameLen = 100

type categoryRequest struct {
	Name *string `json:"name"`
	Type *string `json:"type"`
}

// apply validates the request and copies it onto c. Absent fields keep
// their current value.
func (req *categoryRequest) apply(c *models.Category) error {
	var v ValidationError
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	switch {
	case c.Name == "":
		v.add("name", "is required")
	case len(c.Name) > maxNameLen:
		v.add("name", "must be at most 100 characters")
	}
	if req.Type != nil {
		c.Type = models.CategoryType(strings.ToLower(strings.TrimSpace(*req.Type)))
	}
	if !c.Type.Valid() {
		v.add("type", "must be income or expense")
	}
	return v.err()
}

// ListCategories returns the caller's categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	categories, err := h.categoryRepo.List(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// CreateCategory adds a category
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)

	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c := models.NewCategory(id.UserID, "", "")
	if err := req.apply(c); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.categoryRepo.Create(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCategory renames or retypes a category
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	categoryID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.categoryRepo.Get(r.Context(), id.UserID, categoryID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.apply(c); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.categoryRepo.Update(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCategory removes a category that no transaction uses
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	categoryID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.categoryRepo.Delete(r.Context(), id.UserID, categoryID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} URL parameter. Malformed ids are reported as not
// found.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, storage.ErrNotFound
	}
	return id, nil
}
