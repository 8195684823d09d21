package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/findosh/fintrack/internal/log"
	"github.com/findosh/fintrack/internal/services/auth"
	"github.com/findosh/fintrack/internal/services/oauth"
	"github.com/findosh/fintrack/internal/storage"
)

// ValidationError collects per-field input problems
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, p := range e.Fields {
		parts = append(parts, f+": "+p)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, problem string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = problem
	}
}

// err returns e, or nil when nothing was recorded.
func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// fail maps err to a status and JSON body. Unclassified errors are logged
// and reported as a bare 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *ValidationError
		codeErr *auth.CodeError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "fields": verr.Fields})
	case errors.Is(err, errBadJSON):
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
	case errors.Is(err, auth.ErrInvalidPhone):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Validation failed",
			"fields": map[string]string{"phone": "must contain digits"},
		})
	case errors.Is(err, auth.ErrMissingCodeTarget):
		writeError(w, http.StatusBadRequest, "Provide email or phone")
	case errors.Is(err, auth.ErrInvalidResetToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired reset link")
	case errors.Is(err, auth.ErrInvalidVerifyToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired verification link")
	case errors.As(err, &codeErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid or expired code", "reason": codeErr.Reason})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, storage.ErrReferenced):
		writeError(w, http.StatusConflict, "Cannot delete category: it is linked to existing transactions.")
	case errors.Is(err, auth.ErrDispatchFailed):
		h.logFailure(r, err)
		writeError(w, http.StatusInternalServerError, "Failed to send code")
	case errors.Is(err, auth.ErrOAuthNotConfigured):
		writeError(w, http.StatusInternalServerError, "Google sign-in is not configured")
	case errors.Is(err, oauth.ErrProvider), errors.Is(err, oauth.ErrNoEmail):
		h.logFailure(r, err)
		writeError(w, http.StatusBadGateway, "Google sign-in failed")
	default:
		h.logFailure(r, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) logFailure(r *http.Request, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
		log.FieldMethod, r.Method, log.FieldPath, r.URL.Path, log.FieldError, err)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
