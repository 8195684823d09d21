// Package handlers provides HTTP request handlers
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/findosh/fintrack/internal/config"
	"github.com/findosh/fintrack/internal/log"
	"github.com/findosh/fintrack/internal/middleware"
	"github.com/findosh/fintrack/internal/services/analytics"
	"github.com/findosh/fintrack/internal/services/auth"
	"github.com/findosh/fintrack/internal/services/ratelimit"
	"github.com/findosh/fintrack/internal/storage"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("invalid JSON body")

// Handler contains all HTTP handlers and dependencies
type Handler struct {
	cfg              *config.Config
	logger           *log.Logger
	authService      *auth.Service
	analyticsService *analytics.Service
	categoryRepo     *storage.CategoryRepository
	transactionRepo  *storage.TransactionRepository
	budgetRepo       *storage.BudgetRepository
	limiter          ratelimit.Limiter
	authMiddleware   *middleware.Auth
}

// New creates a new handler with all dependencies
func New(
	cfg *config.Config,
	logger *log.Logger,
	authService *auth.Service,
	analyticsService *analytics.Service,
	categoryRepo *storage.CategoryRepository,
	transactionRepo *storage.TransactionRepository,
	budgetRepo *storage.BudgetRepository,
	limiter ratelimit.Limiter,
) *Handler {
	return &Handler{
		cfg:              cfg,
		logger:           logger,
		authService:      authService,
		analyticsService: analyticsService,
		categoryRepo:     categoryRepo,
		transactionRepo:  transactionRepo,
		budgetRepo:       budgetRepo,
		limiter:          limiter,
		authMiddleware:   middleware.NewAuth(authService),
	}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}
