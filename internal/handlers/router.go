package handlers

import (
	"net/http"

	"github.com/findosh/fintrack/internal/middleware"
	"github.com/findosh/fintrack/internal/services/ratelimit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Routes builds the API router. global may be nil.
func (h *Handler) Routes(global *middleware.GlobalLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Recover)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(h.cfg.AllowedOrigins))
	if global != nil {
		r.Use(global.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", h.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(h.limit(ratelimit.PolicyRegister)).Post("/register", h.Register)
		r.With(h.limit(ratelimit.PolicyLogin)).Post("/login", h.Login)
		r.With(h.limit(ratelimit.PolicyForgotPassword)).Post("/forgot-password", h.ForgotPassword)
		r.With(h.limit(ratelimit.PolicyResetPassword)).Post("/reset-password", h.ResetPassword)
		r.With(h.limit(ratelimit.PolicyVerifyEmail)).Post("/verify-email", h.VerifyEmail)
		r.With(h.limit(ratelimit.PolicySendCode)).Post("/send-code", h.SendCode)
		r.With(h.limit(ratelimit.PolicyVerifyCode)).Post("/verify-code", h.VerifyCode)
		r.With(h.limit(ratelimit.PolicyCheckEmail)).Post("/check-email", h.CheckEmail)

		r.Group(func(r chi.Router) {
			r.Use(h.limit(ratelimit.PolicyOAuth))
			r.Get("/google", h.GoogleStart)
			r.Get("/google/callback", h.GoogleCallback)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.RequireAuth)

		r.Get("/api/user/me", h.Me)

		r.Route("/api/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/api/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		r.Route("/api/budgets", func(r chi.Router) {
			r.Get("/", h.ListBudgets)
			r.Post("/", h.CreateBudget)
			r.Get("/progress", h.BudgetProgress)
			r.Put("/{id}", h.UpdateBudget)
			r.Delete("/{id}", h.DeleteBudget)
		})

		r.Get("/api/summary/monthly-spending", h.MonthlySpending)
		r.Get("/api/summary/monthly-category-spending", h.MonthlyCategorySpending)
	})

	return r
}

func (h *Handler) limit(p ratelimit.Policy) func(http.Handler) http.Handler {
	return middleware.RateLimit(h.limiter, p, h.cfg.TrustProxy)
}
