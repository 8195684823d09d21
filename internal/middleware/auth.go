package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/findosh/fintrack/internal/services/token"
	"github.com/google/uuid"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated caller
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// Authenticator resolves a bearer token to its payload
type Authenticator interface {
	Authenticate(tokenString string) (*token.Payload, error)
}

// Auth middleware for protected routes
type Auth struct {
	authenticator Authenticator
}

// NewAuth creates a new auth middleware
func NewAuth(authenticator Authenticator) *Auth {
	return &Auth{authenticator: authenticator}
}

// RequireAuth rejects requests without a valid session bearer token
func (m *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		p, err := m.authenticator.Authenticate(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		id := &Identity{UserID: p.UserID, Email: p.Email}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// GetIdentity retrieves the caller from the request context
func GetIdentity(r *http.Request) *Identity {
	id, ok := r.Context().Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}
