package handlers

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/findosh/fintrack/internal/middleware"
	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/services/auth"
	"github.com/findosh/fintrack/internal/services/oauth"
	"github.com/findosh/fintrack/internal/services/verification"
)

const (
	oauthStateCookie = "oauth_state"
	minPasswordLen   = 6
)

type authResponse struct {
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
	Message string       `json:"message,omitempty"`
	Warning string       `json:"warning,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register handles account creation
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v ValidationError
	req.Email = checkEmail(&v, req.Email)
	if len(req.Password) < minPasswordLen {
		v.add("password", "must be at least 6 characters")
	}
	if req.Name = strings.TrimSpace(req.Name); req.Name == "" {
		v.add("name", "is required")
	}
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token:   result.Token,
		User:    result.User,
		Message: "Please check your email to verify your account",
		Warning: result.Warning,
	})
}

// Login handles password sign-in
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v ValidationError
	req.Email = checkEmail(&v, req.Email)
	if req.Password == "" {
		v.add("password", "is required")
	}
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), auth.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: result.User})
}

// ForgotPassword emails a reset link. The response never reveals whether
// the address is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v ValidationError
	req.Email = checkEmail(&v, req.Email)
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logFailure(r, err)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "If email exists, reset link sent"})
}

type tokenRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword sets a new password from a reset link
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v ValidationError
	if req.Token == "" {
		v.add("token", "is required")
	}
	if len(req.Password) < minPasswordLen {
		v.add("password", "must be at least 6 characters")
	}
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successfully"})
}

// VerifyEmail consumes a verification link
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Token == "" {
		h.fail(w, r, &ValidationError{Fields: map[string]string{"token": "is required"}})
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), req.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

type codeRequest struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
	Name    string `json:"name"`
}

func (req *codeRequest) validateTarget(v *ValidationError) {
	if req.Email = models.NormalizeEmail(req.Email); req.Email != "" && !validEmail(req.Email) {
		v.add("email", "must be a valid email address")
	}
}

// SendCode issues a one-time code over email or SMS
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v ValidationError
	req.validateTarget(&v)
	purpose := verification.Purpose(req.Purpose)
	switch purpose {
	case "", verification.PurposeLogin, verification.PurposeRegister:
	default:
		v.add("purpose", "must be login or register")
	}
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	err := h.authService.SendCode(r.Context(), auth.SendCodeInput{Email: req.Email, Phone: req.Phone, Purpose: purpose})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// VerifyCode signs a user in with a one-time code
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v ValidationError
	req.validateTarget(&v)
	if req.Code = strings.TrimSpace(req.Code); req.Code == "" {
		v.add("code", "is required")
	}
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.authService.VerifyCode(r.Context(), auth.VerifyCodeInput{
		Email: req.Email,
		Phone: req.Phone,
		Code:  req.Code,
		Name:  req.Name,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: result.User})
}

// CheckEmail reports whether an address is registered
func (h *Handler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v ValidationError
	req.Email = checkEmail(&v, req.Email)
	if err := v.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	exists, err := h.authService.CheckEmail(r.Context(), req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// GoogleStart redirects to the Google consent page
func (h *Handler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	state, err := oauth.NewState()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := h.authService.OAuthURL(state)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// GoogleCallback completes the Google sign-in and hands the session token
// to the frontend.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing code")
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Path:     "/api/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	result, err := h.authService.OAuthCallback(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dest := h.cfg.AppURL + "/auth/callback?token=" + url.QueryEscape(result.Token) +
		"&redirect=" + url.QueryEscape("/dashboard")
	http.Redirect(w, r, dest, http.StatusFound)
}

// Me returns the signed-in user's profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	user, err := h.authService.Me(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.User{"user": user})
}

func checkEmail(v *ValidationError, email string) string {
	email = models.NormalizeEmail(email)
	switch {
	case email == "":
		v.add("email", "is required")
	case !validEmail(email):
		v.add("email", "must be a valid email address")
	}
	return email
}
