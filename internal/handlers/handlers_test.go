package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/findosh/fintrack/internal/config"
	"github.com/findosh/fintrack/internal/log"
	"github.com/findosh/fintrack/internal/services/analytics"
	"github.com/findosh/fintrack/internal/services/auth"
	"github.com/findosh/fintrack/internal/services/notify"
	"github.com/findosh/fintrack/internal/services/oauth"
	"github.com/findosh/fintrack/internal/services/ratelimit"
	"github.com/findosh/fintrack/internal/services/token"
	"github.com/findosh/fintrack/internal/services/verification"
	"github.com/findosh/fintrack/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu     sync.Mutex
	bodies []string
}

func (o *outbox) SendEmail(_ context.Context, _, _, body string) (notify.Outcome, error) {
	return o.add(body)
}

func (o *outbox) SendSMS(_ context.Context, _, body string) (notify.Outcome, error) {
	return o.add(body)
}

func (o *outbox) add(body string) (notify.Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies = append(o.bodies, body)
	return notify.Outcome{Stub: true}, nil
}

func (o *outbox) last(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.bodies, "nothing was sent")
	return o.bodies[len(o.bodies)-1]
}

var linkTokenPattern = regexp.MustCompile(`\?token=([A-Za-z0-9_\-.]+)`)

func (o *outbox) lastLinkToken(t *testing.T) string {
	m := linkTokenPattern.FindStringSubmatch(o.last(t))
	require.Len(t, m, 2, "no link in message")
	return m[1]
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func (o *outbox) lastCode(t *testing.T) string {
	code := sixDigits.FindString(o.last(t))
	require.NotEmpty(t, code, "no code in message")
	return code
}

type stubProvider struct {
	profile *oauth.Profile
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(context.Context, string) (*oauth.Profile, error) {
	return p.profile, nil
}

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	outbox *outbox
	client *http.Client
}

func newTestServer(t *testing.T, provider oauth.Provider) *testServer {
	t.Helper()

	cfg := &config.Config{
		Environment:     "development",
		AppURL:          "http://app.test",
		SecretKey:       "test-secret",
		SessionDuration: time.Hour,
		ResetTokenTTL:   time.Hour,
		VerifyTokenTTL:  24 * time.Hour,
		NotifyTimeout:   time.Second,
		OAuthTimeout:    time.Second,
	}

	db, err := storage.New(filepath.Join(t.TempDir(), "fintrack.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	limiter := ratelimit.NewMemoryLimiter(0)
	codes := verification.NewMemoryStore(10*time.Minute, 0)
	box := &outbox{}

	transactions := storage.NewTransactionRepository(db)
	budgets := storage.NewBudgetRepository(db)
	authService := auth.NewService(cfg, storage.NewUserRepository(db), token.NewService(cfg), codes, box, provider, log.Nop())

	h := New(cfg, log.Nop(), authService,
		analytics.NewService(transactions, budgets),
		storage.NewCategoryRepository(db), transactions, budgets, limiter)

	srv := httptest.NewServer(h.Routes(nil))
	t.Cleanup(srv.Close)

	return &testServer{
		t:      t,
		srv:    srv,
		outbox: box,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (s *testServer) do(method, path, bearer string, body any) (*http.Response, map[string]any) {
	s.t.Helper()
	resp, raw := s.doRaw(method, path, bearer, body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(s.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (s *testServer) doList(method, path, bearer string) (*http.Response, []map[string]any) {
	s.t.Helper()
	resp, raw := s.doRaw(method, path, bearer, nil)
	var out []map[string]any
	require.NoError(s.t, json.Unmarshal(raw, &out), string(raw))
	return resp, out
}

func (s *testServer) doRaw(method, path, bearer string, body any) (*http.Response, []byte) {
	s.t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(s.t, err)
	return resp, buf.Bytes()
}

// register creates an account and returns its session token
func (s *testServer) register(email string) string {
	s.t.Helper()
	resp, body := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "secret1", "name": "Tester",
	})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode, body)
	return body["token"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	resp, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "Pat@Example.com", "password": "secret1", "name": "Pat",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "Please check your email to verify your account", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "pat@example.com", user["email"])
	assert.Equal(t, false, user["isVerified"])
	assert.NotContains(t, user, "passwordHash")

	resp, body = s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "pat@example.com", "password": "secret1", "name": "Pat",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, body = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "pat@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	tok := body["token"].(string)

	resp, body = s.do(http.MethodGet, "/api/user/me", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "pat@example.com", body["user"].(map[string]any)["email"])
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("quin@example.com")

	wrongResp, wrongBody := s.doRaw(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "quin@example.com", "password": "wrong-password",
	})
	unknownResp, unknownBody := s.doRaw(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "wrong-password",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode)
	assert.Equal(t, wrongResp.StatusCode, unknownResp.StatusCode)
	assert.Equal(t, string(wrongBody), string(unknownBody))
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, string(wrongBody))
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "123", "name": " ",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation failed", body["error"])
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "name")

	resp, body = s.do(http.MethodPost, "/api/auth/login", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON body", body["error"])
}

func TestPasswordResetAndVerification(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("ray@example.com")
	verifyTok := s.outbox.lastLinkToken(t)

	resp, body := s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ray@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "If email exists, reset link sent", body["message"])
	resetTok := s.outbox.lastLinkToken(t)

	resp, body = s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "If email exists, reset link sent", body["message"])

	resp, body = s.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": verifyTok, "password": "newpass1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired reset link", body["error"])

	resp, body = s.do(http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": resetTok})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired verification link", body["error"])

	resp, _ = s.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": resetTok, "password": "newpass1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ray@example.com", "password": "newpass1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": verifyTok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Email verified successfully", body["message"])

	// Link tokens never authorize API calls.
	resp, _ = s.do(http.MethodGet, "/api/user/me", resetTok, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCodeSignIn(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.do(http.MethodPost, "/api/auth/send-code", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Provide email or phone", body["error"])

	resp, body = s.do(http.MethodPost, "/api/auth/send-code", "", map[string]string{"phone": "no digits"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["fields"], "phone")

	resp, _ = s.do(http.MethodPost, "/api/auth/send-code", "", map[string]string{"phone": "+1 555 0100", "purpose": "register"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := s.outbox.lastCode(t)

	resp, body = s.do(http.MethodPost, "/api/auth/verify-code", "", map[string]string{"phone": "+1 555 0100", "code": "000000"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired code", body["error"])
	assert.Equal(t, "mismatch", body["reason"])

	resp, body = s.do(http.MethodPost, "/api/auth/verify-code", "", map[string]string{"phone": "+1 555 0100", "code": code, "name": "Sam"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, "15550100@phone.local", user["email"])
	assert.Equal(t, "+1 555 0100", user["phone"])

	resp, body = s.do(http.MethodPost, "/api/auth/verify-code", "", map[string]string{"phone": "+1 555 0100", "code": code})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "not_found", body["reason"])

	resp, _ = s.do(http.MethodPost, "/api/auth/send-code", "", map[string]string{"email": "tia@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = s.do(http.MethodPost, "/api/auth/verify-code", "", map[string]string{"email": "tia@example.com", "code": s.outbox.lastCode(t)})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["error"])
}

func TestCheckEmail(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("uma@example.com")

	_, body := s.do(http.MethodPost, "/api/auth/check-email", "", map[string]string{"email": "UMA@example.com"})
	assert.Equal(t, true, body["exists"])
	_, body = s.do(http.MethodPost, "/api/auth/check-email", "", map[string]string{"email": "vic@example.com"})
	assert.Equal(t, false, body["exists"])
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, nil)
	creds := map[string]string{"email": "wes@example.com", "password": "whatever"}

	for i := 0; i < ratelimit.PolicyLogin.Max; i++ {
		resp, _ := s.do(http.MethodPost, "/api/auth/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, body := s.do(http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many login attempts. Please try again later.", body["error"])
	assert.NotEmpty(t, body["resetAt"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// Other scopes keep their own windows.
	resp, _ = s.do(http.MethodPost, "/api/auth/check-email", "", map[string]string{"email": "wes@example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/api/user/me", "/api/categories", "/api/transactions", "/api/budgets", "/api/budgets/progress", "/api/summary/monthly-spending"} {
		resp, _ := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp, _ = s.do(http.MethodGet, path, "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestOAuth(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, nil)
		resp, body := s.do(http.MethodGet, "/api/auth/google", "", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "Google sign-in is not configured", body["error"])
	})

	t.Run("round trip", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{profile: &oauth.Profile{Email: "xan@example.com", Name: "Xan", EmailVerified: true}})

		resp, _ := s.do(http.MethodGet, "/api/auth/google", "", nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		state := loc.Query().Get("state")
		require.NotEmpty(t, state)

		var stateCookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == oauthStateCookie {
				stateCookie = c
			}
		}
		require.NotNil(t, stateCookie)
		assert.True(t, stateCookie.HttpOnly)
		assert.Equal(t, state, stateCookie.Value)

		callback := func(state string, cookie *http.Cookie) *http.Response {
			req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/api/auth/google/callback?code=abc&state="+url.QueryEscape(state), nil)
			require.NoError(t, err)
			if cookie != nil {
				req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
			}
			resp, err := s.client.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			return resp
		}

		assert.Equal(t, http.StatusBadRequest, callback(state, nil).StatusCode)
		assert.Equal(t, http.StatusBadRequest, callback("forged", stateCookie).StatusCode)

		resp = callback(state, stateCookie)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		dest := resp.Header.Get("Location")
		require.True(t, strings.HasPrefix(dest, "http://app.test/auth/callback?token="), dest)
		assert.Contains(t, dest, "&redirect=%2Fdashboard")

		u, err := url.Parse(dest)
		require.NoError(t, err)
		resp, body := s.do(http.MethodGet, "/api/user/me", u.Query().Get("token"), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["user"].(map[string]any)["isVerified"])
	})

	t.Run("missing code", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{})
		resp, body := s.do(http.MethodGet, "/api/auth/google/callback?state=x", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Missing code", body["error"])
	})
}
