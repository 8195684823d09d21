// Package auth provides authentication services
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/findosh/fintrack/internal/config"
	"github.com/findosh/fintrack/internal/log"
	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/services/notify"
	"github.com/findosh/fintrack/internal/services/oauth"
	"github.com/findosh/fintrack/internal/services/token"
	"github.com/findosh/fintrack/internal/services/verification"
	"github.com/findosh/fintrack/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidResetToken  = errors.New("invalid or expired reset link")
	ErrInvalidVerifyToken = errors.New("invalid or expired verification link")
	ErrUserNotFound       = errors.New("user not found")
	ErrDispatchFailed     = errors.New("failed to send notification")
	ErrInvalidPhone       = errors.New("phone number must contain digits")
	ErrOAuthNotConfigured = errors.New("oauth provider not configured")
	ErrMissingCodeTarget  = errors.New("email or phone is required")
)

const defaultExternalTimeout = 10 * time.Second

// CodeError reports why a one-time code was rejected
type CodeError struct {
	Reason verification.Reason
}

func (e *CodeError) Error() string {
	return "invalid or expired code: " + string(e.Reason)
}

// UserStore is the persistence the auth flows need
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	MarkVerified(ctx context.Context, id uuid.UUID) error
	EmailExists(ctx context.Context, email string) (bool, error)
}

// Service handles authentication operations
type Service struct {
	cfg      *config.Config
	users    UserStore
	tokens   *token.Service
	codes    verification.Store
	notifier notify.Notifier
	provider oauth.Provider // nil when OAuth is disabled
	logger   *log.Logger

	bcryptCost int
	dummyOnce  sync.Once
	dummyHash  []byte
}

// NewService creates a new auth service. provider may be nil.
func NewService(
	cfg *config.Config,
	users UserStore,
	tokens *token.Service,
	codes verification.Store,
	notifier notify.Notifier,
	provider oauth.Provider,
	logger *log.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		users:      users,
		tokens:     tokens,
		codes:      codes,
		notifier:   notifier,
		provider:   provider,
		logger:     logger.WithComponent(log.ComponentAuth),
		bcryptCost: bcrypt.DefaultCost,
	}
}

// AuthResult is returned by every flow that signs a user in
type AuthResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
	Warning   string // set when a side notification could not be sent
}

// RegisterInput contains registration data
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a password account, emails a verification link and
// signs the user in. Verification is advisory.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := models.NormalizeEmail(input.Email)

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.NewUser(email, input.Name, string(hash))
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	result, err := s.session(user)
	if err != nil {
		return nil, err
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "verification email not sent", log.FieldUserID, user.ID, log.FieldError, err)
		result.Warning = "Account created, but the verification email could not be sent."
	}

	s.logger.InfoContext(ctx, "user registered", log.FieldUserID, user.ID)
	return result, nil
}

// LoginInput contains login credentials
type LoginInput struct {
	Email    string
	Password string
}

// Login checks a password. Unknown emails and wrong passwords fail the same
// way and cost about the same time.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil || !user.HasPassword() {
		bcrypt.CompareHashAndPassword(s.dummy(), []byte(input.Password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

// ForgotPassword emails a reset link when the address is registered. The
// caller cannot tell whether a link was sent.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil
	}

	tok, err := s.tokens.Sign(token.Payload{UserID: user.ID, Email: user.Email, Purpose: token.PurposeReset}, s.cfg.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to sign reset token: %w", err)
	}

	link := s.cfg.AppURL + "/reset-password?token=" + tok
	subject, body := resetEmail(user.Name, link)
	err = s.dispatch(ctx, func(ctx context.Context) (notify.Outcome, error) {
		return s.notifier.SendEmail(ctx, user.Email, subject, body)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "reset email not sent", log.FieldUserID, user.ID, log.FieldError, err)
	}
	return nil
}

// ResetPassword sets a new password for the holder of a reset token
func (s *Service) ResetPassword(ctx context.Context, tokenString, password string) error {
	p, ok := s.tokens.Verify(tokenString)
	if !ok || p.Purpose != token.PurposeReset {
		return ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, p.UserID, string(hash)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset", log.FieldUserID, p.UserID)
	return nil
}

// VerifyEmail marks the holder of a verify token as verified
func (s *Service) VerifyEmail(ctx context.Context, tokenString string) error {
	p, ok := s.tokens.Verify(tokenString)
	if !ok || p.Purpose != token.PurposeVerify {
		return ErrInvalidVerifyToken
	}

	if err := s.users.MarkVerified(ctx, p.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidVerifyToken
		}
		return fmt.Errorf("failed to verify email: %w", err)
	}
	return nil
}

// CheckEmail reports whether an account uses email
func (s *Service) CheckEmail(ctx context.Context, email string) (bool, error) {
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// Authenticate resolves a bearer token. Only session tokens are accepted.
func (s *Service) Authenticate(tokenString string) (*token.Payload, error) {
	p, ok := s.tokens.Verify(tokenString)
	if !ok || p.Purpose != token.PurposeSession {
		return nil, ErrInvalidToken
	}
	return p, nil
}

// Me loads the signed-in user's profile
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// CreateVerifiedUser creates a password account that needs no email
// verification. Used by operator tooling.
func (s *Service) CreateVerifiedUser(ctx context.Context, input RegisterInput) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.NewUser(input.Email, input.Name, string(hash))
	user.IsVerified = true
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *Service) session(user *models.User) (*AuthResult, error) {
	tok, err := s.tokens.Sign(token.Payload{UserID: user.ID, Email: user.Email}, s.cfg.SessionDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return &AuthResult{
		User:      user,
		Token:     tok,
		ExpiresAt: time.Now().UTC().Add(s.cfg.SessionDuration),
	}, nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) error {
	tok, err := s.tokens.Sign(token.Payload{UserID: user.ID, Email: user.Email, Purpose: token.PurposeVerify}, s.cfg.VerifyTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to sign verify token: %w", err)
	}
	link := s.cfg.AppURL + "/verify-email?token=" + tok
	subject, body := verifyEmail(user.Name, link)
	return s.dispatch(ctx, func(ctx context.Context) (notify.Outcome, error) {
		return s.notifier.SendEmail(ctx, user.Email, subject, body)
	})
}

// dispatch runs a notification detached from the request so a client
// hanging up does not abort it.
func (s *Service) dispatch(ctx context.Context, send func(context.Context) (notify.Outcome, error)) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeoutOr(s.cfg.NotifyTimeout))
	defer cancel()

	_, err := send(ctx)
	return err
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		b := make([]byte, 24)
		rand.Read(b)
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(base64.StdEncoding.EncodeToString(b)), s.bcryptCost)
	})
	return s.dummyHash
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultExternalTimeout
	}
	return d
}

func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}
