package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/findosh/fintrack/internal/log"
	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/storage"
)

// OAuthURL returns the provider consent URL for state
func (s *Service) OAuthURL(state string) (string, error) {
	if s.provider == nil {
		return "", ErrOAuthNotConfigured
	}
	return s.provider.AuthCodeURL(state), nil
}

// OAuthCallback exchanges an authorization code and signs in the matching
// account, creating it on first sign-in.
func (s *Service) OAuthCallback(ctx context.Context, code string) (*AuthResult, error) {
	if s.provider == nil {
		return nil, ErrOAuthNotConfigured
	}

	exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeoutOr(s.cfg.OAuthTimeout))
	defer cancel()

	profile, err := s.provider.Exchange(exCtx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "oauth exchange failed", log.FieldError, err)
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		user = models.NewUser(profile.Email, profile.Name, models.PasswordOAuthGoogle)
		user.IsVerified = profile.EmailVerified
		if err := s.users.Create(ctx, user); err != nil {
			if !errors.Is(err, storage.ErrDuplicate) {
				return nil, fmt.Errorf("failed to create user: %w", err)
			}
			if user, err = s.users.GetByEmail(ctx, profile.Email); err != nil {
				return nil, fmt.Errorf("failed to find user: %w", err)
			}
			if user == nil {
				return nil, ErrUserNotFound
			}
		} else {
			s.logger.InfoContext(ctx, "user registered by oauth", log.FieldUserID, user.ID)
		}
	}

	return s.session(user)
}
