package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/findosh/fintrack/internal/log"
	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/services/notify"
	"github.com/findosh/fintrack/internal/services/verification"
	"github.com/findosh/fintrack/internal/storage"
)

// SendCodeInput names the code recipient. Email wins when both are set.
type SendCodeInput struct {
	Email   string
	Phone   string
	Purpose verification.Purpose
}

// SendCode issues a one-time code and delivers it over email or SMS
func (s *Service) SendCode(ctx context.Context, input SendCodeInput) error {
	target, channel, err := codeTarget(input.Email, input.Phone)
	if err != nil {
		return err
	}
	purpose := input.Purpose
	if purpose == "" {
		purpose = verification.PurposeLogin
	}

	code, err := s.codes.Issue(ctx, target, purpose, channel)
	if err != nil {
		return fmt.Errorf("failed to issue code: %w", err)
	}

	err = s.dispatch(ctx, func(ctx context.Context) (notify.Outcome, error) {
		if channel == verification.ChannelEmail {
			subject, body := codeEmail(code)
			return s.notifier.SendEmail(ctx, target, subject, body)
		}
		return s.notifier.SendSMS(ctx, target, codeSMS(code))
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "code not sent", "channel", channel, log.FieldError, err)
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return nil
}

// VerifyCodeInput carries a code to check. Name is used when the code
// creates an account.
type VerifyCodeInput struct {
	Email string
	Phone string
	Code  string
	Name  string
}

// VerifyCode consumes a one-time code and signs the user in. A register
// code for an unknown target creates the account.
func (s *Service) VerifyCode(ctx context.Context, input VerifyCodeInput) (*AuthResult, error) {
	target, channel, err := codeTarget(input.Email, input.Phone)
	if err != nil {
		return nil, err
	}

	res, err := s.codes.Validate(ctx, target, input.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to validate code: %w", err)
	}
	if !res.OK {
		return nil, &CodeError{Reason: res.Reason}
	}

	user, err := s.findCodeUser(ctx, channel, target)
	if err != nil {
		return nil, err
	}

	if user == nil && res.Purpose == verification.PurposeRegister {
		user, err = s.createCodeUser(ctx, channel, target, input.Name)
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return s.session(user)
}

func (s *Service) findCodeUser(ctx context.Context, channel verification.Channel, target string) (*models.User, error) {
	var user *models.User
	var err error
	if channel == verification.ChannelEmail {
		user, err = s.users.GetByEmail(ctx, target)
	} else {
		user, err = s.users.GetByPhone(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (s *Service) createCodeUser(ctx context.Context, channel verification.Channel, target, name string) (*models.User, error) {
	var user *models.User
	if channel == verification.ChannelEmail {
		user = models.NewUser(target, name, models.PasswordCodeAuth)
		// The code itself proved ownership of the address.
		user.IsVerified = true
	} else {
		email := models.PhonePlaceholderEmail(target)
		if email == "" {
			return nil, ErrInvalidPhone
		}
		user = models.NewUser(email, name, models.PasswordCodeAuth)
		user.Phone = target
	}

	err := s.users.Create(ctx, user)
	if errors.Is(err, storage.ErrDuplicate) {
		// Lost a race with a concurrent signup, or a placeholder address
		// already exists.
		existing, ferr := s.users.GetByEmail(ctx, user.Email)
		if ferr != nil {
			return nil, fmt.Errorf("failed to find user: %w", ferr)
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered by code", log.FieldUserID, user.ID, "channel", channel)
	return user, nil
}

func codeTarget(email, phone string) (string, verification.Channel, error) {
	if email = models.NormalizeEmail(email); email != "" {
		return email, verification.ChannelEmail, nil
	}
	if phone = normalizePhone(phone); phone != "" {
		if models.PhonePlaceholderEmail(phone) == "" {
			return "", "", ErrInvalidPhone
		}
		return phone, verification.ChannelPhone, nil
	}
	return "", "", ErrMissingCodeTarget
}
