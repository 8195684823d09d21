package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/findosh/fintrack/internal/models"
	"github.com/findosh/fintrack/internal/services/verification"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func sentCode(t *testing.T, n *fakeNotifier) string {
	t.Helper()
	code := codePattern.FindString(n.last(t).body)
	if code == "" {
		t.Fatalf("no code in %q", n.last(t).body)
	}
	return code
}

func TestService_SendCodeTarget(t *testing.T) {
	tests := []struct {
		name        string
		input       SendCodeInput
		wantChannel string
		wantTo      string
		wantErr     error
	}{
		{"email", SendCodeInput{Email: "A@Example.com"}, "email", "a@example.com", nil},
		{"email wins over phone", SendCodeInput{Email: "a@example.com", Phone: "+1 555"}, "email", "a@example.com", nil},
		{"phone", SendCodeInput{Phone: " +1 (555) 010-0000 "}, "sms", "+1 (555) 010-0000", nil},
		{"phone without digits", SendCodeInput{Phone: "call me"}, "", "", ErrInvalidPhone},
		{"neither", SendCodeInput{}, "", "", ErrMissingCodeTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			err := f.svc.SendCode(context.Background(), tt.input)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("SendCode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SendCode() error: %v", err)
			}
			msg := f.notifier.last(t)
			if msg.channel != tt.wantChannel || msg.to != tt.wantTo {
				t.Errorf("sent %s to %q, want %s to %q", msg.channel, msg.to, tt.wantChannel, tt.wantTo)
			}
		})
	}
}

func TestService_SendCodeDispatchFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.err = errors.New("gateway down")

	err := f.svc.SendCode(context.Background(), SendCodeInput{Email: "a@example.com"})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Errorf("SendCode() error = %v, want ErrDispatchFailed", err)
	}
}

func TestService_VerifyCodeLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, RegisterInput{Email: "gil@example.com", Password: "secret1", Name: "Gil"}); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.SendCode(ctx, SendCodeInput{Email: "gil@example.com"}); err != nil {
		t.Fatal(err)
	}
	code := sentCode(t, f.notifier)

	res, err := f.svc.VerifyCode(ctx, VerifyCodeInput{Email: "gil@example.com", Code: code})
	if err != nil {
		t.Fatalf("VerifyCode() error: %v", err)
	}
	if res.User.Email != "gil@example.com" || res.Token == "" {
		t.Errorf("result = %+v", res)
	}

	_, err = f.svc.VerifyCode(ctx, VerifyCodeInput{Email: "gil@example.com", Code: code})
	var codeErr *CodeError
	if !errors.As(err, &codeErr) || codeErr.Reason != verification.ReasonNotFound {
		t.Errorf("reused code error = %v, want not_found", err)
	}
}

func TestService_VerifyCodeMismatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.svc.SendCode(ctx, SendCodeInput{Email: "hal@example.com"}); err != nil {
		t.Fatal(err)
	}
	code := sentCode(t, f.notifier)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err := f.svc.VerifyCode(ctx, VerifyCodeInput{Email: "hal@example.com", Code: wrong})
	var codeErr *CodeError
	if !errors.As(err, &codeErr) || codeErr.Reason != verification.ReasonMismatch {
		t.Errorf("error = %v, want mismatch", err)
	}
}

func TestService_VerifyCodeLoginUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.svc.SendCode(ctx, SendCodeInput{Email: "ivy@example.com", Purpose: verification.PurposeLogin}); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.VerifyCode(ctx, VerifyCodeInput{Email: "ivy@example.com", Code: sentCode(t, f.notifier)})
	if err != ErrUserNotFound {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestService_VerifyCodeRegisters(t *testing.T) {
	t.Run("email", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		if err := f.svc.SendCode(ctx, SendCodeInput{Email: "jo@example.com", Purpose: verification.PurposeRegister}); err != nil {
			t.Fatal(err)
		}

		res, err := f.svc.VerifyCode(ctx, VerifyCodeInput{Email: "jo@example.com", Code: sentCode(t, f.notifier), Name: "Jo"})
		if err != nil {
			t.Fatalf("VerifyCode() error: %v", err)
		}
		if res.User.Name != "Jo" || !res.User.IsVerified || res.User.HasPassword() {
			t.Errorf("user = %+v", res.User)
		}
	})

	t.Run("phone", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		phone := "+44 7700 900123"
		if err := f.svc.SendCode(ctx, SendCodeInput{Phone: phone, Purpose: verification.PurposeRegister}); err != nil {
			t.Fatal(err)
		}

		res, err := f.svc.VerifyCode(ctx, VerifyCodeInput{Phone: phone, Code: sentCode(t, f.notifier)})
		if err != nil {
			t.Fatalf("VerifyCode() error: %v", err)
		}
		if res.User.Email != "447700900123@phone.local" || res.User.Phone != phone {
			t.Errorf("user = %+v", res.User)
		}
		if res.User.PasswordHash != models.PasswordCodeAuth {
			t.Errorf("PasswordHash = %q, want code-auth sentinel", res.User.PasswordHash)
		}

		// A later login code for the same phone finds the account.
		if err := f.svc.SendCode(ctx, SendCodeInput{Phone: phone}); err != nil {
			t.Fatal(err)
		}
		again, err := f.svc.VerifyCode(ctx, VerifyCodeInput{Phone: phone, Code: sentCode(t, f.notifier)})
		if err != nil || again.User.ID != res.User.ID {
			t.Errorf("second VerifyCode() = %+v, %v", again, err)
		}
	})
}
