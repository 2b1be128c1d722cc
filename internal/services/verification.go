// verification.go implements the email verification engine. Each unverified
// user holds at most one pending 6-digit code with a short expiry window;
// verifying consumes the code exactly once.
package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/mailer"
	"github.com/threateye/threateye-backend/internal/telemetry"
)

// codeSpace is the number of possible verification codes (000000–999999).
var codeSpace = big.NewInt(1000000)

// GenerateCode returns a uniform-random 6-digit code as a fixed-width decimal
// string. Leading zeros are preserved: "004217" is a valid code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// VerificationService issues, resends, and checks email verification codes.
type VerificationService struct {
	userRepo *repositories.UserRepository
	mail     mailer.Mailer
	codeTTL  time.Duration

	// now is injected so expiry tests can control the clock.
	now func() time.Time
}

// NewVerificationService creates a VerificationService. mail may be nil when
// outbound email is not configured; codes are still issued and persisted so
// operators can retrieve them out of band.
func NewVerificationService(userRepo *repositories.UserRepository, mail mailer.Mailer, codeTTL time.Duration) *VerificationService {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &VerificationService{
		userRepo: userRepo,
		mail:     mail,
		codeTTL:  codeTTL,
		now:      time.Now,
	}
}

// Issue generates a fresh code for the user, persists it with a new expiry
// window, and dispatches it by email. The code is persisted before dispatch,
// so a failed send leaves the user in a recoverable state: resend is the
// recovery path, and the returned ExternalError is reportable but not fatal
// to the enclosing operation.
func (s *VerificationService) Issue(ctx context.Context, user *models.User) error {
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.codeTTL)

	if err := s.userRepo.SetVerificationCode(ctx, user.ID, code, expiresAt); err != nil {
		return err
	}

	if s.mail == nil {
		slog.Warn("verification code issued but no mailer configured", "user_id", user.ID)
		return nil
	}
	if err := s.mail.SendVerificationCode(ctx, user.Email, code, expiresAt); err != nil {
		return &ExternalError{Op: "email dispatch", Err: err}
	}

	telemetry.VerificationEmailsSentTotal.Inc()
	return nil
}

// Verify checks the submitted code for the given email and marks the user
// verified on success. Error precedence: unknown email, already verified,
// code mismatch, code expired. Expiry is a strict greater-than comparison
// against the wall clock. The final state change is a compare-and-set, so a
// code is consumable exactly once even under concurrent submissions.
func (s *VerificationService) Verify(ctx context.Context, email, submittedCode string) (*models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		telemetry.VerificationAttemptsTotal.WithLabelValues("unknown").Inc()
		return nil, ErrNotFound
	}
	if user.IsVerified {
		telemetry.VerificationAttemptsTotal.WithLabelValues("already_verified").Inc()
		return nil, ErrAlreadyVerified
	}
	// Exact string compare, no normalization: "42" does not match "000042".
	if user.VerificationCode == nil || *user.VerificationCode != submittedCode {
		telemetry.VerificationAttemptsTotal.WithLabelValues("mismatch").Inc()
		return nil, ErrCodeMismatch
	}
	if user.CodeExpiresAt == nil || s.now().After(*user.CodeExpiresAt) {
		telemetry.VerificationAttemptsTotal.WithLabelValues("expired").Inc()
		return nil, ErrCodeExpired
	}

	ok, err := s.userRepo.MarkVerified(ctx, user.ID, submittedCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another request consumed the code between our read and the update.
		telemetry.VerificationAttemptsTotal.WithLabelValues("already_verified").Inc()
		return nil, ErrAlreadyVerified
	}

	user.IsVerified = true
	user.VerificationCode = nil
	user.CodeExpiresAt = nil

	telemetry.VerificationAttemptsTotal.WithLabelValues("verified").Inc()
	return user, nil
}

// Resend invalidates any pending code and issues a fresh one. It never
// re-sends the old code: a new random value with a new expiry window is
// generated each time.
func (s *VerificationService) Resend(ctx context.Context, email string) error {
	user, err := s.userRepo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	return s.Issue(ctx, user)
}
