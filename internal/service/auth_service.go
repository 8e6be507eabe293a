package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirk1998/serendib-banking/internal/audit"
	"github.com/amirk1998/serendib-banking/internal/clock"
	"github.com/amirk1998/serendib-banking/internal/delivery"
	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/internal/observability/metrics"
	"github.com/amirk1998/serendib-banking/internal/ratelimit"
	"github.com/amirk1998/serendib-banking/internal/repository"
	"github.com/amirk1998/serendib-banking/internal/security"
	"github.com/amirk1998/serendib-banking/internal/store"
	"github.com/amirk1998/serendib-banking/pkg/errors"
	"github.com/amirk1998/serendib-banking/pkg/validator"
)

// dummySecret is compared against when the user does not exist so the
// unknown-user path does the same work as a wrong password.
const dummySecret = "serendib-dummy-secret-0000"

var errAccountLocked = stderrors.New("account locked")

// ResetTokenStatus is the outcome of consuming a reset token
type ResetTokenStatus int

const (
	ResetTokenValid ResetTokenStatus = iota
	ResetTokenMismatch
	ResetTokenExpired
)

func (s ResetTokenStatus) String() string {
	switch s {
	case ResetTokenValid:
		return "valid"
	case ResetTokenExpired:
		return "expired"
	default:
		return "mismatch"
	}
}

type AuthService struct {
	directory   repository.UserDirectory
	store       store.ChallengeStore
	delivery    delivery.Channel
	auditLogger *audit.Logger
	rateLimiter *ratelimit.RateLimiter
	validator   *validator.Validator
	clock       clock.Clock
	rnd         RandomSource
	policy      Policy
	log         *slog.Logger
}

// NewAuthService creates the auth guard. deps.Directory is required.
func NewAuthService(deps Deps) *AuthService {
	d := deps.withDefaults()
	return &AuthService{
		directory:   d.Directory,
		store:       d.Store,
		delivery:    d.Delivery,
		auditLogger: d.Audit,
		rateLimiter: d.Limiter,
		validator:   validator.New(),
		clock:       d.Clock,
		rnd:         d.Random,
		policy:      d.Policy,
		log:         d.Logger,
	}
}

// ValidateCredentials checks username and password. Unknown users, locked
// accounts and wrong passwords all yield ErrInvalidCredentials. Success
// resets the failed-attempt counter; a wrong password increments it but
// never locks.
func (s *AuthService) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.CheckLimit("login:" + models.NormalizeUsername(username)); err != nil {
			metrics.AuthLoginsTotal.WithLabelValues("throttled").Inc()
			return nil, err
		}
	}

	now := s.clock.Now()
	var matched bool

	user, err := s.directory.Update(ctx, username, func(u *models.User) error {
		// Compare before the lock check so every failure path does the same work.
		equal := security.SecretsEqual(u.Password, password)
		if u.IsLocked(now) {
			return errAccountLocked
		}
		if !equal {
			u.LoginAttempts++
			return nil
		}
		matched = true
		u.LoginAttempts = 0
		return nil
	})

	switch {
	case err == nil && matched:
		s.recordLogin(ctx, username, now, true, "success")
		return user, nil

	case err == nil:
		s.recordLogin(ctx, username, now, false, "wrong_password")
		return nil, errors.ErrInvalidCredentials

	case stderrors.Is(err, errAccountLocked):
		s.recordLogin(ctx, username, now, false, "locked")
		return nil, errors.ErrInvalidCredentials

	case stderrors.Is(err, errors.ErrUserNotFound):
		security.SecretsEqual(dummySecret, password)
		s.recordLogin(ctx, username, now, false, "unknown_user")
		return nil, errors.ErrInvalidCredentials

	default:
		metrics.AuthLoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to validate credentials: %w", err)
	}
}

func (s *AuthService) recordLogin(ctx context.Context, username string, at time.Time, success bool, reason string) {
	metrics.AuthLoginsTotal.WithLabelValues(reason).Inc()
	s.log.Info("credential check", "username", username, "success", success)

	if s.auditLogger == nil {
		return
	}
	attempt := models.LoginAttempt{Username: username, Timestamp: at, Success: success}
	if err := s.auditLogger.RecordLoginAttempt(ctx, attempt); err != nil {
		s.log.Error("failed to record login attempt", "username", username, "error", err)
	}
}

// LockUser blocks logins for user until now plus the lock duration. The
// caller's copy is updated too.
func (s *AuthService) LockUser(ctx context.Context, user *models.User) error {
	until := s.clock.Now().Add(s.policy.LockDuration)

	_, err := s.directory.Update(ctx, user.Username, func(u *models.User) error {
		u.LockedUntil = &until
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	user.LockedUntil = &until
	metrics.AuthLockoutsTotal.WithLabelValues("login").Inc()
	s.log.Warn("user locked", "username", user.Username, "until", until)
	recordAudit(ctx, s.auditLogger, s.log, &audit.Event{
		Level:    audit.LevelWarning,
		Username: models.NormalizeUsername(user.Username),
		Action:   audit.ActionUserLocked,
		Resource: "authentication",
		Success:  true,
		Metadata: map[string]string{"locked_until": until.Format(time.RFC3339)},
	})
	return nil
}

// LockOnboardingUser blocks onboarding for provisionalID. The lock is
// permanent; its expiry is kept for display only.
func (s *AuthService) LockOnboardingUser(ctx context.Context, provisionalID string) error {
	until := s.clock.Now().Add(s.policy.LockDuration)
	if err := s.store.LockOnboarding(ctx, provisionalID, until); err != nil {
		return fmt.Errorf("failed to lock onboarding: %w", err)
	}

	metrics.AuthLockoutsTotal.WithLabelValues("onboarding").Inc()
	s.log.Warn("onboarding locked", "provisional_id", provisionalID, "until", until)
	recordAudit(ctx, s.auditLogger, s.log, &audit.Event{
		Level:    audit.LevelWarning,
		Action:   audit.ActionOnboardingLocked,
		Resource: "onboarding",
		Success:  true,
		Metadata: map[string]string{"provisional_id": provisionalID, "locked_until": until.Format(time.RFC3339)},
	})
	return nil
}

// IsOnboardingUserLocked reports lock membership regardless of the stored
// expiry. Store failures count as locked.
func (s *AuthService) IsOnboardingUserLocked(ctx context.Context, provisionalID string) bool {
	_, locked, err := s.store.OnboardingLock(ctx, provisionalID)
	if err != nil {
		s.log.Error("onboarding lock lookup failed", "provisional_id", provisionalID, "error", err)
		return true
	}
	return locked
}

// OnboardingUserLockedUntil returns the stored lock expiry for display
func (s *AuthService) OnboardingUserLockedUntil(ctx context.Context, provisionalID string) (time.Time, bool) {
	until, ok, err := s.store.OnboardingLock(ctx, provisionalID)
	if err != nil {
		s.log.Error("onboarding lock lookup failed", "provisional_id", provisionalID, "error", err)
		return time.Time{}, false
	}
	return until, ok
}

// GenerateResetToken replaces the user's reset token with a fresh one and
// delivers it on channel. Delivery failures are logged, not returned.
func (s *AuthService) GenerateResetToken(ctx context.Context, username string, channel models.Channel) error {
	if !channel.Valid() {
		return errors.ErrInvalidChannel
	}

	key := models.NormalizeUsername(username)
	tok := models.ResetToken{
		Token:     sixDigitCode(s.rnd),
		ExpiresAt: s.clock.Now().Add(s.policy.ResetTokenValidity),
	}
	if err := s.store.PutResetToken(ctx, key, tok); err != nil {
		metrics.ResetTokensTotal.WithLabelValues("issue", "error").Inc()
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	metrics.ResetTokensTotal.WithLabelValues("issue", "ok").Inc()

	if err := s.delivery.Deliver(ctx, username, tok.Token, channel); err != nil {
		metrics.OTPDeliveryFailuresTotal.WithLabelValues(channel.String()).Inc()
		s.log.Error("reset token delivery failed", "username", username, "channel", channel, "error", err)
	}

	recordAudit(ctx, s.auditLogger, s.log, &audit.Event{
		Username: key,
		Action:   audit.ActionResetTokenIssued,
		Resource: "password_reset",
		Success:  true,
		Metadata: map[string]string{"channel": channel.String()},
	})
	return nil
}

// IsResetTokenMatch reports whether token is the user's current reset token
func (s *AuthService) IsResetTokenMatch(ctx context.Context, username, token string) bool {
	tok, ok, err := s.store.GetResetToken(ctx, models.NormalizeUsername(username))
	if err != nil {
		s.log.Error("reset token lookup failed", "username", username, "error", err)
		return false
	}
	return ok && security.SecretsEqual(tok.Token, token)
}

// IsResetTokenExpired is true when the user has no token, token is not the
// current one, or its expiry has been reached.
func (s *AuthService) IsResetTokenExpired(ctx context.Context, username, token string) bool {
	tok, ok, err := s.store.GetResetToken(ctx, models.NormalizeUsername(username))
	if err != nil {
		s.log.Error("reset token lookup failed", "username", username, "error", err)
		return true
	}
	if !ok || !security.SecretsEqual(tok.Token, token) {
		return true
	}
	return tok.ExpiredAt(s.clock.Now())
}

// ConsumeResetToken checks match and expiry in one step and removes the
// token when it is valid, so a token authorizes at most one reset.
func (s *AuthService) ConsumeResetToken(ctx context.Context, username, token string) (ResetTokenStatus, error) {
	key := models.NormalizeUsername(username)

	tok, ok, err := s.store.GetResetToken(ctx, key)
	if err != nil {
		return ResetTokenMismatch, fmt.Errorf("failed to load reset token: %w", err)
	}

	status := ResetTokenValid
	switch {
	case !ok || !security.SecretsEqual(tok.Token, token):
		status = ResetTokenMismatch
	case tok.ExpiredAt(s.clock.Now()):
		status = ResetTokenExpired
	default:
		deleted, err := s.store.DeleteResetTokenIf(ctx, key, token)
		if err != nil {
			return ResetTokenMismatch, fmt.Errorf("failed to consume reset token: %w", err)
		}
		if !deleted {
			// Replaced or consumed since it was read.
			status = ResetTokenMismatch
		}
	}

	metrics.ResetTokensTotal.WithLabelValues("consume", status.String()).Inc()
	return status, nil
}

// ResetPassword consumes token and sets newPassword. The failed-attempt
// counter is cleared; an active lock stays in place.
func (s *AuthService) ResetPassword(ctx context.Context, username, token, newPassword string) error {
	if err := s.validator.ValidatePassword(newPassword); err != nil {
		return err
	}

	status, err := s.ConsumeResetToken(ctx, username, token)
	if err != nil {
		return err
	}
	switch status {
	case ResetTokenMismatch:
		return errors.ErrInvalidResetToken
	case ResetTokenExpired:
		return errors.ErrResetTokenExpired
	}

	_, err = s.directory.Update(ctx, username, func(u *models.User) error {
		u.Password = newPassword
		u.LoginAttempts = 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.log.Info("password reset", "username", username)
	recordAudit(ctx, s.auditLogger, s.log, &audit.Event{
		Username: models.NormalizeUsername(username),
		Action:   audit.ActionPasswordReset,
		Resource: "password_reset",
		Success:  true,
	})
	return nil
}
