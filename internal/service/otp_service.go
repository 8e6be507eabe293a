package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/amirk1998/serendib-banking/internal/clock"
	"github.com/amirk1998/serendib-banking/internal/delivery"
	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/internal/observability/metrics"
	"github.com/amirk1998/serendib-banking/internal/ratelimit"
	"github.com/amirk1998/serendib-banking/internal/repository"
	"github.com/amirk1998/serendib-banking/internal/security"
	"github.com/amirk1998/serendib-banking/internal/store"
	"github.com/amirk1998/serendib-banking/pkg/errors"
)

// OTPService issues and checks one-time codes keyed by session key: a
// username after login, or the NIC during onboarding.
type OTPService struct {
	store     store.ChallengeStore
	directory repository.UserDirectory
	delivery  delivery.Channel
	limiter   *ratelimit.RateLimiter
	clock     clock.Clock
	rnd       RandomSource
	policy    Policy
	log       *slog.Logger
}

func NewOTPService(deps Deps) *OTPService {
	d := deps.withDefaults()
	return &OTPService{
		store:     d.Store,
		directory: d.Directory,
		delivery:  d.Delivery,
		limiter:   d.Limiter,
		clock:     d.Clock,
		rnd:       d.Random,
		policy:    d.Policy,
		log:       d.Logger,
	}
}

// Issue stores a fresh code for sessionKey, replacing any earlier one, and
// delivers it on every channel in channels. When sessionKey names a user
// with a preferred channel, that channel becomes the primary leg.
// Delivery failures are logged, not returned.
func (s *OTPService) Issue(ctx context.Context, sessionKey string, channels models.ChannelSet) error {
	if s.limiter != nil {
		if err := s.limiter.CheckLimit("otp:" + sessionKey); err != nil {
			s.log.Warn("otp issuance throttled", "session_key", sessionKey)
			return err
		}
	}

	targets := s.resolveChannels(ctx, sessionKey, models.Channels(channels...))
	if len(targets) == 0 {
		return errors.ErrNoChannel
	}

	code := sixDigitCode(s.rnd)
	rec := models.OTPRecord{
		Code:      code,
		ExpiresAt: s.clock.Now().Add(s.policy.OTPValidity),
	}
	if err := s.store.PutOTP(ctx, sessionKey, rec); err != nil {
		return fmt.Errorf("failed to issue otp: %w", err)
	}

	for _, c := range targets {
		if err := s.delivery.Deliver(ctx, sessionKey, code, c); err != nil {
			metrics.OTPDeliveryFailuresTotal.WithLabelValues(c.String()).Inc()
			s.log.Error("otp delivery failed", "session_key", sessionKey, "channel", c, "error", err)
			continue
		}
		metrics.OTPIssuedTotal.WithLabelValues(c.String()).Inc()
	}

	s.log.Info("otp issued", "session_key", sessionKey, "channels", len(targets), "valid_for", s.policy.OTPValidity.String())
	return nil
}

func (s *OTPService) resolveChannels(ctx context.Context, sessionKey string, requested models.ChannelSet) models.ChannelSet {
	if s.directory == nil {
		return requested
	}

	user, err := s.directory.FindByUsername(ctx, sessionKey)
	if err != nil {
		if !stderrors.Is(err, errors.ErrUserNotFound) {
			s.log.Warn("directory lookup failed, using requested channels", "session_key", sessionKey, "error", err)
		}
		return requested
	}
	if !user.PreferredChannel.Valid() {
		return requested
	}
	return requested.WithPrimary(user.PreferredChannel)
}

// Validate reports whether code equals the stored code for sessionKey.
// A code stays valid for repeated checks until it is replaced.
func (s *OTPService) Validate(ctx context.Context, sessionKey, code string) bool {
	rec, ok, err := s.store.GetOTP(ctx, sessionKey)
	if err != nil {
		s.log.Error("otp lookup failed", "session_key", sessionKey, "error", err)
		metrics.OTPValidationsTotal.WithLabelValues("error").Inc()
		return false
	}
	if !ok {
		metrics.OTPValidationsTotal.WithLabelValues("unknown").Inc()
		return false
	}

	if !security.SecretsEqual(rec.Code, code) {
		metrics.OTPValidationsTotal.WithLabelValues("mismatch").Inc()
		return false
	}
	metrics.OTPValidationsTotal.WithLabelValues("match").Inc()
	return true
}

// IsExpired is true when no code exists for sessionKey or its expiry has
// been reached.
func (s *OTPService) IsExpired(ctx context.Context, sessionKey string) bool {
	rec, ok, err := s.store.GetOTP(ctx, sessionKey)
	if err != nil {
		s.log.Error("otp lookup failed", "session_key", sessionKey, "error", err)
		return true
	}
	if !ok {
		return true
	}
	return rec.ExpiredAt(s.clock.Now())
}
