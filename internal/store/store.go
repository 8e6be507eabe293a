// Package store holds the short-lived authentication state: OTP records,
// onboarding locks and password-reset tokens. Every operation is atomic
// per key.
package store

import (
	"context"
	"time"

	"github.com/amirk1998/serendib-banking/internal/models"
)

// ChallengeStore is the key-value contract shared by the memory and redis
// backends.
type ChallengeStore interface {
	// PutOTP replaces any record stored for key.
	PutOTP(ctx context.Context, key string, rec models.OTPRecord) error
	GetOTP(ctx context.Context, key string) (models.OTPRecord, bool, error)

	// LockOnboarding adds id to the locked set, overwriting a previous expiry.
	LockOnboarding(ctx context.Context, id string, until time.Time) error
	// OnboardingLock returns the stored expiry and whether id is in the set.
	OnboardingLock(ctx context.Context, id string) (time.Time, bool, error)

	// PutResetToken replaces the token set for username with tok.
	PutResetToken(ctx context.Context, username string, tok models.ResetToken) error
	GetResetToken(ctx context.Context, username string) (models.ResetToken, bool, error)
	// DeleteResetTokenIf removes the token for username only when it still
	// equals token. It reports whether a deletion happened.
	DeleteResetTokenIf(ctx context.Context, username, token string) (bool, error)
}
