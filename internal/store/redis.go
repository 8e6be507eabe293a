package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amirk1998/serendib-banking/internal/models"
)

// retention bounds how long an expired OTP or reset record stays in redis.
// Within this window lookups behave exactly like the memory store.
const retention = 24 * time.Hour

var deleteResetIfScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// Redis is a ChallengeStore shared by every process pointing at the same
// redis. Each record lives under its own key so single-command writes give
// per-key atomicity.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "serendib:auth"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &Redis{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (r *Redis) otpKey(key string) string        { return r.prefix + ":otp:" + key }
func (r *Redis) resetKey(username string) string { return r.prefix + ":reset:" + username }
func (r *Redis) onboardingKey() string           { return r.prefix + ":onboarding_locks" }

func (r *Redis) PutOTP(ctx context.Context, key string, rec models.OTPRecord) error {
	k := r.otpKey(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "code", rec.Code, "expires_at", rec.ExpiresAt.UnixNano())
		pipe.PExpireAt(ctx, k, rec.ExpiresAt.Add(retention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

func (r *Redis) GetOTP(ctx context.Context, key string) (models.OTPRecord, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.otpKey(key)).Result()
	if err != nil {
		return models.OTPRecord{}, false, fmt.Errorf("failed to load otp: %w", err)
	}
	if len(fields) == 0 {
		return models.OTPRecord{}, false, nil
	}

	expiresAt, err := parseUnixNano(fields["expires_at"])
	if err != nil {
		return models.OTPRecord{}, false, fmt.Errorf("corrupt otp record for %s: %w", key, err)
	}

	return models.OTPRecord{Code: fields["code"], ExpiresAt: expiresAt}, true, nil
}

// LockOnboarding stores the lock in a hash without a TTL; onboarding locks
// are never removed automatically.
func (r *Redis) LockOnboarding(ctx context.Context, id string, until time.Time) error {
	if err := r.client.HSet(ctx, r.onboardingKey(), id, until.UnixNano()).Err(); err != nil {
		return fmt.Errorf("failed to lock onboarding subject: %w", err)
	}
	return nil
}

func (r *Redis) OnboardingLock(ctx context.Context, id string) (time.Time, bool, error) {
	raw, err := r.client.HGet(ctx, r.onboardingKey(), id).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load onboarding lock: %w", err)
	}

	until, err := parseUnixNano(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt onboarding lock for %s: %w", id, err)
	}
	return until, true, nil
}

func (r *Redis) PutResetToken(ctx context.Context, username string, tok models.ResetToken) error {
	k := r.resetKey(username)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, "token", tok.Token, "expires_at", tok.ExpiresAt.UnixNano())
		pipe.PExpireAt(ctx, k, tok.ExpiresAt.Add(retention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	return nil
}

func (r *Redis) GetResetToken(ctx context.Context, username string) (models.ResetToken, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.resetKey(username)).Result()
	if err != nil {
		return models.ResetToken{}, false, fmt.Errorf("failed to load reset token: %w", err)
	}
	if len(fields) == 0 {
		return models.ResetToken{}, false, nil
	}

	expiresAt, err := parseUnixNano(fields["expires_at"])
	if err != nil {
		return models.ResetToken{}, false, fmt.Errorf("corrupt reset token for %s: %w", username, err)
	}

	return models.ResetToken{Token: fields["token"], ExpiresAt: expiresAt}, true, nil
}

func (r *Redis) DeleteResetTokenIf(ctx context.Context, username, token string) (bool, error) {
	deleted, err := deleteResetIfScript.Run(ctx, r.client, []string{r.resetKey(username)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return deleted == 1, nil
}

func parseUnixNano(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
