package ratelimit

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/amirk1998/serendib-banking/pkg/errors"
)

func TestCheckLimitIsPerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	for i := 0; i < 2; i++ {
		if err := rl.CheckLimit("kasun"); err != nil {
			t.Fatalf("attempt %d rejected: %v", i+1, err)
		}
	}
	if err := rl.CheckLimit("kasun"); !stderrors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatalf("third attempt = %v, want ErrRateLimitExceeded", err)
	}
	if err := rl.CheckLimit("nimal"); err != nil {
		t.Fatalf("other key throttled: %v", err)
	}
}

func TestCleanupEvictsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(defaultIdleTTL / 2)
	rl.Allow("active")
	now = now.Add(defaultIdleTTL/2 + time.Second)

	rl.Cleanup()

	if rl.Len() != 1 {
		t.Fatalf("expected only the active key to remain, have %d", rl.Len())
	}
	if !rl.Allow("idle") {
		t.Fatalf("evicted key should start with a fresh burst")
	}
}
