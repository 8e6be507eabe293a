package service

import (
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/amirk1998/serendib-banking/internal/audit"
	"github.com/amirk1998/serendib-banking/internal/clock"
	"github.com/amirk1998/serendib-banking/internal/delivery"
	"github.com/amirk1998/serendib-banking/internal/logging"
	"github.com/amirk1998/serendib-banking/internal/ratelimit"
	"github.com/amirk1998/serendib-banking/internal/repository"
	"github.com/amirk1998/serendib-banking/internal/store"
)

// Policy holds the timing and retry knobs of the challenge flows
type Policy struct {
	OTPValidity        time.Duration
	MaxOTPAttempts     int
	LockDuration       time.Duration
	ResetTokenValidity time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		OTPValidity:        30 * time.Second,
		MaxOTPAttempts:     3,
		LockDuration:       3 * time.Hour,
		ResetTokenValidity: 5 * time.Minute,
	}
}

// RandomSource picks codes. *rand.Rand from math/rand/v2 satisfies it
// when only one goroutine uses it; NewSeededSource is safe to share.
type RandomSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// NewSeededSource returns a deterministic source for tests and replays
func NewSeededSource(seed uint64) RandomSource {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Deps wires the collaborators shared by the services. Directory, Audit
// and Limiter are optional; Delivery defaults to the console.
type Deps struct {
	Store     store.ChallengeStore
	Directory repository.UserDirectory
	Delivery  delivery.Channel
	Audit     *audit.Logger
	Limiter   *ratelimit.RateLimiter
	Clock     clock.Clock
	Random    RandomSource
	Policy    Policy
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Delivery == nil {
		d.Delivery = delivery.NewConsole(os.Stdout)
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Random == nil {
		d.Random = globalSource{}
	}
	if d.Policy == (Policy{}) {
		d.Policy = DefaultPolicy()
	}
	d.Logger = logging.OrDefault(d.Logger)
	return d
}
