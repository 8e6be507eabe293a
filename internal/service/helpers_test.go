package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/amirk1998/serendib-banking/internal/audit"
	"github.com/amirk1998/serendib-banking/internal/clock"
	"github.com/amirk1998/serendib-banking/internal/logging"
	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/internal/repository"
	"github.com/amirk1998/serendib-banking/internal/store"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type deliveryCall struct {
	recipient string
	code      string
	channel   models.Channel
}

type recordingChannel struct {
	mu    sync.Mutex
	calls []deliveryCall
	err   error
}

func (r *recordingChannel) Deliver(_ context.Context, recipient, code string, channel models.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, deliveryCall{recipient, code, channel})
	return r.err
}

func (r *recordingChannel) last(t *testing.T) deliveryCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		t.Fatalf("nothing delivered")
	}
	return r.calls[len(r.calls)-1]
}

func (r *recordingChannel) codeFor(t *testing.T, recipient string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].recipient == recipient {
			return r.calls[i].code
		}
	}
	t.Fatalf("nothing delivered to %s", recipient)
	return ""
}

// sequence returns its values in order and then repeats the last one.
type sequence struct {
	mu     sync.Mutex
	values []int
}

func (s *sequence) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[0]
	if len(s.values) > 1 {
		s.values = s.values[1:]
	}
	return v % n
}

type scriptedPrompter struct {
	inputs     []string
	prompts    int
	rejections []Rejection
}

func (p *scriptedPrompter) Prompt(int, int) (string, error) {
	if p.prompts >= len(p.inputs) {
		return "", io.EOF
	}
	p.prompts++
	return p.inputs[p.prompts-1], nil
}

func (p *scriptedPrompter) Reject(reason Rejection) {
	p.rejections = append(p.rejections, reason)
}

// failingStore errors on every call.
type failingStore struct{}

var errBackend = stderrors.New("backend unavailable")

func (failingStore) PutOTP(context.Context, string, models.OTPRecord) error { return errBackend }
func (failingStore) GetOTP(context.Context, string) (models.OTPRecord, bool, error) {
	return models.OTPRecord{}, false, errBackend
}
func (failingStore) LockOnboarding(context.Context, string, time.Time) error { return errBackend }
func (failingStore) OnboardingLock(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errBackend
}
func (failingStore) PutResetToken(context.Context, string, models.ResetToken) error {
	return errBackend
}
func (failingStore) GetResetToken(context.Context, string) (models.ResetToken, bool, error) {
	return models.ResetToken{}, false, errBackend
}
func (failingStore) DeleteResetTokenIf(context.Context, string, string) (bool, error) {
	return false, errBackend
}

type fixture struct {
	clock      *clock.Fake
	store      *store.Memory
	directory  *repository.MemoryUserRepository
	delivery   *recordingChannel
	audit      *audit.Logger
	otp        *OTPService
	auth       *AuthService
	onboarding *OnboardingService
	users      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	auditLogger, err := audit.NewLogger(audit.NewMemoryStore(), audit.Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLogger.Close() })

	fake := clock.NewFake(epoch)
	f := &fixture{
		clock:     fake,
		store:     store.NewMemory(),
		directory: repository.NewMemoryUserRepository(fake),
		delivery:  &recordingChannel{},
		audit:     auditLogger,
	}

	deps := Deps{
		Store:     f.store,
		Directory: f.directory,
		Delivery:  f.delivery,
		Audit:     f.audit,
		Clock:     f.clock,
		Random:    NewSeededSource(7),
		Logger:    logging.Discard(),
	}
	f.otp = NewOTPService(deps)
	f.auth = NewAuthService(deps)
	f.onboarding = NewOnboardingService(deps)
	return f
}

func (f *fixture) addUser(t *testing.T, username, password string, preferred models.Channel) *models.User {
	t.Helper()
	f.users++
	u := &models.User{
		Username:         username,
		Password:         password,
		DisplayName:      username,
		AccountNumber:    fmt.Sprintf("ACC%06d", f.users),
		NIC:              fmt.Sprintf("%012d", f.users),
		Status:           models.StatusInitiated,
		Mobile:           "0771234567",
		Email:            username + "@example.com",
		PreferredChannel: preferred,
	}
	if err := f.directory.Add(context.Background(), u); err != nil {
		t.Fatalf("Add(%s): %v", username, err)
	}
	return u
}

// wrongCode returns a well-formed code different from code
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
