package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/amirk1998/serendib-banking/internal/models"
)

const shardCount = 32

type shard struct {
	mu         sync.Mutex
	otps       map[string]models.OTPRecord
	resets     map[string]models.ResetToken
	onboarding map[string]time.Time
}

// Memory is an in-process ChallengeStore. Keys are spread over shards so
// unrelated sessions do not contend on one mutex.
type Memory struct {
	shards [shardCount]*shard
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i] = &shard{
			otps:       make(map[string]models.OTPRecord),
			resets:     make(map[string]models.ResetToken),
			onboarding: make(map[string]time.Time),
		}
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Memory) PutOTP(ctx context.Context, key string, rec models.OTPRecord) error {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.otps[key] = rec
	return nil
}

func (m *Memory) GetOTP(ctx context.Context, key string) (models.OTPRecord, bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.otps[key]
	return rec, ok, nil
}

func (m *Memory) LockOnboarding(ctx context.Context, id string, until time.Time) error {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onboarding[id] = until
	return nil
}

func (m *Memory) OnboardingLock(ctx context.Context, id string) (time.Time, bool, error) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.onboarding[id]
	return until, ok, nil
}

func (m *Memory) PutResetToken(ctx context.Context, username string, tok models.ResetToken) error {
	s := m.shardFor(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resets[username] = tok
	return nil
}

func (m *Memory) GetResetToken(ctx context.Context, username string) (models.ResetToken, bool, error) {
	s := m.shardFor(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.resets[username]
	return tok, ok, nil
}

func (m *Memory) DeleteResetTokenIf(ctx context.Context, username, token string) (bool, error) {
	s := m.shardFor(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.resets[username]
	if !ok || tok.Token != token {
		return false, nil
	}
	delete(s.resets, username)
	return true, nil
}
