package repository

import (
	"context"
	"sync"

	"github.com/amirk1998/serendib-banking/internal/clock"
	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/pkg/errors"
)

type userEntry struct {
	mu   sync.Mutex
	user *models.User
}

// MemoryUserRepository keeps the directory in process memory. The index
// lock only guards membership; each user carries its own mutex.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byUsername map[string]*userEntry
	byNIC      map[string]*userEntry
	byAccount  map[string]*userEntry
	nextID     int
	clock      clock.Clock
}

// NewMemoryUserRepository stamps records with clk; nil means the wall clock.
func NewMemoryUserRepository(clk clock.Clock) *MemoryUserRepository {
	if clk == nil {
		clk = clock.System{}
	}
	return &MemoryUserRepository{
		byUsername: make(map[string]*userEntry),
		byNIC:      make(map[string]*userEntry),
		byAccount:  make(map[string]*userEntry),
		clock:      clk,
	}
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(r.byUsername, models.NormalizeUsername(username))
}

func (r *MemoryUserRepository) FindByNIC(_ context.Context, nic string) (*models.User, error) {
	return r.find(r.byNIC, nic)
}

func (r *MemoryUserRepository) FindByAccount(_ context.Context, accountNumber string) (*models.User, error) {
	return r.find(r.byAccount, accountNumber)
}

func (r *MemoryUserRepository) find(index map[string]*userEntry, key string) (*models.User, error) {
	r.mu.RLock()
	e, ok := index[key]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrUserNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user.Clone(), nil
}

// Add stores a copy of user and assigns its ID and timestamps.
func (r *MemoryUserRepository) Add(_ context.Context, user *models.User) error {
	key := models.NormalizeUsername(user.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[key]; taken {
		return errors.ErrUsernameTaken
	}
	if _, exists := r.byNIC[user.NIC]; exists {
		return errors.ErrUserAlreadyExists
	}
	if _, exists := r.byAccount[user.AccountNumber]; exists {
		return errors.ErrUserAlreadyExists
	}

	r.nextID++
	now := r.clock.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now

	e := &userEntry{user: user.Clone()}
	r.byUsername[key] = e
	r.byNIC[user.NIC] = e
	r.byAccount[user.AccountNumber] = e

	return nil
}

func (r *MemoryUserRepository) Update(_ context.Context, username string, fn func(*models.User) error) (*models.User, error) {
	r.mu.RLock()
	e, ok := r.byUsername[models.NormalizeUsername(username)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrUserNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.user.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	// Identity fields are indexed and stay fixed after onboarding.
	working.ID = e.user.ID
	working.Username = e.user.Username
	working.NIC = e.user.NIC
	working.AccountNumber = e.user.AccountNumber
	working.UpdatedAt = r.clock.Now()

	e.user = working
	return working.Clone(), nil
}
