// Package memory is a reference user store with bcrypt-hashed secrets.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"warden/internal/checkpoint"
	"warden/internal/users/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// dummyHash is compared against when the login is unknown so both paths cost
// one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("warden-dummy-secret"), bcrypt.MinCost)

type InMemoryUserStore struct {
	mu      sync.RWMutex
	byLogin map[string]*models.User
	byID    map[id.UserID]*models.User
	cost    int
}

type Option func(*InMemoryUserStore)

// WithCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *InMemoryUserStore) {
		s.cost = cost
	}
}

func New(opts ...Option) *InMemoryUserStore {
	s := &InMemoryUserStore{
		byLogin: make(map[string]*models.User),
		byID:    make(map[id.UserID]*models.User),
		cost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user. The login is normalized the same way
// Credentials.Login normalizes it.
func (s *InMemoryUserStore) Register(ctx context.Context, creds checkpoint.Credentials) (*models.User, error) {
	login := creds.Login()
	if login == "" || creds.Secret() == "" {
		return nil, fmt.Errorf("login and password are required: %w", sentinel.ErrInvalidState)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Secret()), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byLogin[login]; exists {
		return nil, fmt.Errorf("login already registered: %w", sentinel.ErrConflict)
	}
	user := &models.User{
		ID:           id.UserID(uuid.New()),
		Login:        login,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx),
	}
	s.byLogin[login] = user
	s.byID[user.ID] = user
	out := *user
	return &out, nil
}

// Verify checks the secret. ok is false for an unknown login or a wrong
// secret; err is reserved for storage faults.
func (s *InMemoryUserStore) Verify(_ context.Context, creds checkpoint.Credentials) (id.UserID, bool, error) {
	s.mu.RLock()
	user, found := s.byLogin[creds.Login()]
	var hash []byte
	if found {
		hash = user.PasswordHash
	}
	s.mu.RUnlock()

	if !found {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Secret()))
		return id.UserID{}, false, nil
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(creds.Secret())); err != nil {
		return id.UserID{}, false, nil
	}
	return user.ID, true, nil
}

// FindByCredentials resolves the login without checking the secret.
func (s *InMemoryUserStore) FindByCredentials(_ context.Context, creds checkpoint.Credentials) (id.UserID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byLogin[creds.Login()]
	if !ok {
		return id.UserID{}, false, nil
	}
	return user.ID, true, nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	out := *user
	return &out, nil
}

func (s *InMemoryUserStore) UpdatePassword(_ context.Context, userID id.UserID, secret string) error {
	if secret == "" {
		return fmt.Errorf("password is required: %w", sentinel.ErrInvalidState)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	user.PasswordHash = hash
	return nil
}
