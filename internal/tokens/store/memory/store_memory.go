package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"warden/internal/tokens/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

// Error Contract:
// - Find/Complete/DeleteByCode return sentinel.ErrNotFound for unknown codes
// - Complete returns the token with sentinel.ErrAlreadyUsed or sentinel.ErrExpired
//   so callers can classify the outcome
// - Create returns sentinel.ErrConflict when the code is already taken
//
// InMemoryTokenStore keeps ledger tokens in memory for tests and single-node use.
type InMemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.Token
}

func New() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[string]*models.Token)}
}

func key(kind models.Kind, code string) string {
	return string(kind) + ":" + code
}

func (s *InMemoryTokenStore) Create(_ context.Context, token *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(token.Kind, token.Code)
	if _, exists := s.tokens[k]; exists {
		return fmt.Errorf("token code already issued: %w", sentinel.ErrConflict)
	}
	s.tokens[k] = token.Clone()
	return nil
}

func (s *InMemoryTokenStore) Find(_ context.Context, kind models.Kind, code string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token, ok := s.tokens[key(kind, code)]; ok {
		return token.Clone(), nil
	}
	return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
}

// Complete checks and marks the token under one write lock, so two callers
// can never both complete the same code.
func (s *InMemoryTokenStore) Complete(_ context.Context, kind models.Kind, code string, now time.Time) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[key(kind, code)]
	if !ok {
		return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	if token.Completed {
		return token.Clone(), fmt.Errorf("token already completed: %w", sentinel.ErrAlreadyUsed)
	}
	if token.IsExpiredAt(now) {
		return token.Clone(), fmt.Errorf("token expired: %w", sentinel.ErrExpired)
	}
	token.MarkCompleted(now)
	return token.Clone(), nil
}

func (s *InMemoryTokenStore) DeleteByCode(_ context.Context, kind models.Kind, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(kind, code)
	if _, ok := s.tokens[k]; !ok {
		return fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	delete(s.tokens, k)
	return nil
}

// DeleteByUser removes the user's uncompleted tokens of kind.
func (s *InMemoryTokenStore) DeleteByUser(_ context.Context, kind models.Kind, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for k, token := range s.tokens {
		if token.Kind == kind && token.UserID == userID && !token.Completed {
			delete(s.tokens, k)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryTokenStore) HasCompleted(_ context.Context, kind models.Kind, userID id.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, token := range s.tokens {
		if token.Kind == kind && token.UserID == userID && token.Completed {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryTokenStore) HasPending(_ context.Context, kind models.Kind, userID id.UserID, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, token := range s.tokens {
		if token.Kind == kind && token.UserID == userID && !token.Completed && !token.IsExpiredAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteExpired removes tokens that expired before cutoff. Completed
// activation tokens are kept because they carry the activation state.
func (s *InMemoryTokenStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for k, token := range s.tokens {
		if token.Kind == models.KindActivation && token.Completed {
			continue
		}
		if token.IsExpiredAt(cutoff) {
			delete(s.tokens, k)
			deleted++
		}
	}
	return deleted, nil
}
