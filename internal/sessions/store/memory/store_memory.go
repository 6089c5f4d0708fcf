package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"warden/internal/sessions/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// InMemorySessionStore keeps sessions in a map. Resume treats lapsed
// sessions as unknown and evicts them.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[id.SessionID]*models.Session
}

// New creates a store; ttl 0 binds sessions without expiry.
func New(ttl time.Duration) *InMemorySessionStore {
	return &InMemorySessionStore{ttl: ttl, sessions: make(map[id.SessionID]*models.Session)}
}

func (s *InMemorySessionStore) Bind(ctx context.Context, req models.BindRequest) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	session := &models.Session{
		Handle:          id.SessionID(uuid.New()),
		UserID:          req.UserID,
		PersistenceCode: req.PersistenceCode,
		IP:              req.IP,
		UserAgent:       req.UserAgent,
		CreatedAt:       now,
	}
	if s.ttl > 0 {
		session.ExpiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Handle] = session
	out := *session
	return &out, nil
}

func (s *InMemorySessionStore) Resume(ctx context.Context, handle id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if session.IsExpiredAt(requestcontext.Now(ctx)) {
		delete(s.sessions, handle)
		return nil, fmt.Errorf("session expired: %w", sentinel.ErrNotFound)
	}
	out := *session
	return &out, nil
}

// Unbind is idempotent.
func (s *InMemorySessionStore) Unbind(_ context.Context, handle id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, handle)
	return nil
}

// UnbindUser drops every session of the user and returns how many existed.
func (s *InMemorySessionStore) UnbindUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for handle, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, handle)
			n++
		}
	}
	return n, nil
}
