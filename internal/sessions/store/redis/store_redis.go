// Package redis stores sessions as JSON strings with a native key TTL and a
// per-user index set for bulk unbinding.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"warden/internal/sessions/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

const (
	sessionPrefix = "session:"
	userPrefix    = "sessions:user:"
)

type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New creates a store; ttl 0 binds sessions without expiry.
func New(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(handle id.SessionID) string { return sessionPrefix + handle.String() }

func userKey(userID id.UserID) string { return userPrefix + userID.String() }

func (s *RedisSessionStore) Bind(ctx context.Context, req models.BindRequest) (*models.Session, error) {
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
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.Handle), data, s.ttl)
		pipe.SAdd(ctx, userKey(req.UserID), session.Handle.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bind session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Resume(ctx context.Context, handle id.SessionID) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.IsExpiredAt(requestcontext.Now(ctx)) {
		return nil, fmt.Errorf("session expired: %w", sentinel.ErrNotFound)
	}
	return &session, nil
}

// Unbind is idempotent. The index entry is left to UnbindUser to prune.
func (s *RedisSessionStore) Unbind(ctx context.Context, handle id.SessionID) error {
	if err := s.client.Del(ctx, sessionKey(handle)).Err(); err != nil {
		return fmt.Errorf("unbind session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) UnbindUser(ctx context.Context, userID id.UserID) (int, error) {
	index := userKey(userID)
	handles, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}
	if len(handles) == 0 {
		return 0, nil
	}
	keys := make([]string, len(handles))
	for i, h := range handles {
		keys[i] = sessionPrefix + h
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("unbind user sessions: %w", err)
	}
	return int(deleted.Val()), nil
}
