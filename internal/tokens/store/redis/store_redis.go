// Package redis is a token store shared across instances. Each token is a
// hash at token:<kind>:<code>; a set at tokens:<kind>:user:<id> indexes the
// codes a user holds.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/tokens/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

const (
	tokenPrefix = "token:"
	scanBatch   = 256
)

// maxTxRetries bounds WATCH retries when writers race on one token.
const maxTxRetries = 8

const (
	fieldUserID      = "user_id"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
	fieldCompleted   = "completed"
	fieldCompletedAt = "completed_at"
)

// hashReader is satisfied by both the client and a WATCH transaction.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type RedisTokenStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

type Option func(*RedisTokenStore)

// WithRetention keeps expired tokens readable for d after expiry before Redis
// evicts them.
func WithRetention(d time.Duration) Option {
	return func(s *RedisTokenStore) {
		s.retention = d
	}
}

func New(client redis.UniversalClient, opts ...Option) *RedisTokenStore {
	s := &RedisTokenStore{client: client, retention: 24 * time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func tokenKey(kind models.Kind, code string) string {
	return tokenPrefix + string(kind) + ":" + code
}

func userKey(kind models.Kind, userID id.UserID) string {
	return "tokens:" + string(kind) + ":user:" + userID.String()
}

func micros(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v string) (*time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	t := time.UnixMicro(n).UTC()
	return &t, nil
}

func (s *RedisTokenStore) Create(ctx context.Context, token *models.Token) error {
	key := tokenKey(token.Kind, token.Code)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("token code already issued: %w", sentinel.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldUserID, token.UserID.String(),
				fieldCreatedAt, token.CreatedAt.UnixMicro(),
				fieldExpiresAt, micros(token.ExpiresAt),
				fieldCompleted, boolField(token.Completed),
				fieldCompletedAt, micros(token.CompletedAt),
			)
			s.applyExpiry(ctx, pipe, key, token)
			pipe.SAdd(ctx, userKey(token.Kind, token.UserID), token.Code)
			return nil
		})
		return err
	}
	if err := s.watch(ctx, txf, key); err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Find(ctx context.Context, kind models.Kind, code string) (*models.Token, error) {
	token, err := s.load(ctx, s.client, kind, code)
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	return token, nil
}

// Complete marks the token under WATCH; a concurrent completion aborts the
// transaction and the retry classifies the token as already used.
func (s *RedisTokenStore) Complete(ctx context.Context, kind models.Kind, code string, now time.Time) (*models.Token, error) {
	key := tokenKey(kind, code)
	var result *models.Token
	txf := func(tx *redis.Tx) error {
		token, err := s.load(ctx, tx, kind, code)
		if err != nil {
			return err
		}
		result = token
		if token.Completed {
			return fmt.Errorf("token already completed: %w", sentinel.ErrAlreadyUsed)
		}
		if token.IsExpiredAt(now) {
			return fmt.Errorf("token expired: %w", sentinel.ErrExpired)
		}
		token.MarkCompleted(now)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldCompleted, "1", fieldCompletedAt, now.UnixMicro())
			s.applyExpiry(ctx, pipe, key, token)
			return nil
		})
		return err
	}
	err := s.watch(ctx, txf, key)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrExpired):
		return result, err
	default:
		return nil, fmt.Errorf("complete token: %w", err)
	}
}

func (s *RedisTokenStore) DeleteByCode(ctx context.Context, kind models.Kind, code string) error {
	key := tokenKey(kind, code)
	userID, err := s.client.HGet(ctx, key, fieldUserID).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	uid, err := id.ParseUserID(userID)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, key)
		pipe.SRem(ctx, userKey(kind, uid), code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes the user's uncompleted tokens of kind. Each token is
// checked and deleted under WATCH so a concurrent completion is never lost.
func (s *RedisTokenStore) DeleteByUser(ctx context.Context, kind models.Kind, userID id.UserID) (int, error) {
	index := userKey(kind, userID)
	codes, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("list user tokens: %w", err)
	}
	deleted := 0
	for _, code := range codes {
		key := tokenKey(kind, code)
		removed := false
		txf := func(tx *redis.Tx) error {
			removed = false
			token, err := s.load(ctx, tx, kind, code)
			if errors.Is(err, sentinel.ErrNotFound) {
				return tx.SRem(ctx, index, code).Err()
			}
			if err != nil {
				return err
			}
			if token.Completed {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, index, code)
				return nil
			})
			removed = err == nil
			return err
		}
		if err := s.watch(ctx, txf, key); err != nil {
			return deleted, fmt.Errorf("revoke user tokens: %w", err)
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}

func (s *RedisTokenStore) HasCompleted(ctx context.Context, kind models.Kind, userID id.UserID) (bool, error) {
	found := false
	err := s.eachUserToken(ctx, kind, userID, func(t *models.Token) bool {
		found = t.Completed
		return !found
	})
	return found, err
}

func (s *RedisTokenStore) HasPending(ctx context.Context, kind models.Kind, userID id.UserID, now time.Time) (bool, error) {
	found := false
	err := s.eachUserToken(ctx, kind, userID, func(t *models.Token) bool {
		found = !t.Completed && !t.IsExpiredAt(now)
		return !found
	})
	return found, err
}

// DeleteExpired scans token hashes and removes those that expired before
// cutoff. Completed activations are kept. Key expiry already evicts most
// tokens; this catches ones written with a longer retention.
func (s *RedisTokenStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	iter := s.client.Scan(ctx, 0, tokenPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		kind, code, ok := splitTokenKey(iter.Val())
		if !ok {
			continue
		}
		token, err := s.load(ctx, s.client, kind, code)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("scan expired tokens: %w", err)
		}
		if kind == models.KindActivation && token.Completed {
			continue
		}
		if !token.IsExpiredAt(cutoff) {
			continue
		}
		if err := s.DeleteByCode(ctx, kind, code); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan expired tokens: %w", err)
	}
	return deleted, nil
}

// eachUserToken visits the user's tokens of kind until fn returns false.
// Index members whose hash Redis already evicted are removed on the way.
func (s *RedisTokenStore) eachUserToken(ctx context.Context, kind models.Kind, userID id.UserID, fn func(*models.Token) bool) error {
	index := userKey(kind, userID)
	codes, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("list user tokens: %w", err)
	}
	var stale []any
	for _, code := range codes {
		token, err := s.load(ctx, s.client, kind, code)
		if errors.Is(err, sentinel.ErrNotFound) {
			stale = append(stale, code)
			continue
		}
		if err != nil {
			return fmt.Errorf("load user token: %w", err)
		}
		if !fn(token) {
			break
		}
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, index, stale...).Err(); err != nil {
			return fmt.Errorf("prune user token index: %w", err)
		}
	}
	return nil
}

// applyExpiry sets the eviction deadline. Completed activations never expire;
// tokens without an expiry live until deleted.
func (s *RedisTokenStore) applyExpiry(ctx context.Context, pipe redis.Pipeliner, key string, token *models.Token) {
	if token.Kind == models.KindActivation && token.Completed {
		pipe.Persist(ctx, key)
		return
	}
	if token.ExpiresAt != nil {
		pipe.PExpireAt(ctx, key, token.ExpiresAt.Add(s.retention))
	}
}

func (s *RedisTokenStore) watch(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (s *RedisTokenStore) load(ctx context.Context, c hashReader, kind models.Kind, code string) (*models.Token, error) {
	fields, err := c.HGetAll(ctx, tokenKey(kind, code)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	return decode(kind, code, fields)
}

func decode(kind models.Kind, code string, fields map[string]string) (*models.Token, error) {
	userID, err := id.ParseUserID(fields[fieldUserID])
	if err != nil {
		return nil, fmt.Errorf("decode token user: %w", err)
	}
	created, err := fromMicros(fields[fieldCreatedAt])
	if err != nil || created == nil {
		return nil, fmt.Errorf("decode token created_at: %q", fields[fieldCreatedAt])
	}
	expires, err := fromMicros(fields[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("decode token expires_at: %w", err)
	}
	completedAt, err := fromMicros(fields[fieldCompletedAt])
	if err != nil {
		return nil, fmt.Errorf("decode token completed_at: %w", err)
	}
	return &models.Token{
		Kind:        kind,
		Code:        code,
		UserID:      userID,
		CreatedAt:   *created,
		ExpiresAt:   expires,
		Completed:   fields[fieldCompleted] == "1",
		CompletedAt: completedAt,
	}, nil
}

func splitTokenKey(key string) (models.Kind, string, bool) {
	rest := key[len(tokenPrefix):]
	for _, kind := range models.Kinds {
		prefix := string(kind) + ":"
		if len(rest) > len(prefix) && rest[:len(prefix)] == prefix {
			return kind, rest[len(prefix):], true
		}
	}
	return "", "", false
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
