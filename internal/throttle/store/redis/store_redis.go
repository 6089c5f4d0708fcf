// Package redis is a throttle store shared across instances. Each key is a
// sorted set of attempt timestamps (score = unix microseconds) plus a
// companion string key holding the lock expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"warden/internal/throttle/models"
)

const lockSuffix = ":lock"

// maxLockRetries bounds WATCH retries when two writers race on one lock key.
const maxLockRetries = 8

// RedisThrottleStore implements the throttle service Store.
type RedisThrottleStore struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *RedisThrottleStore {
	return &RedisThrottleStore{client: client}
}

func score(t time.Time) float64 { return float64(t.UnixMicro()) }

func fromScore(s float64) time.Time { return time.UnixMicro(int64(s)).UTC() }

func (s *RedisThrottleStore) Get(ctx context.Context, key string) (*models.Record, error) {
	pipe := s.client.Pipeline()
	attempts := pipe.ZRangeWithScores(ctx, key, 0, -1)
	lock := pipe.Get(ctx, key+lockSuffix)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttle record: %w", err)
	}
	return buildRecord(key, attempts.Val(), lock)
}

// RecordAttempt adds the attempt, prunes the window and refreshes the key
// expiry inside one MULTI/EXEC so no reader sees a half-applied write.
func (s *RedisThrottleStore) RecordAttempt(ctx context.Context, key string, at time.Time, interval time.Duration) (*models.Record, error) {
	member := strconv.FormatInt(at.UnixMicro(), 10) + "-" + uuid.NewString()
	cutoff := strconv.FormatFloat(score(at.Add(-interval)), 'f', 0, 64)

	var attempts *redis.ZSliceCmd
	var lock *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: score(at), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.PExpire(ctx, key, interval)
		attempts = pipe.ZRangeWithScores(ctx, key, 0, -1)
		lock = pipe.Get(ctx, key+lockSuffix)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("record throttle attempt: %w", err)
	}
	return buildRecord(key, attempts.Val(), lock)
}

// ExtendLock sets the lock expiry if it is later than the stored one, using
// WATCH so concurrent writers cannot shorten a lock.
func (s *RedisThrottleStore) ExtendLock(ctx context.Context, key string, until time.Time) error {
	lockKey := key + lockSuffix
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, lockKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && current >= until.UnixMicro() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lockKey, until.UnixMicro(), 0)
			pipe.PExpireAt(ctx, lockKey, until)
			return nil
		})
		return err
	}

	for range maxLockRetries {
		err := s.client.Watch(ctx, txf, lockKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("extend throttle lock: %w", err)
		}
		return nil
	}
	return fmt.Errorf("extend throttle lock: %w", redis.TxFailedErr)
}

func (s *RedisThrottleStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key, key+lockSuffix).Err(); err != nil {
		return fmt.Errorf("clear throttle record: %w", err)
	}
	return nil
}

func buildRecord(key string, zs []redis.Z, lock *redis.StringCmd) (*models.Record, error) {
	var lockedUntil *time.Time
	if lock != nil {
		micros, err := lock.Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return nil, fmt.Errorf("parse throttle lock: %w", err)
		default:
			u := time.UnixMicro(micros).UTC()
			lockedUntil = &u
		}
	}
	if len(zs) == 0 && lockedUntil == nil {
		return nil, nil
	}
	rec := &models.Record{Key: key, LockedUntil: lockedUntil}
	for _, z := range zs {
		rec.Attempts = append(rec.Attempts, fromScore(z.Score))
	}
	return rec, nil
}
