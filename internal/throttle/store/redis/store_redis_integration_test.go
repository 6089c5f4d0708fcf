//go:build integration

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/pkg/testutil/containers"
)

type RedisThrottleStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisThrottleStore
	ctx   context.Context
	now   time.Time
}

func TestRedisThrottleStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisThrottleStoreSuite))
}

func (s *RedisThrottleStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = New(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisThrottleStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *RedisThrottleStoreSuite) TestMissingKey() {
	rec, err := s.store.Get(s.ctx, "throttle:user:none")
	s.Require().NoError(err)
	s.Nil(rec)
}

func (s *RedisThrottleStoreSuite) TestSlidingWindow() {
	key := "throttle:ip:1.2.3.4"
	_, err := s.store.RecordAttempt(s.ctx, key, s.now.Add(-20*time.Minute), time.Hour)
	s.Require().NoError(err)

	rec, err := s.store.RecordAttempt(s.ctx, key, s.now, 15*time.Minute)
	s.Require().NoError(err)
	s.Require().Len(rec.Attempts, 1)
	s.True(rec.Attempts[0].Equal(s.now))
}

func (s *RedisThrottleStoreSuite) TestExtendLockNeverShortens() {
	key := "throttle:user:alice"
	s.Require().NoError(s.store.ExtendLock(s.ctx, key, s.now.Add(time.Minute)))
	s.Require().NoError(s.store.ExtendLock(s.ctx, key, s.now.Add(time.Second)))

	rec, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Require().NotNil(rec.LockedUntil)
	s.True(rec.LockedUntil.Equal(s.now.Add(time.Minute)))
}

func (s *RedisThrottleStoreSuite) TestClear() {
	key := "throttle:user:bob"
	_, _ = s.store.RecordAttempt(s.ctx, key, s.now, time.Hour)
	_ = s.store.ExtendLock(s.ctx, key, s.now.Add(time.Hour))

	s.Require().NoError(s.store.Clear(s.ctx, key))
	rec, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Nil(rec)
}

func (s *RedisThrottleStoreSuite) TestConcurrentAttemptsAllCounted() {
	key := "throttle:global:all"
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.RecordAttempt(s.ctx, key, s.now, time.Hour)
			s.NoError(err)
		}()
	}
	wg.Wait()

	rec, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Len(rec.Attempts, 50)
}
