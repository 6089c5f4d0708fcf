//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"warden/internal/sessions/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
	"warden/pkg/testutil/containers"
)

type RedisSessionStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisSessionStore
	ctx   context.Context
}

func TestRedisSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisSessionStoreSuite))
}

func (s *RedisSessionStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = New(s.redis.Client, time.Hour)
	s.ctx = context.Background()
}

func (s *RedisSessionStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisSessionStoreSuite) TestBindResume() {
	user := id.UserID(uuid.New())
	sess, err := s.store.Bind(s.ctx, models.BindRequest{UserID: user, PersistenceCode: "p"})
	s.Require().NoError(err)

	got, err := s.store.Resume(s.ctx, sess.Handle)
	s.Require().NoError(err)
	s.Equal(user, got.UserID)
	s.Equal("p", got.PersistenceCode)

	ttl, err := s.redis.Client.TTL(s.ctx, sessionKey(sess.Handle)).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RedisSessionStoreSuite) TestUnbind() {
	sess, err := s.store.Bind(s.ctx, models.BindRequest{UserID: id.UserID(uuid.New())})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Unbind(s.ctx, sess.Handle))
	_, err = s.store.Resume(s.ctx, sess.Handle)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisSessionStoreSuite) TestUnbindUser() {
	user := id.UserID(uuid.New())
	for range 2 {
		_, err := s.store.Bind(s.ctx, models.BindRequest{UserID: user})
		s.Require().NoError(err)
	}
	n, err := s.store.UnbindUser(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(2, n)
}
