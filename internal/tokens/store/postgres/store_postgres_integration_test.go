//go:build integration

package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"warden/internal/tokens/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
	"warden/pkg/testutil/containers"
)

type PostgresTokenStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresTokenStore
	ctx   context.Context
	now   time.Time
	user  id.UserID
}

func TestPostgresTokenStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresTokenStoreSuite))
}

func (s *PostgresTokenStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = New(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresTokenStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "tokens"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.user = id.UserID(uuid.New())
}

func (s *PostgresTokenStoreSuite) create(kind models.Kind, code string, ttl time.Duration) {
	t := &models.Token{Kind: kind, Code: code, UserID: s.user, CreatedAt: s.now}
	if ttl > 0 {
		exp := s.now.Add(ttl)
		t.ExpiresAt = &exp
	}
	s.Require().NoError(s.store.Create(s.ctx, t))
}

func (s *PostgresTokenStoreSuite) TestCreateFind() {
	s.create(models.KindActivation, "a1", time.Hour)

	got, err := s.store.Find(s.ctx, models.KindActivation, "a1")
	s.Require().NoError(err)
	s.Equal(s.user, got.UserID)
	s.True(got.ExpiresAt.Equal(s.now.Add(time.Hour)))

	err = s.store.Create(s.ctx, &models.Token{Kind: models.KindActivation, Code: "a1", UserID: s.user, CreatedAt: s.now})
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.Find(s.ctx, models.KindReminder, "a1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresTokenStoreSuite) TestCompleteClassification() {
	s.create(models.KindReminder, "ok", time.Hour)
	s.create(models.KindReminder, "late", time.Minute)

	got, err := s.store.Complete(s.ctx, models.KindReminder, "ok", s.now)
	s.Require().NoError(err)
	s.True(got.Completed)

	_, err = s.store.Complete(s.ctx, models.KindReminder, "ok", s.now)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	_, err = s.store.Complete(s.ctx, models.KindReminder, "late", s.now.Add(time.Hour))
	s.ErrorIs(err, sentinel.ErrExpired)

	_, err = s.store.Complete(s.ctx, models.KindReminder, "missing", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresTokenStoreSuite) TestConcurrentComplete() {
	s.create(models.KindActivation, "race", time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Complete(s.ctx, models.KindActivation, "race", s.now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *PostgresTokenStoreSuite) TestRevokeKeepsCompleted() {
	s.create(models.KindActivation, "done", time.Hour)
	s.create(models.KindActivation, "open", time.Hour)
	_, err := s.store.Complete(s.ctx, models.KindActivation, "done", s.now)
	s.Require().NoError(err)

	n, err := s.store.DeleteByUser(s.ctx, models.KindActivation, s.user)
	s.Require().NoError(err)
	s.Equal(1, n)

	done, err := s.store.HasCompleted(s.ctx, models.KindActivation, s.user)
	s.Require().NoError(err)
	s.True(done)
	pending, err := s.store.HasPending(s.ctx, models.KindActivation, s.user, s.now)
	s.Require().NoError(err)
	s.False(pending)
}

func (s *PostgresTokenStoreSuite) TestDeleteExpired() {
	s.create(models.KindActivation, "done", time.Minute)
	_, err := s.store.Complete(s.ctx, models.KindActivation, "done", s.now)
	s.Require().NoError(err)
	s.create(models.KindReminder, "stale", time.Minute)
	s.create(models.KindPersistence, "forever", 0)

	n, err := s.store.DeleteExpired(s.ctx, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n)

	s.ErrorIs(s.store.DeleteByCode(s.ctx, models.KindReminder, "stale"), sentinel.ErrNotFound)
	s.NoError(s.store.DeleteByCode(s.ctx, models.KindPersistence, "forever"))
}
