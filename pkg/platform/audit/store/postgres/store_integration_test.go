//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "warden/pkg/domain"
	audit "warden/pkg/platform/audit"
	txcontext "warden/pkg/platform/tx"
	"warden/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
	ctx   context.Context
	now   time.Time
}

func TestAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = New(s.pg.DB)
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "audit_events"))
}

func (s *AuditStoreSuite) TestAppendAndListByUser() {
	userID := id.UserID(uuid.New())
	s.Require().NoError(s.store.Emit(s.ctx, audit.Event{
		Name:      audit.EventLoginFailed,
		Timestamp: s.now,
		UserID:    userID,
		IP:        "192.0.2.1",
		Reason:    "invalid_credentials",
	}))
	s.Require().NoError(s.store.Emit(s.ctx, audit.Event{
		Name:       audit.EventThrottled,
		Timestamp:  s.now.Add(time.Second),
		UserID:     userID,
		Scope:      "user",
		RetryAfter: 30 * time.Second,
	}))
	// Failures that never resolved to an account carry no user.
	s.Require().NoError(s.store.Emit(s.ctx, audit.Event{
		Name:      audit.EventLoginFailed,
		Timestamp: s.now.Add(2 * time.Second),
	}))

	events, err := s.store.ListByUser(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.EventThrottled, events[0].Name)
	s.Equal("user", events[0].Scope)
	s.Equal(30*time.Second, events[0].RetryAfter)
	s.Equal(userID, events[1].UserID)
	s.Equal("192.0.2.1", events[1].IP)

	recent, err := s.store.ListRecent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.True(recent[0].UserID.IsNil())
}

func (s *AuditStoreSuite) TestAppendJoinsTransaction() {
	userID := id.UserID(uuid.New())
	rollback := errors.New("rollback")

	err := txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context, _ *sql.Tx) error {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Name:      audit.EventPersistenceRevoked,
			Timestamp: s.now,
			UserID:    userID,
		}))
		return rollback
	})
	s.Require().ErrorIs(err, rollback)

	events, err := s.store.ListByUser(s.ctx, userID)
	s.Require().NoError(err)
	s.Empty(events)
}
