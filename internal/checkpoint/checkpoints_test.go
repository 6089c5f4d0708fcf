package checkpoint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	throttleconfig "warden/internal/throttle/config"
	throttlemodels "warden/internal/throttle/models"
	throttleservice "warden/internal/throttle/service"
	throttlestore "warden/internal/throttle/store/memory"
	tokenmodels "warden/internal/tokens/models"
	tokenservice "warden/internal/tokens/service"
	tokenstore "warden/internal/tokens/store/memory"
	id "warden/pkg/domain"
	"warden/pkg/requestcontext"
)

type mapFinder map[string]id.UserID

func (m mapFinder) FindByCredentials(_ context.Context, creds Credentials) (id.UserID, bool, error) {
	uid, ok := m[creds.Login()]
	return uid, ok, nil
}

type CheckpointsSuite struct {
	suite.Suite
	engine   *throttleservice.Engine
	ledger   *tokenservice.Ledger
	users    mapFinder
	throttle *Throttle
	chain    *Chain
	t0       time.Time
	alice    id.UserID
}

func TestCheckpointsSuite(t *testing.T) {
	suite.Run(t, new(CheckpointsSuite))
}

func (s *CheckpointsSuite) SetupTest() {
	s.t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := throttleservice.New(throttlestore.New(),
		throttleservice.WithLogger(logger),
		throttleservice.WithConfig(throttleconfig.Config{
			Global: throttleconfig.ScopeConfig{
				Interval:   time.Hour,
				Thresholds: throttleconfig.MustThresholdTable(throttleconfig.Threshold{Attempts: 30, Delay: 15 * time.Minute}),
			},
			IP: throttleconfig.ScopeConfig{Interval: 15 * time.Minute, Limit: 50},
			User: throttleconfig.ScopeConfig{
				Interval:   time.Hour,
				Thresholds: throttleconfig.MustThresholdTable(throttleconfig.Threshold{Attempts: 5, Delay: time.Minute}),
			},
		}),
	)
	s.Require().NoError(err)
	s.engine = engine

	ledger, err := tokenservice.New(tokenstore.New(), tokenservice.WithLogger(logger))
	s.Require().NoError(err)
	s.ledger = ledger

	s.alice = id.UserID(uuid.New())
	s.users = mapFinder{"alice": s.alice}
	s.throttle = NewThrottle(engine, s.users, WithThrottleLogger(logger))
	s.chain, err = Build([]string{NameThrottle, NameActivation}, Registry{
		NameThrottle:   s.throttle,
		NameActivation: NewActivation(ledger),
	})
	s.Require().NoError(err)
}

func (s *CheckpointsSuite) at(d time.Duration, ip string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.t0.Add(d))
	return requestcontext.WithClientMetadata(ctx, ip, "test")
}

func (s *CheckpointsSuite) activate(user id.UserID) {
	token, err := s.ledger.Issue(s.at(0, ""), tokenmodels.KindActivation, user, 0)
	s.Require().NoError(err)
	_, _, err = s.ledger.Complete(s.at(0, ""), tokenmodels.KindActivation, token.Code)
	s.Require().NoError(err)
}

func (s *CheckpointsSuite) TestActivationRejectsPendingUser() {
	rej, err := s.chain.Run(s.at(0, "10.0.0.1"), User{ID: s.alice}, Credentials{"login": "alice"})
	s.Require().NoError(err)
	s.Require().NotNil(rej)
	s.Equal(ReasonNotActivated, rej.Reason)
	s.Equal(NameActivation, rej.Checkpoint)

	s.activate(s.alice)
	rej, err = s.chain.Run(s.at(0, "10.0.0.1"), User{ID: s.alice}, Credentials{"login": "alice"})
	s.Require().NoError(err)
	s.Nil(rej)

	rej, err = s.chain.Check(s.at(0, ""), User{ID: s.alice})
	s.Require().NoError(err)
	s.Nil(rej)
}

func (s *CheckpointsSuite) TestUserScopeLockout() {
	s.activate(s.alice)
	creds := Credentials{"login": "alice", "password": "wrong"}

	for i := range 5 {
		rej, err := s.chain.NotifyFailure(s.at(time.Duration(i*2)*time.Minute, "10.0.0.1"), creds)
		s.Require().NoError(err)
		s.Nil(rej, "attempt %d is not yet throttled", i+1)
	}

	rej, err := s.chain.Run(s.at(8*time.Minute+20*time.Second, "10.0.0.2"), User{ID: s.alice}, creds)
	s.Require().NoError(err)
	s.Require().NotNil(rej)
	s.Equal(ReasonThrottled, rej.Reason)
	s.Equal(throttlemodels.ScopeUser, rej.Scope)
	s.Equal(40*time.Second, rej.RetryAfter)

	rej, err = s.chain.Run(s.at(8*time.Minute+61*time.Second, "10.0.0.2"), User{ID: s.alice}, creds)
	s.Require().NoError(err)
	s.Nil(rej)
}

func (s *CheckpointsSuite) TestFailWhileLockedReportsThrottled() {
	creds := Credentials{"login": "alice"}
	for range 5 {
		_, err := s.throttle.Fail(s.at(0, ""), creds)
		s.Require().NoError(err)
	}

	rej, err := s.throttle.Fail(s.at(time.Second, ""), creds)
	s.Require().NoError(err)
	s.Require().NotNil(rej)
	s.Equal(ReasonThrottled, rej.Reason)

	res, err := s.engine.CheckScope(s.at(time.Second, ""), throttlemodels.ScopeUser, s.alice.String())
	s.Require().NoError(err)
	s.Equal(5, res.Attempts, "throttled attempts are not recorded")
	s.Equal(s.t0.Add(time.Minute), res.Until, "retrying does not extend the lock")

	for _, d := range []time.Duration{10 * time.Second, 30 * time.Second, 50 * time.Second} {
		rej, err = s.throttle.Fail(s.at(d, ""), creds)
		s.Require().NoError(err)
		s.Require().NotNil(rej)
		s.Equal(ReasonThrottled, rej.Reason)
	}

	rej, err = s.throttle.Login(s.at(time.Minute+time.Second, ""), User{ID: s.alice}, creds)
	s.Require().NoError(err)
	s.Nil(rej, "lock expires on schedule despite retries")
}

func (s *CheckpointsSuite) TestGlobalThresholdLocksEveryone() {
	for i := range 30 {
		creds := Credentials{"login": fmt.Sprintf("user-%d", i)}
		s.users[creds.Login()] = id.UserID(uuid.New())
		ip := fmt.Sprintf("192.0.2.%d", i+1)
		_, err := s.chain.NotifyFailure(s.at(time.Duration(i)*time.Minute, ip), creds)
		s.Require().NoError(err)
	}

	bob := id.UserID(uuid.New())
	s.activate(bob)
	rej, err := s.chain.Run(s.at(31*time.Minute, "198.51.100.7"), User{ID: bob}, Credentials{"login": "bob"})
	s.Require().NoError(err)
	s.Require().NotNil(rej)
	s.Equal(ReasonThrottled, rej.Reason)
	s.Equal(throttlemodels.ScopeGlobal, rej.Scope)
}

func (s *CheckpointsSuite) TestUnknownUserOnlyCountsGlobalAndIP() {
	_, err := s.throttle.Fail(s.at(0, "203.0.113.9"), Credentials{"login": "ghost"})
	s.Require().NoError(err)

	res, err := s.engine.CheckScope(s.at(0, ""), throttlemodels.ScopeIP, "203.0.113.9")
	s.Require().NoError(err)
	s.Equal(1, res.Attempts)
	res, err = s.engine.CheckScope(s.at(0, ""), throttlemodels.ScopeGlobal, "")
	s.Require().NoError(err)
	s.Equal(1, res.Attempts)
}
