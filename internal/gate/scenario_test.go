package gate_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"warden/internal/checkpoint"
	"warden/internal/gate"
	sessionstore "warden/internal/sessions/store/memory"
	throttleconfig "warden/internal/throttle/config"
	throttlemodels "warden/internal/throttle/models"
	throttleservice "warden/internal/throttle/service"
	throttlestore "warden/internal/throttle/store/memory"
	tokenmodels "warden/internal/tokens/models"
	tokenservice "warden/internal/tokens/service"
	tokenstore "warden/internal/tokens/store/memory"
	userstore "warden/internal/users/store/memory"
	id "warden/pkg/domain"
	"warden/pkg/platform/audit"
	auditmemory "warden/pkg/platform/audit/store/memory"
	"warden/pkg/requestcontext"
	"warden/pkg/testutil"
)

type harness struct {
	gate   *gate.Gate
	users  *userstore.InMemoryUserStore
	ledger *tokenservice.Ledger
	engine *throttleservice.Engine
	events *auditmemory.InMemoryStore
	t0     time.Time
}

func newHarness(t *testing.T, cfg gate.Config) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		users:  userstore.New(userstore.WithCost(bcrypt.MinCost)),
		events: auditmemory.NewInMemoryStore(),
		t0:     time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}

	engine, err := throttleservice.New(throttlestore.New(),
		throttleservice.WithLogger(logger),
		throttleservice.WithConfig(throttleconfig.Config{
			Global: throttleconfig.ScopeConfig{
				Interval:   time.Hour,
				Thresholds: throttleconfig.MustThresholdTable(throttleconfig.Threshold{Attempts: 30, Delay: 15 * time.Minute}),
			},
			IP: throttleconfig.ScopeConfig{Interval: 15 * time.Minute, Limit: 20},
			User: throttleconfig.ScopeConfig{
				Interval:   time.Hour,
				Thresholds: throttleconfig.MustThresholdTable(throttleconfig.Threshold{Attempts: 5, Delay: time.Minute}),
			},
		}),
	)
	require.NoError(t, err)
	h.engine = engine

	ledger, err := tokenservice.New(tokenstore.New(), tokenservice.WithLogger(logger))
	require.NoError(t, err)
	h.ledger = ledger

	chain, err := checkpoint.Build([]string{checkpoint.NameThrottle, checkpoint.NameActivation}, checkpoint.Registry{
		checkpoint.NameThrottle:   checkpoint.NewThrottle(engine, h.users, checkpoint.WithThrottleLogger(logger)),
		checkpoint.NameActivation: checkpoint.NewActivation(ledger),
	})
	require.NoError(t, err)

	h.gate, err = gate.New(h.users, sessionstore.New(time.Hour), chain, ledger,
		gate.WithConfig(cfg),
		gate.WithThrottleReset(engine),
		gate.WithPasswordUpdater(h.users),
		gate.WithPublisher(h.events),
		gate.WithLogger(logger),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) at(d time.Duration) context.Context {
	return requestcontext.WithClientMetadata(requestcontext.WithTime(context.Background(), h.t0.Add(d)), "192.0.2.10", "test")
}

func (h *harness) register(t *testing.T, login, secret string, activate bool) id.UserID {
	t.Helper()
	user, err := h.users.Register(h.at(0), checkpoint.Credentials{"login": login, "password": secret})
	require.NoError(t, err)
	if activate {
		token, err := h.gate.CreateActivation(h.at(0), user.ID)
		require.NoError(t, err)
		status, err := h.gate.CompleteActivation(h.at(0), user.ID, token.Code)
		require.NoError(t, err)
		require.Equal(t, tokenmodels.StatusValid, status)
	}
	return user.ID
}

func (h *harness) names(t *testing.T) []audit.EventName {
	events, err := h.events.ListAll(context.Background())
	require.NoError(t, err)
	out := make([]audit.EventName, len(events))
	for i, e := range events {
		out[i] = e.Name
	}
	return out
}

func TestLogoutInvalidatesRememberedLogin(t *testing.T) {
	h := newHarness(t, gate.Config{})
	alice := h.register(t, "alice", "correct horse", true)
	creds := gate.Credentials{"login": "alice", "password": "correct horse"}

	var login *gate.LoginResult
	testutil.Given(t, "a remembered login", func(t *testing.T) {
		res, err := h.gate.Authenticate(h.at(time.Minute), creds, gate.LoginOptions{Remember: true})
		require.NoError(t, err)
		require.True(t, res.Bound())
		require.NotEmpty(t, res.PersistenceCode)
		login = res
	})

	testutil.When(t, "the session logs out", func(t *testing.T) {
		require.NoError(t, h.gate.Logout(h.at(2*time.Minute), login.Session.Handle, false))
	})

	testutil.Then(t, "the persistence token no longer validates", func(t *testing.T) {
		status, _, err := h.ledger.Validate(h.at(3*time.Minute), tokenmodels.KindPersistence, alice, login.PersistenceCode)
		require.NoError(t, err)
		assert.False(t, status.OK())
	})

	testutil.Then(t, "a replayed remember-me resume is rejected", func(t *testing.T) {
		res, err := h.gate.ResumeRemembered(h.at(3*time.Minute), login.PersistenceCode)
		require.NoError(t, err)
		assert.Equal(t, gate.OutcomeRejected, res.Outcome)
		assert.Equal(t, checkpoint.ReasonInvalidCredentials, res.Rejection.Reason)
	})

	testutil.Then(t, "the session handle is gone", func(t *testing.T) {
		res, err := h.gate.Resume(h.at(3*time.Minute), login.Session.Handle)
		require.NoError(t, err)
		assert.Equal(t, gate.OutcomeRejected, res.Outcome)
	})
}

func TestRememberedResumeRotates(t *testing.T) {
	h := newHarness(t, gate.Config{RotateRemembered: true})
	h.register(t, "bob", "pw", true)

	first, err := h.gate.Authenticate(h.at(0), gate.Credentials{"login": "bob", "password": "pw"}, gate.LoginOptions{Remember: true})
	require.NoError(t, err)

	resumed, err := h.gate.ResumeRemembered(h.at(time.Hour), first.PersistenceCode)
	require.NoError(t, err)
	require.True(t, resumed.Bound())
	assert.NotEqual(t, first.PersistenceCode, resumed.PersistenceCode)

	replay, err := h.gate.ResumeRemembered(h.at(time.Hour), first.PersistenceCode)
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeRejected, replay.Outcome)
}

func TestUnactivatedUserCannotLogIn(t *testing.T) {
	h := newHarness(t, gate.Config{})
	carol := h.register(t, "carol", "pw", false)
	creds := gate.Credentials{"login": "carol", "password": "pw"}

	res, err := h.gate.Authenticate(h.at(0), creds, gate.LoginOptions{})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ReasonNotActivated, res.Rejection.Reason)

	check, err := h.engine.CheckScope(h.at(0), throttlemodels.ScopeUser, carol.String())
	require.NoError(t, err)
	assert.Equal(t, 1, check.Attempts, "checkpoint vetoes count as failures")

	token, err := h.gate.CreateActivation(h.at(0), carol)
	require.NoError(t, err)
	status, err := h.gate.CompleteActivation(h.at(time.Minute), carol, token.Code)
	require.NoError(t, err)
	require.Equal(t, tokenmodels.StatusValid, status)

	res, err = h.gate.Authenticate(h.at(2*time.Minute), creds, gate.LoginOptions{})
	require.NoError(t, err)
	assert.True(t, res.Bound())

	check, err = h.engine.CheckScope(h.at(2*time.Minute), throttlemodels.ScopeUser, carol.String())
	require.NoError(t, err)
	assert.Zero(t, check.Attempts, "success resets the user scope")
}

func TestUserLockoutScenario(t *testing.T) {
	h := newHarness(t, gate.Config{})
	h.register(t, "alice", "right", true)
	wrong := gate.Credentials{"login": "alice", "password": "wrong"}
	right := gate.Credentials{"login": "alice", "password": "right"}

	for i := range 5 {
		res, err := h.gate.Authenticate(h.at(time.Duration(i*2)*time.Minute), wrong, gate.LoginOptions{})
		require.NoError(t, err)
		require.Equal(t, checkpoint.ReasonInvalidCredentials, res.Rejection.Reason)
	}

	res, err := h.gate.Authenticate(h.at(8*time.Minute+30*time.Second), right, gate.LoginOptions{})
	require.NoError(t, err)
	require.Equal(t, checkpoint.ReasonThrottled, res.Rejection.Reason)
	assert.Equal(t, throttlemodels.ScopeUser, res.Rejection.Scope)
	assert.Equal(t, 30*time.Second, res.Rejection.RetryAfter)

	// Throttled retries are not counted, so the lock still ends at 9m.
	res, err = h.gate.Authenticate(h.at(8*time.Minute+50*time.Second), right, gate.LoginOptions{})
	require.NoError(t, err)
	require.Equal(t, checkpoint.ReasonThrottled, res.Rejection.Reason)
	assert.Equal(t, 10*time.Second, res.Rejection.RetryAfter)

	res, err = h.gate.Authenticate(h.at(8*time.Minute+61*time.Second), right, gate.LoginOptions{})
	require.NoError(t, err)
	assert.True(t, res.Bound())
}

func TestRetriesDuringLockoutDoNotExtendIt(t *testing.T) {
	h := newHarness(t, gate.Config{})
	erin := h.register(t, "erin", "right", true)
	wrong := gate.Credentials{"login": "erin", "password": "wrong"}

	for i := range 5 {
		_, err := h.gate.Authenticate(h.at(time.Duration(i)*time.Second), wrong, gate.LoginOptions{})
		require.NoError(t, err)
	}

	// Hammering wrong passwords every 20s while locked changes nothing.
	for d := 20 * time.Second; d < time.Minute; d += 20 * time.Second {
		res, err := h.gate.Authenticate(h.at(d), wrong, gate.LoginOptions{})
		require.NoError(t, err)
		require.Equal(t, checkpoint.ReasonThrottled, res.Rejection.Reason)
	}

	check, err := h.engine.CheckScope(h.at(time.Minute), throttlemodels.ScopeUser, erin.String())
	require.NoError(t, err)
	assert.Equal(t, 5, check.Attempts)

	res, err := h.gate.Authenticate(h.at(4*time.Second+61*time.Second), gate.Credentials{"login": "erin", "password": "right"}, gate.LoginOptions{})
	require.NoError(t, err)
	assert.True(t, res.Bound())
}

func TestReminderFlowRevokesRememberedDevices(t *testing.T) {
	h := newHarness(t, gate.Config{})
	dave := h.register(t, "dave", "old-pw", true)

	login, err := h.gate.Authenticate(h.at(0), gate.Credentials{"login": "dave", "password": "old-pw"}, gate.LoginOptions{Remember: true})
	require.NoError(t, err)
	require.True(t, login.Bound())

	reminder, err := h.gate.CreateReminder(h.at(time.Minute), dave)
	require.NoError(t, err)

	status, err := h.gate.CompleteReminder(h.at(2*time.Minute), dave, reminder.Code, "new-pw")
	require.NoError(t, err)
	require.Equal(t, tokenmodels.StatusValid, status)

	again, err := h.gate.CompleteReminder(h.at(3*time.Minute), dave, reminder.Code, "other")
	require.NoError(t, err)
	assert.Equal(t, tokenmodels.StatusNotFound, again, "a used reminder cannot be replayed")

	res, err := h.gate.ResumeRemembered(h.at(3*time.Minute), login.PersistenceCode)
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeRejected, res.Outcome)

	res, err = h.gate.Authenticate(h.at(4*time.Minute), gate.Credentials{"login": "dave", "password": "new-pw"}, gate.LoginOptions{})
	require.NoError(t, err)
	assert.True(t, res.Bound())

	assert.Contains(t, h.names(t), audit.EventReminderCompleted)
	assert.Contains(t, h.names(t), audit.EventPersistenceRevoked)
}
