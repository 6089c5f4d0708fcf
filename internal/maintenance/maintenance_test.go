package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	throttlemodels "warden/internal/throttle/models"
	throttlestore "warden/internal/throttle/store/memory"
	tokenmodels "warden/internal/tokens/models"
	tokenservice "warden/internal/tokens/service"
	tokenstore "warden/internal/tokens/store/memory"
	id "warden/pkg/domain"
	"warden/pkg/requestcontext"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSweep_CollectsExpiredTokensAndIdleThrottleRecords(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ledger, err := tokenservice.New(tokenstore.New(), tokenservice.WithLogger(quiet))
	require.NoError(t, err)
	user := id.UserID(uuid.New())
	_, err = ledger.Issue(requestcontext.WithTime(context.Background(), t0), tokenmodels.KindReminder, user, time.Hour)
	require.NoError(t, err)
	live, err := ledger.Issue(requestcontext.WithTime(context.Background(), t0.Add(48*time.Hour)), tokenmodels.KindReminder, user, time.Hour)
	require.NoError(t, err)

	throttle := throttlestore.New()
	_, err = throttle.RecordAttempt(context.Background(), throttlemodels.Key(throttlemodels.ScopeIP, "192.0.2.1"), t0, time.Hour)
	require.NoError(t, err)
	_, err = throttle.RecordAttempt(context.Background(), throttlemodels.Key(throttlemodels.ScopeIP, "192.0.2.2"), t0.Add(48*time.Hour), time.Hour)
	require.NoError(t, err)

	s := New(ledger, time.Minute,
		WithLogger(quiet),
		WithThrottlePruner(throttle, 24*time.Hour),
		WithClock(func() time.Time { return t0.Add(48 * time.Hour) }),
	)

	res := s.Sweep(context.Background())
	assert.Equal(t, Result{Tokens: 1, Throttle: 1}, res)

	status, _, err := ledger.Validate(requestcontext.WithTime(context.Background(), t0.Add(48*time.Hour)), tokenmodels.KindReminder, user, live.Code)
	require.NoError(t, err)
	assert.Equal(t, tokenmodels.StatusValid, status)
}

type failingCollector struct{ calls atomic.Int32 }

func (f *failingCollector) DeleteExpired(context.Context) (int, error) {
	f.calls.Add(1)
	return 0, errors.New("store down")
}

func TestSweep_FailureIsLoggedNotFatal(t *testing.T) {
	c := &failingCollector{}
	s := New(c, time.Minute, WithLogger(quiet))
	assert.Equal(t, Result{}, s.Sweep(context.Background()))
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := &failingCollector{}
	s := New(c, time.Millisecond, WithLogger(quiet))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return c.calls.Load() > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
