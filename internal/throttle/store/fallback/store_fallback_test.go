package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/throttle/models"
	"warden/internal/throttle/store/memory"
	"warden/pkg/platform/circuit"
)

// flakyStore wraps a memory store and fails while down is set.
type flakyStore struct {
	*memory.InMemoryThrottleStore
	down bool
}

var errDown = errors.New("connection refused")

func (f *flakyStore) Get(ctx context.Context, key string) (*models.Record, error) {
	if f.down {
		return nil, errDown
	}
	return f.InMemoryThrottleStore.Get(ctx, key)
}

func (f *flakyStore) RecordAttempt(ctx context.Context, key string, at time.Time, interval time.Duration) (*models.Record, error) {
	if f.down {
		return nil, errDown
	}
	return f.InMemoryThrottleStore.RecordAttempt(ctx, key, at, interval)
}

func (f *flakyStore) ExtendLock(ctx context.Context, key string, until time.Time) error {
	if f.down {
		return errDown
	}
	return f.InMemoryThrottleStore.ExtendLock(ctx, key, until)
}

func (f *flakyStore) Clear(ctx context.Context, key string) error {
	if f.down {
		return errDown
	}
	return f.InMemoryThrottleStore.Clear(ctx, key)
}

func TestFallbackThrottleStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	primary := &flakyStore{InMemoryThrottleStore: memory.New()}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(2))
	store := New(primary, memory.New(), breaker, nil)

	t.Run("healthy primary serves requests", func(t *testing.T) {
		rec, err := store.RecordAttempt(ctx, "k", now, time.Hour)
		require.NoError(t, err)
		assert.Len(t, rec.Attempts, 1)
		assert.False(t, store.Degraded())
	})

	t.Run("failures below threshold surface as errors", func(t *testing.T) {
		primary.down = true
		_, err := store.Get(ctx, "k")
		assert.ErrorIs(t, err, errDown)
		assert.False(t, store.Degraded())
	})

	t.Run("threshold failure switches to fallback", func(t *testing.T) {
		rec, err := store.RecordAttempt(ctx, "k", now, time.Hour)
		require.NoError(t, err)
		assert.Len(t, rec.Attempts, 1, "fallback starts empty")
		assert.True(t, store.Degraded())

		rec, err = store.RecordAttempt(ctx, "k", now.Add(time.Second), time.Hour)
		require.NoError(t, err)
		assert.Len(t, rec.Attempts, 2)
	})

	t.Run("recovery closes after consecutive successes", func(t *testing.T) {
		primary.down = false
		_, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, store.Degraded())

		rec, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, store.Degraded())
		assert.Len(t, rec.Attempts, 1, "primary state is authoritative again")
	})
}
