// Package fallback keeps throttling alive while the shared store is down.
// Calls go to the primary store; once the circuit opens they are served by
// an in-process store until the primary answers reliably again.
package fallback

import (
	"context"
	"log/slog"
	"time"

	"warden/internal/throttle/models"
	"warden/pkg/platform/circuit"
)

// Store is the throttle store contract shared by primary and fallback.
type Store interface {
	Get(ctx context.Context, key string) (*models.Record, error)
	RecordAttempt(ctx context.Context, key string, at time.Time, interval time.Duration) (*models.Record, error)
	ExtendLock(ctx context.Context, key string, until time.Time) error
	Clear(ctx context.Context, key string) error
}

// FallbackThrottleStore routes to the fallback store while the breaker is open.
// The primary is still called on every operation so it can close the breaker.
type FallbackThrottleStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func New(primary, fallback Store, breaker *circuit.Breaker, logger *slog.Logger) *FallbackThrottleStore {
	if breaker == nil {
		breaker = circuit.New("throttle-store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackThrottleStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// Degraded reports whether requests are currently served by the fallback.
func (s *FallbackThrottleStore) Degraded() bool { return s.breaker.IsOpen() }

func (s *FallbackThrottleStore) Get(ctx context.Context, key string) (*models.Record, error) {
	return route(s, ctx, func(st Store) (*models.Record, error) { return st.Get(ctx, key) })
}

func (s *FallbackThrottleStore) RecordAttempt(ctx context.Context, key string, at time.Time, interval time.Duration) (*models.Record, error) {
	return route(s, ctx, func(st Store) (*models.Record, error) { return st.RecordAttempt(ctx, key, at, interval) })
}

func (s *FallbackThrottleStore) ExtendLock(ctx context.Context, key string, until time.Time) error {
	_, err := route(s, ctx, func(st Store) (struct{}, error) { return struct{}{}, st.ExtendLock(ctx, key, until) })
	return err
}

func (s *FallbackThrottleStore) Clear(ctx context.Context, key string) error {
	_, err := route(s, ctx, func(st Store) (struct{}, error) { return struct{}{}, st.Clear(ctx, key) })
	return err
}

func route[T any](s *FallbackThrottleStore, ctx context.Context, op func(Store) (T, error)) (T, error) {
	wasOpen := s.breaker.IsOpen()
	var fbResult T
	var fbErr error
	if wasOpen {
		// keep the fallback's view current while degraded
		fbResult, fbErr = op(s.fallback)
	}

	result, err := op(s.primary)
	if err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.ErrorContext(ctx, "throttle store unavailable, switching to in-memory fallback", "error", err)
		}
		if !useFallback {
			return result, err
		}
		if !wasOpen {
			return op(s.fallback)
		}
		return fbResult, fbErr
	}

	usePrimary, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "throttle store recovered, leaving fallback")
	}
	if usePrimary {
		return result, nil
	}
	return fbResult, fbErr
}
