// Package maintenance garbage-collects expired tokens and idle throttle
// records on a fixed interval.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"warden/pkg/requestcontext"
)

type TokenCollector interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// ThrottlePruner is implemented by throttle stores without native expiry.
type ThrottlePruner interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper runs the periodic collection.
type Sweeper struct {
	tokens    TokenCollector
	throttle  ThrottlePruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithThrottlePruner drops throttle records with no activity for retention.
func WithThrottlePruner(p ThrottlePruner, retention time.Duration) Option {
	return func(s *Sweeper) {
		s.throttle = p
		s.retention = retention
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(tokens TokenCollector, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		tokens:   tokens,
		interval: interval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps every interval until ctx is cancelled. Sweep failures are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// Result reports what one sweep removed.
type Result struct {
	Tokens   int
	Throttle int
}

// Sweep runs one collection pass at the sweeper's clock.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	now := s.now()
	ctx = requestcontext.WithTime(ctx, now)
	var res Result

	n, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "token sweep failed", "error", err)
	} else {
		res.Tokens = n
	}

	if s.throttle != nil {
		n, err := s.throttle.DeleteStale(ctx, now.Add(-s.retention))
		if err != nil {
			s.logger.ErrorContext(ctx, "throttle sweep failed", "error", err)
		} else {
			res.Throttle = n
		}
	}

	if res.Tokens > 0 || res.Throttle > 0 {
		s.logger.InfoContext(ctx, "maintenance sweep",
			"tokens_removed", res.Tokens,
			"throttle_records_removed", res.Throttle,
		)
	}
	return res
}
