// Package service implements the throttle engine: sliding-window attempt
// tracking with escalating lockouts at global, IP and user scope.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/throttle/config"
	"warden/internal/throttle/metrics"
	"warden/internal/throttle/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
)

// Store persists throttle records. Get returns (nil, nil) for an unknown key.
// RecordAttempt must append and prune atomically with respect to readers.
type Store interface {
	Get(ctx context.Context, key string) (*models.Record, error)
	RecordAttempt(ctx context.Context, key string, at time.Time, interval time.Duration) (*models.Record, error)
	ExtendLock(ctx context.Context, key string, until time.Time) error
	Clear(ctx context.Context, key string) error
}

type Engine struct {
	store   Store
	config  config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New validates the configuration; a malformed table fails here rather than
// on the first login.
func New(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("throttle store is required")
	}
	e := &Engine{
		store:  store,
		config: config.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid throttle config: %w", err)
	}
	return e, nil
}

func (e *Engine) scopeConfig(scope models.Scope) config.ScopeConfig {
	switch models.MustScope(scope) {
	case models.ScopeGlobal:
		return e.config.Global
	case models.ScopeIP:
		return e.config.IP
	default:
		return e.config.User
	}
}

// CheckScope evaluates one scope at the request time.
func (e *Engine) CheckScope(ctx context.Context, scope models.Scope, subject string) (*models.CheckResult, error) {
	return e.checkAt(ctx, scope, subject, requestcontext.Now(ctx))
}

func (e *Engine) checkAt(ctx context.Context, scope models.Scope, subject string, now time.Time) (*models.CheckResult, error) {
	key := models.Key(scope, subject)
	rec, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load throttle record")
	}
	res := Evaluate(scope, key, rec, e.scopeConfig(scope), now)
	if e.metrics != nil {
		e.metrics.ObserveCheck(scope, res.Allowed)
	}
	return res, nil
}

// CheckAll evaluates global, then IP, then user scope with a single
// timestamp and returns the first locked result. An empty ip or nil user
// skips that scope. When nothing is locked the result is Allowed with no scope.
func (e *Engine) CheckAll(ctx context.Context, ip string, userID id.UserID) (*models.CheckResult, error) {
	now := requestcontext.Now(ctx)
	for _, scope := range models.Scopes {
		subject, ok := subjectFor(scope, ip, userID)
		if !ok {
			continue
		}
		res, err := e.checkAt(ctx, scope, subject, now)
		if err != nil {
			return nil, err
		}
		if res.Locked() {
			return res, nil
		}
	}
	return &models.CheckResult{Allowed: true}, nil
}

// RecordFailure appends a failed attempt at the given time and persists the
// resulting lock, if any. Recorded attempts are never rolled back.
func (e *Engine) RecordFailure(ctx context.Context, scope models.Scope, subject string, at time.Time) (*models.Record, error) {
	key := models.Key(scope, subject)
	cfg := e.scopeConfig(scope)

	rec, err := e.store.RecordAttempt(ctx, key, at, cfg.Interval)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record throttle attempt")
	}
	if e.metrics != nil {
		e.metrics.IncrementFailures(scope)
	}

	res := Evaluate(scope, key, &models.Record{Key: key, Attempts: rec.Attempts}, cfg, at)
	if res.Allowed {
		return rec, nil
	}
	if rec.LockedUntil != nil && !res.Until.After(*rec.LockedUntil) {
		return rec, nil
	}

	if err := e.store.ExtendLock(ctx, key, res.Until); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist throttle lock")
	}
	until := res.Until
	rec.LockedUntil = &until
	if e.metrics != nil {
		e.metrics.IncrementLocks(scope)
	}
	e.logger.InfoContext(ctx, "throttle lock applied",
		"scope", string(scope),
		"key", key,
		"attempts", res.Attempts,
		"locked_until", until,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rec, nil
}

// Reset clears the scope's record.
func (e *Engine) Reset(ctx context.Context, scope models.Scope, subject string) error {
	key := models.Key(scope, subject)
	if err := e.store.Clear(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset throttle record")
	}
	if e.metrics != nil {
		e.metrics.IncrementResets(scope)
	}
	return nil
}

func subjectFor(scope models.Scope, ip string, userID id.UserID) (string, bool) {
	switch scope {
	case models.ScopeGlobal:
		return "", true
	case models.ScopeIP:
		return ip, ip != ""
	default:
		return userID.String(), !userID.IsNil()
	}
}

// Evaluate computes the lock state of a record at now. Only attempts in
// (now-interval, now] count. In threshold mode the delay is the entry with the
// greatest attempt count not above the observed count, measured from the
// newest counted attempt. In limit mode exceeding the limit locks until the
// oldest counted attempt leaves the window. A stored LockedUntil also locks;
// the later expiry wins.
func Evaluate(scope models.Scope, key string, rec *models.Record, cfg config.ScopeConfig, now time.Time) *models.CheckResult {
	window := rec.InWindow(now, cfg.Interval)
	res := &models.CheckResult{Scope: scope, Key: key, Allowed: true, Attempts: len(window)}

	var until time.Time
	if n := len(window); n > 0 {
		if cfg.Limit > 0 {
			if n > cfg.Limit {
				until = window[0].Add(cfg.Interval)
			}
		} else if delay, ok := cfg.Thresholds.DelayFor(n); ok {
			until = window[n-1].Add(delay)
		}
	}
	if rec != nil && rec.LockedUntil != nil && rec.LockedUntil.After(until) {
		until = *rec.LockedUntil
	}

	if now.Before(until) {
		res.Allowed = false
		res.Until = until
		res.RetryAfter = until.Sub(now)
	}
	return res
}
