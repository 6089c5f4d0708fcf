package checkpoint

import (
	"context"
	"log/slog"
	"time"

	throttlemodels "warden/internal/throttle/models"
	id "warden/pkg/domain"
	"warden/pkg/requestcontext"
)

const NameThrottle = "throttle"

// ThrottleEngine is the slice of the throttle engine the checkpoint uses.
type ThrottleEngine interface {
	CheckAll(ctx context.Context, ip string, userID id.UserID) (*throttlemodels.CheckResult, error)
	RecordFailure(ctx context.Context, scope throttlemodels.Scope, subject string, at time.Time) (*throttlemodels.Record, error)
}

// UserFinder resolves credentials to a user without verifying the secret.
// ok is false when no user matches.
type UserFinder interface {
	FindByCredentials(ctx context.Context, creds Credentials) (userID id.UserID, ok bool, err error)
}

// Throttle refuses logins while any throttle scope is locked and records
// failed attempts against every applicable scope.
type Throttle struct {
	engine ThrottleEngine
	users  UserFinder
	logger *slog.Logger
}

type ThrottleOption func(*Throttle)

func WithThrottleLogger(logger *slog.Logger) ThrottleOption {
	return func(t *Throttle) {
		t.logger = logger
	}
}

func NewThrottle(engine ThrottleEngine, users UserFinder, opts ...ThrottleOption) *Throttle {
	t := &Throttle{engine: engine, users: users, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Throttle) Name() string { return NameThrottle }

func (t *Throttle) Login(ctx context.Context, user User, _ Credentials) (*Rejection, error) {
	return t.check(ctx, user.ID)
}

// Fail checks before recording, so a caller who is already locked out is
// told Throttled rather than InvalidCredentials. Throttled attempts are not
// recorded; otherwise every retry during a lockout would push it further out.
func (t *Throttle) Fail(ctx context.Context, creds Credentials) (*Rejection, error) {
	var userID id.UserID
	if t.users != nil && creds.Login() != "" {
		found, ok, err := t.users.FindByCredentials(ctx, creds)
		if err != nil {
			return nil, err
		}
		if ok {
			userID = found
		}
	}

	rej, err := t.check(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rej != nil {
		return rej, nil
	}

	at := requestcontext.Now(ctx)
	ip := requestcontext.ClientIP(ctx)
	if _, err := t.engine.RecordFailure(ctx, throttlemodels.ScopeGlobal, "", at); err != nil {
		return nil, err
	}
	if ip != "" {
		if _, err := t.engine.RecordFailure(ctx, throttlemodels.ScopeIP, ip, at); err != nil {
			return nil, err
		}
	}
	if !userID.IsNil() {
		if _, err := t.engine.RecordFailure(ctx, throttlemodels.ScopeUser, userID.String(), at); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (t *Throttle) check(ctx context.Context, userID id.UserID) (*Rejection, error) {
	res, err := t.engine.CheckAll(ctx, requestcontext.ClientIP(ctx), userID)
	if err != nil {
		return nil, err
	}
	if !res.Locked() {
		return nil, nil
	}
	t.logger.InfoContext(ctx, "login throttled",
		"scope", string(res.Scope),
		"retry_after", res.RetryAfter,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Rejection{
		Reason:     ReasonThrottled,
		Checkpoint: NameThrottle,
		Scope:      res.Scope,
		RetryAfter: res.RetryAfter,
	}, nil
}
