// Package gate orchestrates a login: verify credentials, run the checkpoint
// chain, then bind a session or reject. It also drives the activation,
// reminder and remember-me flows over the token ledger.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/checkpoint"
	"warden/internal/gate/metrics"
	"warden/internal/gate/observability"
	sessionmodels "warden/internal/sessions/models"
	throttlemodels "warden/internal/throttle/models"
	tokenmodels "warden/internal/tokens/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

const tracerName = "warden/internal/gate"

type Config struct {
	// ResetIPOnSuccess clears the IP throttle scope after a successful login
	// in addition to the user scope.
	ResetIPOnSuccess bool
	// RotateRemembered swaps the persistence code on every remember-me resume.
	RotateRemembered bool
	// PersistenceTTL overrides the ledger default for remember-me tokens.
	PersistenceTTL time.Duration
}

// Gate is the credential gate. The event publisher is fixed at construction.
type Gate struct {
	users     UserStore
	sessions  SessionStore
	chain     Chain
	ledger    TokenLedger
	throttle  ThrottleResetter
	passwords PasswordUpdater
	publisher audit.Publisher
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithConfig(cfg Config) Option {
	return func(g *Gate) {
		g.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithPublisher(p audit.Publisher) Option {
	return func(g *Gate) {
		g.publisher = p
	}
}

// WithThrottleReset enables clearing throttle scopes after a successful login.
func WithThrottleReset(r ThrottleResetter) Option {
	return func(g *Gate) {
		g.throttle = r
	}
}

// WithPasswordUpdater enables CompleteReminder.
func WithPasswordUpdater(p PasswordUpdater) Option {
	return func(g *Gate) {
		g.passwords = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gate) {
		g.tracer = t
	}
}

func New(users UserStore, sessions SessionStore, chain Chain, ledger TokenLedger, opts ...Option) (*Gate, error) {
	if users == nil || sessions == nil || chain == nil || ledger == nil {
		return nil, errors.New("gate requires a user store, session store, checkpoint chain and token ledger")
	}
	g := &Gate{
		users:     users,
		sessions:  sessions,
		chain:     chain,
		ledger:    ledger,
		publisher: audit.Nop{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authenticate decides one login. Rejections are results; err is only set
// when a collaborator fails.
func (g *Gate) Authenticate(ctx context.Context, creds Credentials, opts LoginOptions) (*LoginResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Authenticate",
		trace.WithAttributes(attribute.Bool("gate.remember", opts.Remember)))
	defer span.End()
	start := time.Now()

	result, err := g.authenticate(ctx, creds, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return nil, err
	}

	reason := ""
	if result.Rejection != nil {
		reason = string(result.Rejection.Reason)
	}
	span.SetAttributes(
		attribute.String("gate.outcome", string(result.Outcome)),
		attribute.String("gate.reason", reason),
	)
	if g.metrics != nil {
		g.metrics.ObserveLogin(string(result.Outcome), reason, time.Since(start))
	}
	return result, nil
}

func (g *Gate) authenticate(ctx context.Context, creds Credentials, opts LoginOptions) (*LoginResult, error) {
	userID, ok, err := g.users.Verify(ctx, creds)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify credentials")
	}
	if !ok {
		rej, err := g.chain.NotifyFailure(ctx, creds)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
		}
		if rej == nil {
			rej = invalidCredentials()
		}
		g.emitRejection(ctx, id.UserID{}, rej)
		return rejected(id.UserID{}, rej), nil
	}

	user := checkpoint.User{ID: userID}
	rej, err := g.chain.Run(ctx, user, creds)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate checkpoints")
	}
	if rej != nil {
		if _, err := g.chain.NotifyFailure(ctx, creds); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
		}
		g.emitRejection(ctx, userID, rej)
		return rejected(userID, rej), nil
	}

	if err := g.resetThrottle(ctx, userID); err != nil {
		return nil, err
	}

	var code string
	if opts.Remember {
		token, err := g.ledger.Issue(ctx, tokenmodels.KindPersistence, userID, g.config.PersistenceTTL)
		if err != nil {
			return nil, err
		}
		code = token.Code
		observability.LogAudit(ctx, g.logger, g.publisher, audit.EventPersistenceCreated,
			"user_id", userID.String())
	}

	session, err := g.bind(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	observability.LogAudit(ctx, g.logger, g.publisher, audit.EventLoginSucceeded,
		"user_id", userID.String(),
		"remember", opts.Remember,
	)
	return &LoginResult{
		Outcome:         OutcomeSessionBound,
		UserID:          userID,
		Session:         session,
		PersistenceCode: code,
	}, nil
}

// Logout unbinds the session and revokes its persistence token. With
// everywhere set every persistence token and session of the user goes.
// Logging out an unknown or lapsed handle is a no-op.
func (g *Gate) Logout(ctx context.Context, handle id.SessionID, everywhere bool) error {
	ctx, span := g.tracer.Start(ctx, "gate.Logout",
		trace.WithAttributes(attribute.Bool("gate.everywhere", everywhere)))
	defer span.End()

	session, err := g.sessions.Resume(ctx, handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return g.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session"))
	}

	revoked := 0
	if everywhere {
		n, err := g.ledger.Revoke(ctx, tokenmodels.KindPersistence, session.UserID)
		if err != nil {
			return g.fail(span, err)
		}
		revoked = n
		if _, err := g.sessions.UnbindUser(ctx, session.UserID); err != nil {
			return g.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to unbind sessions"))
		}
	} else {
		if session.PersistenceCode != "" {
			ok, err := g.ledger.RevokeCode(ctx, tokenmodels.KindPersistence, session.PersistenceCode)
			if err != nil {
				return g.fail(span, err)
			}
			if ok {
				revoked = 1
			}
		}
		if err := g.sessions.Unbind(ctx, handle); err != nil {
			return g.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to unbind session"))
		}
	}

	if revoked > 0 {
		observability.LogAudit(ctx, g.logger, g.publisher, audit.EventPersistenceRevoked,
			"user_id", session.UserID.String(),
			"count", revoked,
		)
	}
	if g.metrics != nil {
		g.metrics.IncrementLogouts(everywhere)
	}
	return nil
}

// Resume re-admits a bound session through the chain's session checks.
func (g *Gate) Resume(ctx context.Context, handle id.SessionID) (*LoginResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Resume")
	defer span.End()

	session, err := g.sessions.Resume(ctx, handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		g.observeResume("session", OutcomeRejected)
		return rejected(id.UserID{}, invalidCredentials()), nil
	}
	if err != nil {
		return nil, g.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session"))
	}

	rej, err := g.chain.Check(ctx, checkpoint.User{ID: session.UserID})
	if err != nil {
		return nil, g.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate checkpoints"))
	}
	if rej != nil {
		g.observeResume("session", OutcomeRejected)
		return rejected(session.UserID, rej), nil
	}
	g.observeResume("session", OutcomeSessionBound)
	return &LoginResult{
		Outcome:         OutcomeSessionBound,
		UserID:          session.UserID,
		Session:         session,
		PersistenceCode: session.PersistenceCode,
	}, nil
}

// ResumeRemembered opens a new session from a persistence code. Revoked,
// expired or already rotated codes are rejected as invalid credentials.
func (g *Gate) ResumeRemembered(ctx context.Context, code string) (*LoginResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.ResumeRemembered")
	defer span.End()

	status, token, err := g.ledger.Lookup(ctx, tokenmodels.KindPersistence, code)
	if err != nil {
		return nil, g.fail(span, err)
	}
	if !status.OK() {
		g.observeResume("remembered", OutcomeRejected)
		observability.LogAudit(ctx, g.logger, g.publisher, audit.EventLoginFailed,
			"reason", string(checkpoint.ReasonInvalidCredentials),
			"token_status", string(status),
		)
		return rejected(id.UserID{}, invalidCredentials()), nil
	}
	userID := token.UserID

	rej, err := g.chain.Check(ctx, checkpoint.User{ID: userID})
	if err != nil {
		return nil, g.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate checkpoints"))
	}
	if rej != nil {
		g.observeResume("remembered", OutcomeRejected)
		g.emitRejection(ctx, userID, rej)
		return rejected(userID, rej), nil
	}

	if g.config.RotateRemembered {
		status, fresh, err := g.ledger.Rotate(ctx, userID, code)
		if err != nil {
			return nil, g.fail(span, err)
		}
		if !status.OK() {
			g.observeResume("remembered", OutcomeRejected)
			return rejected(userID, invalidCredentials()), nil
		}
		code = fresh.Code
	}

	session, err := g.bind(ctx, userID, code)
	if err != nil {
		return nil, g.fail(span, err)
	}
	g.observeResume("remembered", OutcomeSessionBound)
	observability.LogAudit(ctx, g.logger, g.publisher, audit.EventLoginSucceeded,
		"user_id", userID.String(),
		"reason", "remembered",
	)
	return &LoginResult{
		Outcome:         OutcomeSessionBound,
		UserID:          userID,
		Session:         session,
		PersistenceCode: code,
	}, nil
}

func (g *Gate) bind(ctx context.Context, userID id.UserID, code string) (*sessionmodels.Session, error) {
	session, err := g.sessions.Bind(ctx, sessionmodels.BindRequest{
		UserID:          userID,
		PersistenceCode: code,
		IP:              requestcontext.ClientIP(ctx),
		UserAgent:       requestcontext.UserAgent(ctx),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind session")
	}
	return session, nil
}

func (g *Gate) resetThrottle(ctx context.Context, userID id.UserID) error {
	if g.throttle == nil {
		return nil
	}
	if err := g.throttle.Reset(ctx, throttlemodels.ScopeUser, userID.String()); err != nil {
		return err
	}
	if ip := requestcontext.ClientIP(ctx); g.config.ResetIPOnSuccess && ip != "" {
		return g.throttle.Reset(ctx, throttlemodels.ScopeIP, ip)
	}
	return nil
}

func (g *Gate) emitRejection(ctx context.Context, userID id.UserID, rej *checkpoint.Rejection) {
	attrs := []any{"reason", string(rej.Reason)}
	if !userID.IsNil() {
		attrs = append(attrs, "user_id", userID.String())
	}
	if rej.Reason == checkpoint.ReasonThrottled {
		attrs = append(attrs, "scope", string(rej.Scope), "retry_after", rej.RetryAfter)
		observability.LogAudit(ctx, g.logger, g.publisher, audit.EventThrottled, attrs...)
	}
	observability.LogAudit(ctx, g.logger, g.publisher, audit.EventLoginFailed, attrs...)
}

func (g *Gate) observeResume(source string, outcome Outcome) {
	if g.metrics != nil {
		g.metrics.ObserveResume(source, string(outcome))
	}
}

func (g *Gate) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
