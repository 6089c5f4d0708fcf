// Package service implements the token ledger: issuance, validation and
// single-use completion of activation, reminder and persistence tokens.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/tokens/config"
	"warden/internal/tokens/metrics"
	"warden/internal/tokens/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

const codeBytes = 32

// Store persists tokens keyed by kind and code.
//
// Complete must check and mark in one atomic step. It returns the stored token
// together with sentinel.ErrAlreadyUsed or sentinel.ErrExpired when the token
// cannot be completed, and sentinel.ErrNotFound when the code is unknown.
// DeleteByUser only removes uncompleted tokens.
type Store interface {
	Create(ctx context.Context, token *models.Token) error
	Find(ctx context.Context, kind models.Kind, code string) (*models.Token, error)
	Complete(ctx context.Context, kind models.Kind, code string, now time.Time) (*models.Token, error)
	DeleteByCode(ctx context.Context, kind models.Kind, code string) error
	DeleteByUser(ctx context.Context, kind models.Kind, userID id.UserID) (int, error)
	HasCompleted(ctx context.Context, kind models.Kind, userID id.UserID) (bool, error)
	HasPending(ctx context.Context, kind models.Kind, userID id.UserID, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// CodeGenerator returns a fresh unguessable token code.
type CodeGenerator func() (string, error)

// NewCode returns 32 random bytes encoded as unpadded base64url.
func NewCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type Ledger struct {
	store   Store
	config  config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	newCode CodeGenerator
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithConfig(cfg config.Config) Option {
	return func(l *Ledger) {
		l.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func WithCodeGenerator(gen CodeGenerator) Option {
	return func(l *Ledger) {
		l.newCode = gen
	}
}

func New(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	l := &Ledger{
		store:   store,
		config:  config.DefaultConfig(),
		logger:  slog.Default(),
		newCode: NewCode,
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token config: %w", err)
	}
	return l, nil
}

// Issue mints a token for the user. A zero ttl selects the configured
// default for the kind; a zero default leaves the token non-expiring.
func (l *Ledger) Issue(ctx context.Context, kind models.Kind, userID id.UserID, ttl time.Duration) (*models.Token, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown token kind %q", kind))
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if ttl < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ttl must not be negative")
	}
	if ttl == 0 {
		ttl = l.config.DefaultTTL(kind)
	}

	code, err := l.newCode()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token code")
	}
	now := requestcontext.Now(ctx)
	token := &models.Token{
		Kind:      kind,
		Code:      code,
		UserID:    userID,
		CreatedAt: now,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		token.ExpiresAt = &expiresAt
	}
	if err := l.store.Create(ctx, token); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store token")
	}
	if l.metrics != nil {
		l.metrics.IncrementIssued(kind)
	}
	return token, nil
}

// Validate classifies a presented code for the user without consuming it.
// Completed and revoked tokens are indistinguishable from unknown codes.
// An expired token stays Expired until garbage collection removes it.
func (l *Ledger) Validate(ctx context.Context, kind models.Kind, userID id.UserID, code string) (models.Status, *models.Token, error) {
	token, err := l.find(ctx, kind, code)
	if err != nil {
		return "", nil, err
	}
	status := classify(token, requestcontext.Now(ctx))
	if status != models.StatusNotFound && token.UserID != userID {
		status = models.StatusMismatch
	}
	if l.metrics != nil {
		l.metrics.ObserveValidation(kind, status)
	}
	if status == models.StatusNotFound || status == models.StatusMismatch {
		return status, nil, nil
	}
	return status, token, nil
}

// Lookup classifies a code without knowing its owner. Remember-me resume uses
// it to find the user behind a persistence code.
func (l *Ledger) Lookup(ctx context.Context, kind models.Kind, code string) (models.Status, *models.Token, error) {
	token, err := l.find(ctx, kind, code)
	if err != nil {
		return "", nil, err
	}
	status := classify(token, requestcontext.Now(ctx))
	if status == models.StatusNotFound {
		return status, nil, nil
	}
	return status, token, nil
}

// Complete consumes a single-use token. Completing twice reports
// AlreadyCompleted without error. Persistence tokens cannot be completed.
func (l *Ledger) Complete(ctx context.Context, kind models.Kind, code string) (models.Status, *models.Token, error) {
	if !kind.SingleUse() {
		return "", nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("%s tokens cannot be completed", kind))
	}
	token, err := l.store.Complete(ctx, kind, code, requestcontext.Now(ctx))
	var status models.Status
	switch {
	case err == nil:
		status = models.StatusValid
	case errors.Is(err, sentinel.ErrNotFound):
		status, token = models.StatusNotFound, nil
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		status = models.StatusAlreadyCompleted
	case errors.Is(err, sentinel.ErrExpired):
		status = models.StatusExpired
	default:
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete token")
	}
	if l.metrics != nil {
		l.metrics.ObserveCompletion(kind, status)
	}
	return status, token, nil
}

// Revoke deletes the user's uncompleted tokens of kind. Completed
// activations survive because they record the activation itself.
func (l *Ledger) Revoke(ctx context.Context, kind models.Kind, userID id.UserID) (int, error) {
	n, err := l.store.DeleteByUser(ctx, kind, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke tokens")
	}
	if l.metrics != nil && n > 0 {
		l.metrics.AddRevoked(kind, n)
	}
	return n, nil
}

// RevokeAll revokes every kind for the user.
func (l *Ledger) RevokeAll(ctx context.Context, userID id.UserID) (int, error) {
	total := 0
	for _, kind := range models.Kinds {
		n, err := l.Revoke(ctx, kind, userID)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// RevokeCode deletes one token and reports whether it existed.
func (l *Ledger) RevokeCode(ctx context.Context, kind models.Kind, code string) (bool, error) {
	err := l.store.DeleteByCode(ctx, kind, code)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	if l.metrics != nil {
		l.metrics.AddRevoked(kind, 1)
	}
	return true, nil
}

// Rotate swaps a valid persistence code for a fresh one. Deleting the old
// code decides concurrent rotations: only the caller that removes it gets a
// replacement, every other caller sees NotFound.
func (l *Ledger) Rotate(ctx context.Context, userID id.UserID, oldCode string) (models.Status, *models.Token, error) {
	status, old, err := l.Validate(ctx, models.KindPersistence, userID, oldCode)
	if err != nil || !status.OK() {
		return status, nil, err
	}
	err = l.store.DeleteByCode(ctx, models.KindPersistence, oldCode)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.StatusNotFound, nil, nil
	}
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to retire persistence token")
	}

	var ttl time.Duration
	if old.ExpiresAt != nil {
		ttl = old.ExpiresAt.Sub(old.CreatedAt)
	}
	token, err := l.Issue(ctx, models.KindPersistence, userID, ttl)
	if err != nil {
		return "", nil, err
	}
	return models.StatusValid, token, nil
}

// ActivationState reports Activated once any activation token for the user
// has been completed.
func (l *Ledger) ActivationState(ctx context.Context, userID id.UserID) (models.ActivationState, error) {
	done, err := l.store.HasCompleted(ctx, models.KindActivation, userID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activation state")
	}
	if done {
		return models.ActivationActivated, nil
	}
	return models.ActivationPending, nil
}

// PendingExists reports whether the user holds an unexpired, uncompleted
// token of kind.
func (l *Ledger) PendingExists(ctx context.Context, kind models.Kind, userID id.UserID) (bool, error) {
	ok, err := l.store.HasPending(ctx, kind, userID, requestcontext.Now(ctx))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check pending tokens")
	}
	return ok, nil
}

// DeleteExpired removes tokens that expired longer ago than the configured
// retention.
func (l *Ledger) DeleteExpired(ctx context.Context) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-l.config.ExpiredRetention)
	n, err := l.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete expired tokens")
	}
	if n > 0 {
		if l.metrics != nil {
			l.metrics.AddCollected(n)
		}
		l.logger.InfoContext(ctx, "expired tokens deleted", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (l *Ledger) find(ctx context.Context, kind models.Kind, code string) (*models.Token, error) {
	if code == "" {
		return nil, nil
	}
	token, err := l.store.Find(ctx, kind, code)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load token")
	}
	return token, nil
}

func classify(token *models.Token, now time.Time) models.Status {
	switch {
	case token == nil, token.Completed:
		return models.StatusNotFound
	case token.IsExpiredAt(now):
		return models.StatusExpired
	default:
		return models.StatusValid
	}
}
