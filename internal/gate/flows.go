package gate

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/gate/observability"
	tokenmodels "warden/internal/tokens/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
)

// CreateActivation issues an activation token for the user.
func (g *Gate) CreateActivation(ctx context.Context, userID id.UserID) (*tokenmodels.Token, error) {
	return g.issue(ctx, tokenmodels.KindActivation, userID, audit.EventActivationCreated)
}

// CompleteActivation consumes the user's activation code. The returned
// status is Valid only for the call that activated the user.
func (g *Gate) CompleteActivation(ctx context.Context, userID id.UserID, code string) (tokenmodels.Status, error) {
	ctx, span := g.tracer.Start(ctx, "gate.CompleteActivation")
	defer span.End()

	status, err := g.complete(ctx, tokenmodels.KindActivation, userID, code)
	if err != nil {
		return "", g.fail(span, err)
	}
	span.SetAttributes(attribute.String("gate.token_status", string(status)))
	if status.OK() {
		observability.LogAudit(ctx, g.logger, g.publisher, audit.EventActivationCompleted,
			"user_id", userID.String())
	}
	return status, nil
}

// CreateReminder issues a password reset token for the user.
func (g *Gate) CreateReminder(ctx context.Context, userID id.UserID) (*tokenmodels.Token, error) {
	return g.issue(ctx, tokenmodels.KindReminder, userID, audit.EventReminderCreated)
}

// CompleteReminder consumes a reminder code, sets the new secret and revokes
// every persistence token of the user so remembered devices must log in again.
func (g *Gate) CompleteReminder(ctx context.Context, userID id.UserID, code, newSecret string) (tokenmodels.Status, error) {
	ctx, span := g.tracer.Start(ctx, "gate.CompleteReminder")
	defer span.End()

	if g.passwords == nil {
		return "", g.fail(span, dErrors.New(dErrors.CodeInvariantViolation, "password updater is not configured"))
	}
	if newSecret == "" {
		return "", g.fail(span, dErrors.New(dErrors.CodeInvalidInput, "new password is required"))
	}

	status, err := g.complete(ctx, tokenmodels.KindReminder, userID, code)
	if err != nil {
		return "", g.fail(span, err)
	}
	span.SetAttributes(attribute.String("gate.token_status", string(status)))
	if !status.OK() {
		return status, nil
	}

	if err := g.passwords.UpdatePassword(ctx, userID, newSecret); err != nil {
		return "", g.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password"))
	}
	observability.LogAudit(ctx, g.logger, g.publisher, audit.EventReminderCompleted,
		"user_id", userID.String())

	n, err := g.ledger.Revoke(ctx, tokenmodels.KindPersistence, userID)
	if err != nil {
		return "", g.fail(span, err)
	}
	if n > 0 {
		observability.LogAudit(ctx, g.logger, g.publisher, audit.EventPersistenceRevoked,
			"user_id", userID.String(),
			"count", n,
		)
	}
	return status, nil
}

func (g *Gate) issue(ctx context.Context, kind tokenmodels.Kind, userID id.UserID, event audit.EventName) (*tokenmodels.Token, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Issue",
		trace.WithAttributes(attribute.String("gate.token_kind", string(kind))))
	defer span.End()

	token, err := g.ledger.Issue(ctx, kind, userID, 0)
	if err != nil {
		return nil, g.fail(span, err)
	}
	observability.LogAudit(ctx, g.logger, g.publisher, event, "user_id", userID.String())
	return token, nil
}

// complete validates ownership before consuming so a code presented for the
// wrong user is never spent.
func (g *Gate) complete(ctx context.Context, kind tokenmodels.Kind, userID id.UserID, code string) (tokenmodels.Status, error) {
	status, _, err := g.ledger.Validate(ctx, kind, userID, code)
	if err != nil {
		return "", err
	}
	if status.OK() {
		status, _, err = g.ledger.Complete(ctx, kind, code)
		if err != nil {
			return "", err
		}
	}
	if g.metrics != nil {
		g.metrics.ObserveTokenFlow(string(kind), string(status))
	}
	return status, nil
}
