// Package observability pairs audit log lines with published lifecycle events.
package observability

import (
	"context"
	"log/slog"

	"warden/pkg/attrs"
	id "warden/pkg/domain"
	"warden/pkg/platform/audit"
	"warden/pkg/requestcontext"
)

// LogAudit logs the event and forwards it to publisher. Request id, client
// IP and request time come from ctx; user_id, reason and scope are read from
// attrList. A publish failure is logged, never returned: events must not
// change the outcome of the operation they describe.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher audit.Publisher, name audit.EventName, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	args := append(attrList, "event", string(name), "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, string(name), args...)
	}
	if publisher == nil {
		return
	}

	event := audit.Event{
		Name:      name,
		Timestamp: requestcontext.Now(ctx),
		IP:        requestcontext.ClientIP(ctx),
		RequestID: requestID,
		Reason:    attrs.ExtractString(attrList, "reason"),
		Scope:     attrs.ExtractString(attrList, "scope"),
	}
	if uid, err := id.ParseUserID(attrs.ExtractString(attrList, "user_id")); err == nil {
		event.UserID = uid
	}
	if d, ok := attrs.ExtractDuration(attrList, "retry_after"); ok {
		event.RetryAfter = d
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to publish audit event",
			"event", string(name),
			"error", err,
		)
	}
}

