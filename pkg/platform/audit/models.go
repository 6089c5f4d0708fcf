// Package audit defines the lifecycle events emitted by the credential gate
// and the Publisher contract sinks implement. The publisher is handed to the
// gate at construction; there is no process-wide dispatcher.
package audit

import (
	"context"
	"time"

	id "warden/pkg/domain"
)

// EventCategory classifies events by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategorySecurity covers events relevant to abuse detection and forensics.
	CategorySecurity EventCategory = "security"
	// CategoryLifecycle covers account lifecycle changes (activation, password reset).
	CategoryLifecycle EventCategory = "lifecycle"
	// CategoryOperations covers routine activity that may be sampled.
	CategoryOperations EventCategory = "operations"
)

// EventName is the stable, dotted name of a lifecycle event.
type EventName string

const (
	EventLoginSucceeded      EventName = "login.succeeded"
	EventLoginFailed         EventName = "login.failed"
	EventThrottled           EventName = "throttled"
	EventActivationCreated   EventName = "activation.created"
	EventActivationCompleted EventName = "activation.completed"
	EventReminderCreated     EventName = "reminder.created"
	EventReminderCompleted   EventName = "reminder.completed"
	EventPersistenceCreated  EventName = "persistence.created"
	EventPersistenceRevoked  EventName = "persistence.revoked"
)

var eventCategories = map[EventName]EventCategory{
	EventLoginFailed:         CategorySecurity,
	EventThrottled:           CategorySecurity,
	EventPersistenceRevoked:  CategorySecurity,
	EventActivationCompleted: CategoryLifecycle,
	EventReminderCompleted:   CategoryLifecycle,
	EventActivationCreated:   CategoryLifecycle,
	EventReminderCreated:     CategoryLifecycle,
	EventLoginSucceeded:      CategoryOperations,
	EventPersistenceCreated:  CategoryOperations,
}

// Category returns the category for the event. Unknown names default to
// CategoryOperations.
func (n EventName) Category() EventCategory {
	if cat, ok := eventCategories[n]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is transport-agnostic so stores and sinks can fan out.
type Event struct {
	Name      EventName
	Timestamp time.Time
	// UserID is nil for failures that never resolved to an account.
	UserID    id.UserID
	IP        string
	RequestID string
	// Reason carries the rejection reason for login.failed and throttled.
	Reason string
	// Scope is the throttle scope that locked, for throttled events.
	Scope string
	// RetryAfter is set for throttled events.
	RetryAfter time.Duration
}

// Category is shorthand for e.Name.Category().
func (e Event) Category() EventCategory { return e.Name.Category() }

// Publisher receives lifecycle events.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists events for later querying.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// Fanout delivers an event to every publisher and returns the first error.
type Fanout []Publisher

func (f Fanout) Emit(ctx context.Context, event Event) error {
	var first error
	for _, p := range f {
		if err := p.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
