// Package checkpoint runs the ordered login gates (throttling, activation)
// that decide whether verified credentials may open a session.
package checkpoint

import (
	"context"
	"strings"
	"time"

	throttlemodels "warden/internal/throttle/models"
	id "warden/pkg/domain"
)

// Credentials is the opaque credential bag presented at login.
type Credentials map[string]string

// loginKeys are consulted in order for the login identifier.
var loginKeys = []string{"login", "email", "username"}

// Login returns the login identifier, trimmed and lowercased.
func (c Credentials) Login() string {
	for _, k := range loginKeys {
		if v := strings.TrimSpace(c[k]); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

func (c Credentials) Secret() string {
	return c["password"]
}

// User is the identity a checkpoint evaluates.
type User struct {
	ID id.UserID
}

type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonNotActivated       Reason = "not_activated"
	ReasonThrottled          Reason = "throttled"
)

// Rejection is an expected refusal, never an error. RetryAfter and Scope are
// only set for Throttled.
type Rejection struct {
	Reason     Reason
	Checkpoint string
	Scope      throttlemodels.Scope
	RetryAfter time.Duration
}

// Checkpoint gates a login for a verified user.
type Checkpoint interface {
	Name() string
	Login(ctx context.Context, user User, creds Credentials) (*Rejection, error)
}

// FailureRecorder is implemented by checkpoints that track failed logins.
type FailureRecorder interface {
	Fail(ctx context.Context, creds Credentials) (*Rejection, error)
}

// SessionChecker is implemented by checkpoints that also gate resumed
// sessions.
type SessionChecker interface {
	Check(ctx context.Context, user User) (*Rejection, error)
}
