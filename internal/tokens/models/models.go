// Package models defines ledger tokens and validation outcomes.
package models

import (
	"fmt"
	"time"

	id "warden/pkg/domain"
)

// Kind distinguishes what a token authorizes.
type Kind string

const (
	KindActivation  Kind = "activation"
	KindReminder    Kind = "reminder"
	KindPersistence Kind = "persistence"
)

// Kinds lists every token kind.
var Kinds = []Kind{KindActivation, KindReminder, KindPersistence}

func (k Kind) IsValid() bool {
	switch k {
	case KindActivation, KindReminder, KindPersistence:
		return true
	}
	return false
}

// SingleUse reports whether the kind is consumed by Complete.
func (k Kind) SingleUse() bool {
	return k == KindActivation || k == KindReminder
}

// ParseKind validates a kind read from input.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown token kind %q", s)
	}
	return k, nil
}

// Token is a code-addressed credential artifact. ExpiresAt nil means the
// token never expires (persistence tokens without a ttl).
type Token struct {
	Kind        Kind
	Code        string
	UserID      id.UserID
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Completed   bool
	CompletedAt *time.Time
}

// IsExpiredAt reports whether now is strictly after the expiry. A token is
// still valid at the exact expiry instant.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// MarkCompleted records single-use consumption.
func (t *Token) MarkCompleted(now time.Time) {
	t.Completed = true
	t.CompletedAt = &now
}

// Clone returns a deep copy so callers never share store state.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	out := *t
	if t.ExpiresAt != nil {
		e := *t.ExpiresAt
		out.ExpiresAt = &e
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	return &out
}

// Status is the outcome of validating or completing a token. These are
// expected results, not errors.
type Status string

const (
	StatusValid            Status = "valid"
	StatusNotFound         Status = "not_found"
	StatusMismatch         Status = "mismatch"
	StatusExpired          Status = "expired"
	StatusAlreadyCompleted Status = "already_completed"
)

func (s Status) OK() bool { return s == StatusValid }

// ActivationState is derived from the ledger: a user is activated once an
// activation token has been completed.
type ActivationState string

const (
	ActivationPending   ActivationState = "pending"
	ActivationActivated ActivationState = "activated"
)
