// Package models defines throttle scopes, records and check results.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Scope is a throttling granularity.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeIP     Scope = "ip"
	ScopeUser   Scope = "user"
)

// Scopes lists the scopes in evaluation order.
var Scopes = []Scope{ScopeGlobal, ScopeIP, ScopeUser}

func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeIP, ScopeUser:
		return true
	}
	return false
}

// MustScope panics on an unknown scope. Scopes are compile-time constants in
// every caller, so an unknown value is a programming error.
func MustScope(s Scope) Scope {
	if !s.IsValid() {
		panic(fmt.Sprintf("throttle: unknown scope %q", string(s)))
	}
	return s
}

// globalSubject is the constant subject of the global scope.
const globalSubject = "all"

// Key returns the storage key for a scope subject. Subjects are sanitized
// so a crafted identifier containing ':' cannot address another record.
func Key(scope Scope, subject string) string {
	MustScope(scope)
	if scope == ScopeGlobal {
		subject = globalSubject
	}
	return "throttle:" + string(scope) + ":" + SanitizeKeySegment(subject)
}

// SanitizeKeySegment escapes the key delimiter in user-controlled segments.
// IPv6 addresses become "2001_db8__1".
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// Record is the attempt history of one scope key. Attempts are ascending and
// pruned to the scope interval on every write.
type Record struct {
	Key         string
	Attempts    []time.Time
	LockedUntil *time.Time
}

// InWindow returns the attempts in (now-interval, now].
func (r *Record) InWindow(now time.Time, interval time.Duration) []time.Time {
	if r == nil {
		return nil
	}
	cutoff := now.Add(-interval)
	var out []time.Time
	for _, at := range r.Attempts {
		if at.After(cutoff) && !at.After(now) {
			out = append(out, at)
		}
	}
	return out
}

// Prune drops attempts at or before cutoff.
func (r *Record) Prune(cutoff time.Time) {
	i := 0
	for ; i < len(r.Attempts); i++ {
		if r.Attempts[i].After(cutoff) {
			break
		}
	}
	r.Attempts = r.Attempts[i:]
}

// CheckResult is the outcome of evaluating one scope.
type CheckResult struct {
	Scope    Scope
	Key      string
	Allowed  bool
	Attempts int
	// RetryAfter and Until are set when the scope is locked.
	RetryAfter time.Duration
	Until      time.Time
}

// Locked is shorthand for !Allowed.
func (r *CheckResult) Locked() bool { return r != nil && !r.Allowed }
