// Package models defines bound login sessions.
package models

import (
	"time"

	id "warden/pkg/domain"
)

// Session binds an authenticated user to an opaque handle. PersistenceCode
// is set when the login asked to be remembered.
type Session struct {
	Handle          id.SessionID `json:"handle"`
	UserID          id.UserID    `json:"user_id"`
	PersistenceCode string       `json:"persistence_code,omitempty"`
	IP              string       `json:"ip,omitempty"`
	UserAgent       string       `json:"user_agent,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// IsExpiredAt reports whether the session has lapsed. A zero ExpiresAt never
// lapses.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// BindRequest carries what a store needs to open a session.
type BindRequest struct {
	UserID          id.UserID
	PersistenceCode string
	IP              string
	UserAgent       string
}
