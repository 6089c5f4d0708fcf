package gate

import (
	"warden/internal/checkpoint"
	sessionmodels "warden/internal/sessions/models"
	id "warden/pkg/domain"
)

// Credentials is the credential bag presented at login.
type Credentials = checkpoint.Credentials

type Outcome string

const (
	OutcomeSessionBound Outcome = "session_bound"
	OutcomeRejected     Outcome = "rejected"
)

type LoginOptions struct {
	// Remember mints a persistence token bound to the session.
	Remember bool
}

// LoginResult is the terminal state of one authentication attempt. On
// SessionBound Session is set; on Rejected Rejection is.
type LoginResult struct {
	Outcome         Outcome
	UserID          id.UserID
	Session         *sessionmodels.Session
	PersistenceCode string
	Rejection       *checkpoint.Rejection
}

func (r *LoginResult) Bound() bool { return r != nil && r.Outcome == OutcomeSessionBound }

func rejected(userID id.UserID, rej *checkpoint.Rejection) *LoginResult {
	return &LoginResult{Outcome: OutcomeRejected, UserID: userID, Rejection: rej}
}

func invalidCredentials() *checkpoint.Rejection {
	return &checkpoint.Rejection{Reason: checkpoint.ReasonInvalidCredentials}
}
