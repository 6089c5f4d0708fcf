package gate

import (
	"context"
	"time"

	"warden/internal/checkpoint"
	sessionmodels "warden/internal/sessions/models"
	throttlemodels "warden/internal/throttle/models"
	tokenmodels "warden/internal/tokens/models"
	id "warden/pkg/domain"
)

// UserStore verifies credentials. ok is false for an unknown login or a
// wrong secret; err is reserved for storage faults.
type UserStore interface {
	Verify(ctx context.Context, creds Credentials) (userID id.UserID, ok bool, err error)
}

type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, userID id.UserID, secret string) error
}

// SessionStore binds sessions. Resume returns an error wrapping
// sentinel.ErrNotFound for unknown or lapsed handles.
type SessionStore interface {
	Bind(ctx context.Context, req sessionmodels.BindRequest) (*sessionmodels.Session, error)
	Resume(ctx context.Context, handle id.SessionID) (*sessionmodels.Session, error)
	Unbind(ctx context.Context, handle id.SessionID) error
	UnbindUser(ctx context.Context, userID id.UserID) (int, error)
}

type Chain interface {
	Run(ctx context.Context, user checkpoint.User, creds Credentials) (*checkpoint.Rejection, error)
	NotifyFailure(ctx context.Context, creds Credentials) (*checkpoint.Rejection, error)
	Check(ctx context.Context, user checkpoint.User) (*checkpoint.Rejection, error)
}

type TokenLedger interface {
	Issue(ctx context.Context, kind tokenmodels.Kind, userID id.UserID, ttl time.Duration) (*tokenmodels.Token, error)
	Validate(ctx context.Context, kind tokenmodels.Kind, userID id.UserID, code string) (tokenmodels.Status, *tokenmodels.Token, error)
	Lookup(ctx context.Context, kind tokenmodels.Kind, code string) (tokenmodels.Status, *tokenmodels.Token, error)
	Complete(ctx context.Context, kind tokenmodels.Kind, code string) (tokenmodels.Status, *tokenmodels.Token, error)
	Revoke(ctx context.Context, kind tokenmodels.Kind, userID id.UserID) (int, error)
	RevokeCode(ctx context.Context, kind tokenmodels.Kind, code string) (bool, error)
	Rotate(ctx context.Context, userID id.UserID, oldCode string) (tokenmodels.Status, *tokenmodels.Token, error)
}

type ThrottleResetter interface {
	Reset(ctx context.Context, scope throttlemodels.Scope, subject string) error
}
