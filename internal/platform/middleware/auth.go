package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"warden/pkg/requestcontext"
)

// SessionValidator resolves a session handle presented by the client.
// A nil claims value with a nil error means the handle is not (or no longer)
// bound.
type SessionValidator interface {
	ValidateSession(ctx context.Context, handle string) (*SessionClaims, error)
}

// SessionClaims represents the bound session behind a handle
type SessionClaims struct {
	UserID          string
	SessionID       string
	PersistenceCode string
}

// Context keys for storing authenticated user information
type contextKeyUserID struct{}
type contextKeySessionID struct{}

var (
	ContextKeyUserID    = contextKeyUserID{}
	ContextKeySessionID = contextKeySessionID{}
)

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(ContextKeyUserID).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetSessionID retrieves the session handle from the context
func GetSessionID(ctx context.Context) string {
	sessionID, ok := ctx.Value(ContextKeySessionID).(string)
	if !ok {
		return ""
	}
	return sessionID
}

// SessionHandle extracts the handle from "Authorization: Session <handle>"
// or the Bearer form.
func SessionHandle(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	for _, prefix := range []string{"Session ", "Bearer "} {
		if after, ok := strings.CutPrefix(authHeader, prefix); ok {
			handle := strings.TrimSpace(after)
			return handle, handle != ""
		}
	}
	return "", false
}

func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			handle, ok := SessionHandle(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing session handle",
					"request_id", requestID,
				)
				writeUnauthorized(w, logger, ctx, requestID, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateSession(ctx, handle)
			if err != nil {
				logger.ErrorContext(ctx, "session validation failed",
					"error", err,
					"request_id", requestID,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal"}`))
				return
			}
			if claims == nil {
				logger.WarnContext(ctx, "unauthorized access - unknown session",
					"request_id", requestID,
				)
				writeUnauthorized(w, logger, ctx, requestID, "Session is not bound")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextKeySessionID, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, logger *slog.Logger, ctx context.Context, requestID, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, err := w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
	if err != nil {
		logger.ErrorContext(ctx, "failed to write unauthorized response",
			"error", err,
			"request_id", requestID,
		)
	}
}
