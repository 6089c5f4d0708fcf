package testutil

import (
	"context"
	"net/http"
	"time"

	"warden/pkg/requestcontext"
)

// At returns a context pinned to the given request time.
func At(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// FromIP returns a context pinned to the given request time and client IP.
func FromIP(t time.Time, ip string) context.Context {
	return requestcontext.WithClientMetadata(At(t), ip, "test-agent")
}

// WithClientIP sets the resolved client IP on a request, bypassing the
// metadata middleware.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, req.UserAgent()))
}
