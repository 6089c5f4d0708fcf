package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"warden/internal/checkpoint"
	"warden/internal/gate"
	"warden/internal/platform/middleware"
	tokenmodels "warden/internal/tokens/models"
	usermodels "warden/internal/users/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// Gate is the authentication surface the handlers drive.
type Gate interface {
	Authenticate(ctx context.Context, creds gate.Credentials, opts gate.LoginOptions) (*gate.LoginResult, error)
	Logout(ctx context.Context, handle id.SessionID, everywhere bool) error
	Resume(ctx context.Context, handle id.SessionID) (*gate.LoginResult, error)
	ResumeRemembered(ctx context.Context, code string) (*gate.LoginResult, error)
	CreateActivation(ctx context.Context, userID id.UserID) (*tokenmodels.Token, error)
	CompleteActivation(ctx context.Context, userID id.UserID, code string) (tokenmodels.Status, error)
	CreateReminder(ctx context.Context, userID id.UserID) (*tokenmodels.Token, error)
	CompleteReminder(ctx context.Context, userID id.UserID, code, newSecret string) (tokenmodels.Status, error)
}

// Registrar creates users.
type Registrar interface {
	Register(ctx context.Context, creds checkpoint.Credentials) (*usermodels.User, error)
}

// Handler is the thin HTTP layer over the gate.
type Handler struct {
	gate   Gate
	users  Registrar
	logger *slog.Logger
}

func NewHandler(g Gate, users Registrar, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{gate: g, users: users, logger: logger}
}

// Sessions adapts the gate to the session middleware.
func (h *Handler) Sessions() middleware.SessionValidator {
	return sessionValidator{gate: h.gate}
}

type sessionValidator struct {
	gate Gate
}

func (v sessionValidator) ValidateSession(ctx context.Context, raw string) (*middleware.SessionClaims, error) {
	handle, err := id.ParseSessionID(raw)
	if err != nil {
		return nil, nil
	}
	res, err := v.gate.Resume(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !res.Bound() {
		return nil, nil
	}
	return &middleware.SessionClaims{
		UserID:          res.UserID.String(),
		SessionID:       res.Session.Handle.String(),
		PersistenceCode: res.PersistenceCode,
	}, nil
}

type LoginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password" validate:"required,max=1024"`
	Remember bool   `json:"remember"`
}

func (r *LoginRequest) Normalize() {
	r.Login = strings.TrimSpace(r.Login)
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)
}

func (r *LoginRequest) Validate() error {
	if r.Login == "" && r.Email == "" && r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "one of login, email or username is required")
	}
	return nil
}

func (r *LoginRequest) credentials() gate.Credentials {
	creds := gate.Credentials{"password": r.Password}
	for k, v := range map[string]string{"login": r.Login, "email": r.Email, "username": r.Username} {
		if v != "" {
			creds[k] = v
		}
	}
	return creds
}

type SessionResponse struct {
	UserID          string    `json:"user_id"`
	Session         string    `json:"session"`
	ExpiresAt       time.Time `json:"expires_at,omitzero"`
	PersistenceCode string    `json:"persistence_code,omitempty"`
}

// RejectionResponse is written for every refused login. Invalid credentials
// and inactive accounts differ only in the error code.
type RejectionResponse struct {
	Error      string `json:"error"`
	Scope      string `json:"scope,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.gate.Authenticate(ctx, req.credentials(), gate.LoginOptions{Remember: req.Remember})
	if err != nil {
		h.logger.ErrorContext(ctx, "login failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.writeLoginResult(w, res)
}

type ResumeRequest struct {
	PersistenceCode string `json:"persistence_code" validate:"omitempty,max=256"`
}

// handleResume opens a session from a persistence code, or re-checks the
// session named in the Authorization header when no code is given.
func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ResumeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var (
		res *gate.LoginResult
		err error
	)
	switch {
	case req.PersistenceCode != "":
		res, err = h.gate.ResumeRemembered(ctx, req.PersistenceCode)
	default:
		raw, present := middleware.SessionHandle(r)
		if !present {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "persistence_code or session handle is required"))
			return
		}
		handle, perr := id.ParseSessionID(raw)
		if perr != nil {
			h.writeLoginResult(w, &gate.LoginResult{
				Outcome:   gate.OutcomeRejected,
				Rejection: &checkpoint.Rejection{Reason: checkpoint.ReasonInvalidCredentials},
			})
			return
		}
		res, err = h.gate.Resume(ctx, handle)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "resume failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.writeLoginResult(w, res)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{
		UserID:  middleware.GetUserID(ctx),
		Session: middleware.GetSessionID(ctx),
	})
}

type LogoutRequest struct {
	Everywhere bool `json:"everywhere"`
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	// An empty body is a plain logout.
	var req LogoutRequest
	if r.ContentLength != 0 {
		decoded, ok := httputil.DecodeAndPrepare[LogoutRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		req = *decoded
	}

	handle, err := id.ParseSessionID(middleware.GetSessionID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "session handle missing from context despite session middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	if err := h.gate.Logout(ctx, handle, req.Everywhere); err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type RegisterRequest struct {
	Login    string `json:"login" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

func (r *RegisterRequest) Normalize() {
	r.Login = strings.TrimSpace(r.Login)
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	user, err := h.users.Register(ctx, checkpoint.Credentials{"login": req.Login, "password": req.Password})
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "login already registered"))
		return
	case errors.Is(err, sentinel.ErrInvalidState):
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "login and password are required"))
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to register user",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register user"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RegisterResponse{UserID: user.ID.String()})
}

func (h *Handler) writeLoginResult(w http.ResponseWriter, res *gate.LoginResult) {
	if res.Bound() {
		httputil.WriteJSON(w, http.StatusOK, SessionResponse{
			UserID:          res.UserID.String(),
			Session:         res.Session.Handle.String(),
			ExpiresAt:       res.Session.ExpiresAt,
			PersistenceCode: res.PersistenceCode,
		})
		return
	}

	rej := res.Rejection
	if rej == nil {
		rej = &checkpoint.Rejection{Reason: checkpoint.ReasonInvalidCredentials}
	}
	body := RejectionResponse{Error: string(rej.Reason)}
	status := http.StatusUnauthorized
	if rej.Reason == checkpoint.ReasonThrottled {
		status = http.StatusTooManyRequests
		secs := retryAfterSeconds(rej.RetryAfter)
		body.Scope = string(rej.Scope)
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httputil.WriteJSON(w, status, body)
}

// retryAfterSeconds rounds up so clients never retry while still locked.
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64(math.Ceil(d.Seconds()))
}
