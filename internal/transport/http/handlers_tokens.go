package httptransport

import (
	"net/http"
	"strings"
	"time"

	tokenmodels "warden/internal/tokens/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

type IssueRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (r *IssueRequest) Normalize() { r.UserID = strings.TrimSpace(r.UserID) }

// IssueResponse carries the fresh code. Delivering it to the user (mail,
// SMS) is the caller's concern.
type IssueResponse struct {
	Code      string     `json:"code"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type CompleteRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Code     string `json:"code" validate:"required,max=256"`
	Password string `json:"password" validate:"omitempty,min=8,max=1024"`
}

func (r *CompleteRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Code = strings.TrimSpace(r.Code)
}

func (h *Handler) handleCreateActivation(w http.ResponseWriter, r *http.Request) {
	h.handleIssue(w, r, tokenmodels.KindActivation)
}

func (h *Handler) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	h.handleIssue(w, r, tokenmodels.KindReminder)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request, kind tokenmodels.Kind) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var token *tokenmodels.Token
	if kind == tokenmodels.KindActivation {
		token, err = h.gate.CreateActivation(ctx, userID)
	} else {
		token, err = h.gate.CreateReminder(ctx, userID)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token",
			"request_id", requestID,
			"kind", string(kind),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, IssueResponse{Code: token.Code, ExpiresAt: token.ExpiresAt})
}

func (h *Handler) handleCompleteActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CompleteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status, err := h.gate.CompleteActivation(ctx, userID, req.Code)
	h.writeCompletion(w, r, tokenmodels.KindActivation, status, err)
}

func (h *Handler) handleCompleteReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CompleteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "password is required"))
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status, err := h.gate.CompleteReminder(ctx, userID, req.Code, req.Password)
	h.writeCompletion(w, r, tokenmodels.KindReminder, status, err)
}

// writeCompletion hides which failure class applied: unknown, foreign,
// expired and spent codes all answer the same.
func (h *Handler) writeCompletion(w http.ResponseWriter, r *http.Request, kind tokenmodels.Kind, status tokenmodels.Status, err error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to complete token",
			"request_id", requestID,
			"kind", string(kind),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if !status.OK() {
		h.logger.InfoContext(ctx, "token completion refused",
			"request_id", requestID,
			"kind", string(kind),
			"status", string(status),
		)
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "code is invalid or expired",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
