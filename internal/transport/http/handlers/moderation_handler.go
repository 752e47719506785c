package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ivankudzin/guardbot/internal/domain/model"
	"github.com/ivankudzin/guardbot/internal/services/moderation"
	"github.com/ivankudzin/guardbot/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/guardbot/internal/transport/http/errors"
)

// Moderator is the verb surface exposed over HTTP.
type Moderator interface {
	Ban(ctx context.Context, userID int64, actor model.Actor, reason string, excludeChatID *int64) model.ModerationResult
	TempBan(ctx context.Context, userID int64, actor model.Actor, duration time.Duration, reason string, excludeChatID *int64) model.ModerationResult
	Unban(ctx context.Context, userID int64, actor model.Actor, reason string) model.ModerationResult
	Restrict(ctx context.Context, userID int64, actor model.Actor, duration time.Duration, chatID *int64) model.ModerationResult
	Warn(ctx context.Context, input moderation.WarnInput) model.ModerationResult
	Trust(ctx context.Context, userID int64, actor model.Actor, trusted bool) model.ModerationResult
}

// ActorResolver extracts the authenticated caller from the request context.
type ActorResolver func(ctx context.Context) (model.Actor, bool)

type ModerationHandler struct {
	service Moderator
	actor   ActorResolver
}

func NewModerationHandler(service Moderator, actor ActorResolver) *ModerationHandler {
	return &ModerationHandler{service: service, actor: actor}
}

func (h *ModerationHandler) Ban(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.callerActor(w, r)
	if !ok {
		return
	}

	var req dto.BanRequest
	if !decodeBody(w, r, &req) || !requireUserID(w, req.UserID) {
		return
	}

	writeResult(w, h.service.Ban(r.Context(), req.UserID, actor, req.Reason, req.ExcludeChatID))
}

func (h *ModerationHandler) TempBan(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.callerActor(w, r)
	if !ok {
		return
	}

	var req dto.TempBanRequest
	if !decodeBody(w, r, &req) || !requireUserID(w, req.UserID) {
		return
	}
	if req.DurationSeconds <= 0 {
		writeBadRequest(w, "INVALID_DURATION", "duration_seconds must be positive")
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	writeResult(w, h.service.TempBan(r.Context(), req.UserID, actor, duration, req.Reason, req.ExcludeChatID))
}

func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.callerActor(w, r)
	if !ok {
		return
	}

	var req dto.UnbanRequest
	if !decodeBody(w, r, &req) || !requireUserID(w, req.UserID) {
		return
	}

	writeResult(w, h.service.Unban(r.Context(), req.UserID, actor, req.Reason))
}

func (h *ModerationHandler) Restrict(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.callerActor(w, r)
	if !ok {
		return
	}

	var req dto.RestrictRequest
	if !decodeBody(w, r, &req) || !requireUserID(w, req.UserID) {
		return
	}
	if req.DurationSeconds <= 0 {
		writeBadRequest(w, "INVALID_DURATION", "duration_seconds must be positive")
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	writeResult(w, h.service.Restrict(r.Context(), req.UserID, actor, duration, req.ChatID))
}

func (h *ModerationHandler) Warn(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.callerActor(w, r)
	if !ok {
		return
	}

	var req dto.WarnRequest
	if !decodeBody(w, r, &req) || !requireUserID(w, req.UserID) {
		return
	}

	writeResult(w, h.service.Warn(r.Context(), moderation.WarnInput{
		UserID:    req.UserID,
		Actor:     actor,
		Reason:    req.Reason,
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
	}))
}

func (h *ModerationHandler) Trust(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.callerActor(w, r)
	if !ok {
		return
	}

	var req dto.TrustRequest
	if !decodeBody(w, r, &req) || !requireUserID(w, req.UserID) {
		return
	}

	writeResult(w, h.service.Trust(r.Context(), req.UserID, actor, req.Trusted))
}

func (h *ModerationHandler) callerActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	if h.service == nil {
		httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
			Code:    "MODERATION_SERVICE_UNAVAILABLE",
			Message: "moderation service is unavailable",
		})
		return model.Actor{}, false
	}

	actor, ok := h.actor(r.Context())
	if !ok {
		httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
			Code:    "UNAUTHORIZED",
			Message: "caller identity is missing",
		})
		return model.Actor{}, false
	}

	return actor, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "INVALID_BODY", "request body is not valid json")
		return false
	}
	return true
}

func requireUserID(w http.ResponseWriter, userID int64) bool {
	if userID <= 0 {
		writeBadRequest(w, "INVALID_USER_ID", "user_id must be positive")
		return false
	}
	return true
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeResult(w http.ResponseWriter, result model.ModerationResult) {
	httperrors.Write(w, http.StatusOK, dto.ModerationResponse{Result: result})
}
