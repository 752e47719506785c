package dto

import "github.com/ivankudzin/guardbot/internal/domain/model"

type BanRequest struct {
	UserID        int64  `json:"user_id"`
	Reason        string `json:"reason"`
	ExcludeChatID *int64 `json:"exclude_chat_id,omitempty"`
}

type TempBanRequest struct {
	UserID          int64  `json:"user_id"`
	Reason          string `json:"reason"`
	DurationSeconds int64  `json:"duration_seconds"`
	ExcludeChatID   *int64 `json:"exclude_chat_id,omitempty"`
}

type UnbanRequest struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

type RestrictRequest struct {
	UserID          int64  `json:"user_id"`
	DurationSeconds int64  `json:"duration_seconds"`
	ChatID          *int64 `json:"chat_id,omitempty"`
}

type WarnRequest struct {
	UserID    int64  `json:"user_id"`
	Reason    string `json:"reason"`
	ChatID    int64  `json:"chat_id"`
	MessageID *int64 `json:"message_id,omitempty"`
}

type TrustRequest struct {
	UserID  int64 `json:"user_id"`
	Trusted bool  `json:"trusted"`
}

type ModerationResponse struct {
	Result model.ModerationResult `json:"result"`
}
