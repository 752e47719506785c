package model

import (
	"time"

	"github.com/ivankudzin/guardbot/internal/domain/enums"
)

// ReviewCase is the durable record behind every report/alert/exam flag. It is
// created Pending and resolved exactly once by an atomic status transition.
type ReviewCase struct {
	ID          int64
	Kind        enums.CaseKind
	ChatID      int64
	UserID      int64
	MessageID   *int64
	Status      enums.CaseStatus
	ReviewedBy  string
	ReviewedAt  *time.Time
	ActionTaken string
	AdminNotes  string
	CreatedAt   time.Time
}

// CallbackContext is the short-lived pointer referenced by the opaque id baked
// into an inline keyboard. It lives in redis under a TTL and is deleted on use.
type CallbackContext struct {
	ContextID string         `json:"context_id"`
	CaseID    int64          `json:"case_id"`
	Kind      enums.CaseKind `json:"kind"`
	ChatID    int64          `json:"chat_id"`
	UserID    int64          `json:"user_id"`
	MessageID int64          `json:"message_id,omitempty"`
}

// CelebrationAsset is one entry of the media pool the shuffle-bag draws from.
type CelebrationAsset struct {
	ID        int64
	ObjectKey string
	AddedBy   string
	CreatedAt time.Time
}
