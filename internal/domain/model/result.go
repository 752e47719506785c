package model

import "time"

// ModerationResult is the outcome record every handler returns. Success means
// no hard failure happened before the fan-out stage; a fan-out that reached
// zero chats is still a success with ChatsAffected == 0.
type ModerationResult struct {
	Success       bool       `json:"success"`
	ChatsAffected int        `json:"chats_affected"`
	ChatsFailed   int        `json:"chats_failed"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	WarningCount  int        `json:"warning_count,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func FailedResult(err error) ModerationResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ModerationResult{Success: false, ErrorMessage: msg}
}

// CrossChatResult aggregates one executor invocation.
type CrossChatResult struct {
	SuccessCount int
	FailCount    int
	SkippedCount int
}
