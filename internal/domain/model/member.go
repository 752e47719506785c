package model

import "time"

// MemberRecord is the authoritative member state. Chat-level ban and mute
// state is a projection of it: the flags here represent policy, not what any
// single chat managed to enforce.
type MemberRecord struct {
	UserID       int64
	Username     string
	IsBanned     bool
	BanExpiresAt *time.Time
	IsTrusted    bool
	Warnings     []WarningEntry
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WarningEntry is append-only. Expiry is evaluated at read time by the active
// warning count query, entries are never deleted.
type WarningEntry struct {
	ID        int64
	UserID    int64
	Reason    string
	IssuedBy  string
	ChatID    int64
	MessageID *int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}
