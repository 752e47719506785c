package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/guardbot/internal/domain/model"
)

var ErrMemberNotFound = errors.New("member not found")

type MembersRepo struct {
	pool *pgxpool.Pool
}

func NewMembersRepo(pool *pgxpool.Pool) *MembersRepo {
	return &MembersRepo{pool: pool}
}

func (r *MembersRepo) GetMember(ctx context.Context, userID int64) (model.MemberRecord, error) {
	if r.pool == nil {
		return model.MemberRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return model.MemberRecord{}, fmt.Errorf("invalid user id")
	}

	var member model.MemberRecord
	err := r.pool.QueryRow(ctx, `
SELECT user_id, username, is_banned, ban_expires_at, is_trusted, created_at, updated_at
FROM members
WHERE user_id = $1
`, userID).Scan(
		&member.UserID,
		&member.Username,
		&member.IsBanned,
		&member.BanExpiresAt,
		&member.IsTrusted,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MemberRecord{}, ErrMemberNotFound
		}
		return model.MemberRecord{}, fmt.Errorf("get member: %w", err)
	}

	return member, nil
}

// UpsertMember records the first observed membership event for a user and
// refreshes the username on subsequent ones.
func (r *MembersRepo) UpsertMember(ctx context.Context, userID int64, username string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO members (user_id, username, is_banned, is_trusted, created_at, updated_at)
VALUES ($1, $2, FALSE, FALSE, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
	username = EXCLUDED.username,
	updated_at = NOW()
`, userID, strings.TrimSpace(username)); err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}

	return nil
}

func (r *MembersRepo) SetBanStatus(ctx context.Context, userID int64, isBanned bool, expiresAt *time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE members
SET is_banned = $2,
	ban_expires_at = $3,
	updated_at = NOW()
WHERE user_id = $1
`, userID, isBanned, expiresAt)
	if err != nil {
		return fmt.Errorf("set ban status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	return nil
}

func (r *MembersRepo) UpdateTrustStatus(ctx context.Context, userID int64, isTrusted bool) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE members
SET is_trusted = $2,
	updated_at = NOW()
WHERE user_id = $1
`, userID, isTrusted)
	if err != nil {
		return fmt.Errorf("update trust status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// AddWarning appends one warning entry and returns the count of currently
// active (non-expired) warnings, not the lifetime total. Entries are never
// deleted, expiry is a read-time filter.
func (r *MembersRepo) AddWarning(ctx context.Context, entry model.WarningEntry) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if entry.UserID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if strings.TrimSpace(entry.IssuedBy) == "" {
		return 0, fmt.Errorf("warning issuer is required")
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM members WHERE user_id = $1)
`, entry.UserID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check member exists: %w", err)
	}
	if !exists {
		return 0, ErrMemberNotFound
	}

	var activeCount int
	err := r.pool.QueryRow(ctx, `
WITH inserted AS (
	INSERT INTO member_warnings (user_id, reason, issued_by, chat_id, message_id, issued_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING user_id
)
SELECT COUNT(*)::INT
FROM member_warnings
WHERE user_id = $1 AND expires_at > NOW()
`, entry.UserID, strings.TrimSpace(entry.Reason), entry.IssuedBy, entry.ChatID, entry.MessageID, entry.IssuedAt, entry.ExpiresAt).Scan(&activeCount)
	if err != nil {
		return 0, fmt.Errorf("add warning: %w", err)
	}

	// The CTE inserts in the same statement, but COUNT over the base table
	// does not see it yet; the fresh entry is active by construction.
	return activeCount + 1, nil
}

func (r *MembersRepo) ActiveWarningCount(ctx context.Context, userID int64) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)::INT
FROM member_warnings
WHERE user_id = $1 AND expires_at > NOW()
`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active warnings: %w", err)
	}

	return count, nil
}
