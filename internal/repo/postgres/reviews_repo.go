package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/guardbot/internal/domain/enums"
	"github.com/ivankudzin/guardbot/internal/domain/model"
)

var ErrCaseNotFound = errors.New("review case not found")

type ReviewsRepo struct {
	pool *pgxpool.Pool
}

func NewReviewsRepo(pool *pgxpool.Pool) *ReviewsRepo {
	return &ReviewsRepo{pool: pool}
}

func (r *ReviewsRepo) Create(ctx context.Context, kind enums.CaseKind, chatID, userID int64, messageID *int64) (model.ReviewCase, error) {
	if r.pool == nil {
		return model.ReviewCase{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return model.ReviewCase{}, fmt.Errorf("invalid user id")
	}

	var created model.ReviewCase
	err := r.pool.QueryRow(ctx, `
INSERT INTO review_cases (kind, chat_id, user_id, message_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
RETURNING id, kind, chat_id, user_id, message_id, status, reviewed_by, reviewed_at, action_taken, admin_notes, created_at
`, string(kind), chatID, userID, messageID, string(enums.CaseStatusPending)).Scan(
		&created.ID,
		&created.Kind,
		&created.ChatID,
		&created.UserID,
		&created.MessageID,
		&created.Status,
		&created.ReviewedBy,
		&created.ReviewedAt,
		&created.ActionTaken,
		&created.AdminNotes,
		&created.CreatedAt,
	)
	if err != nil {
		return model.ReviewCase{}, fmt.Errorf("create review case: %w", err)
	}

	return created, nil
}

func (r *ReviewsRepo) GetByID(ctx context.Context, caseID int64) (model.ReviewCase, error) {
	if r.pool == nil {
		return model.ReviewCase{}, fmt.Errorf("postgres pool is nil")
	}

	var rc model.ReviewCase
	err := r.pool.QueryRow(ctx, `
SELECT id, kind, chat_id, user_id, message_id, status, reviewed_by, reviewed_at, action_taken, admin_notes, created_at
FROM review_cases
WHERE id = $1
`, caseID).Scan(
		&rc.ID,
		&rc.Kind,
		&rc.ChatID,
		&rc.UserID,
		&rc.MessageID,
		&rc.Status,
		&rc.ReviewedBy,
		&rc.ReviewedAt,
		&rc.ActionTaken,
		&rc.AdminNotes,
		&rc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReviewCase{}, ErrCaseNotFound
		}
		return model.ReviewCase{}, fmt.Errorf("get review case: %w", err)
	}

	return rc, nil
}

// CountPending reports how many cases still await a reviewer.
func (r *ReviewsRepo) CountPending(ctx context.Context) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM review_cases WHERE status = $1
`, string(enums.CaseStatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending cases: %w", err)
	}

	return count, nil
}

// TryUpdateStatus performs the compare-and-set transition out of Pending.
// A false return means another reviewer resolved the case first; that is a
// defined outcome, not an error.
func (r *ReviewsRepo) TryUpdateStatus(
	ctx context.Context,
	caseID int64,
	status enums.CaseStatus,
	reviewedBy, actionTaken, notes string,
) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if status != enums.CaseStatusReviewed && status != enums.CaseStatusDismissed {
		return false, fmt.Errorf("invalid terminal status %q", status)
	}
	if strings.TrimSpace(reviewedBy) == "" {
		return false, fmt.Errorf("reviewer is required")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE review_cases
SET status = $2,
	reviewed_by = $3,
	reviewed_at = NOW(),
	action_taken = $4,
	admin_notes = $5
WHERE id = $1 AND status = $6
`, caseID, string(status), reviewedBy, actionTaken, strings.TrimSpace(notes), string(enums.CaseStatusPending))
	if err != nil {
		return false, fmt.Errorf("update review case status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
