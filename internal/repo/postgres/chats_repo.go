package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatsRepo struct {
	pool *pgxpool.Pool
}

func NewChatsRepo(pool *pgxpool.Pool) *ChatsRepo {
	return &ChatsRepo{pool: pool}
}

// HealthyChatIDs returns the chats the bot currently administers with
// confirmed admin rights. The order is stable so one executor pass iterates a
// consistent snapshot.
func (r *ChatsRepo) HealthyChatIDs(ctx context.Context) ([]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT chat_id
FROM managed_chats
WHERE enabled AND admin_confirmed
ORDER BY chat_id
`)
	if err != nil {
		return nil, fmt.Errorf("list healthy chats: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, 16)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate healthy chats: %w", err)
	}

	return ids, nil
}

func (r *ChatsRepo) UpsertChat(ctx context.Context, chatID int64, title string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if chatID == 0 {
		return fmt.Errorf("invalid chat id")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO managed_chats (chat_id, title, enabled, admin_confirmed, created_at, updated_at)
VALUES ($1, $2, TRUE, TRUE, NOW(), NOW())
ON CONFLICT (chat_id) DO UPDATE SET
	title = EXCLUDED.title,
	enabled = TRUE,
	updated_at = NOW()
`, chatID, strings.TrimSpace(title)); err != nil {
		return fmt.Errorf("upsert managed chat: %w", err)
	}

	return nil
}

func (r *ChatsRepo) MarkUnhealthy(ctx context.Context, chatID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE managed_chats
SET admin_confirmed = FALSE,
	updated_at = NOW()
WHERE chat_id = $1
`, chatID); err != nil {
		return fmt.Errorf("mark chat unhealthy: %w", err)
	}

	return nil
}
