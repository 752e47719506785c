package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/guardbot/internal/domain/model"
)

var ErrAssetNotFound = errors.New("celebration asset not found")

type CelebrationRepo struct {
	pool *pgxpool.Pool
}

func NewCelebrationRepo(pool *pgxpool.Pool) *CelebrationRepo {
	return &CelebrationRepo{pool: pool}
}

func (r *CelebrationRepo) AllIDs(ctx context.Context) ([]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT id
FROM celebration_assets
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list celebration asset ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, 32)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan asset id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset ids: %w", err)
	}

	return ids, nil
}

func (r *CelebrationRepo) GetByID(ctx context.Context, id int64) (model.CelebrationAsset, error) {
	if r.pool == nil {
		return model.CelebrationAsset{}, fmt.Errorf("postgres pool is nil")
	}

	var asset model.CelebrationAsset
	err := r.pool.QueryRow(ctx, `
SELECT id, object_key, added_by, created_at
FROM celebration_assets
WHERE id = $1
`, id).Scan(&asset.ID, &asset.ObjectKey, &asset.AddedBy, &asset.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CelebrationAsset{}, ErrAssetNotFound
		}
		return model.CelebrationAsset{}, fmt.Errorf("get celebration asset: %w", err)
	}

	return asset, nil
}

func (r *CelebrationRepo) Add(ctx context.Context, objectKey, addedBy string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(objectKey) == "" {
		return 0, fmt.Errorf("object key is required")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO celebration_assets (object_key, added_by, created_at)
VALUES ($1, $2, NOW())
RETURNING id
`, strings.TrimSpace(objectKey), strings.TrimSpace(addedBy)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add celebration asset: %w", err)
	}

	return id, nil
}
