package celebration

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/domain/model"
	"github.com/ivankudzin/guardbot/internal/repo/postgres"
)

// ErrNoAssets means the pool is empty: either nothing was ever uploaded or
// everything listed at refill time has since been deleted.
var ErrNoAssets = errors.New("no celebration assets available")

// AssetStore is the durable pool behind the bag. GetByID may legitimately
// miss for an id returned by AllIDs earlier; that is the tombstone case.
type AssetStore interface {
	AllIDs(ctx context.Context) ([]int64, error)
	GetByID(ctx context.Context, id int64) (model.CelebrationAsset, error)
	Add(ctx context.Context, objectKey, addedBy string) (int64, error)
}

// URLSigner turns a stored object key into a short-lived fetchable URL.
type URLSigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Service draws assets shuffle-bag style: every asset present at refill time
// comes up exactly once before any repeat. The bag lives in process memory
// and is rebuilt from the store whenever it runs dry.
type Service struct {
	store  AssetStore
	signer URLSigner
	urlTTL time.Duration
	logger *zap.Logger

	mu        sync.Mutex
	remaining []int64

	shuffle func([]int64)
}

func NewService(store AssetStore, signer URLSigner, urlTTL time.Duration, logger *zap.Logger) *Service {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:  store,
		signer: signer,
		urlTTL: urlTTL,
		logger: logger,
		shuffle: func(ids []int64) {
			rand.Shuffle(len(ids), func(i, j int) {
				ids[i], ids[j] = ids[j], ids[i]
			})
		},
	}
}

// Draw pops the next asset from the bag and returns a presigned URL for it.
func (s *Service) Draw(ctx context.Context) (string, error) {
	asset, err := s.drawAsset(ctx)
	if err != nil {
		return "", err
	}

	url, err := s.signer.PresignGet(ctx, asset.ObjectKey, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("presign asset %d: %w", asset.ID, err)
	}

	return url, nil
}

// AddAsset registers an uploaded object in the pool. It enters the rotation
// at the next refill.
func (s *Service) AddAsset(ctx context.Context, objectKey, addedBy string) (int64, error) {
	return s.store.Add(ctx, objectKey, addedBy)
}

// drawAsset implements the bag protocol: refill on empty with a fresh random
// permutation, pop from the front, skip ids deleted since listing. If the
// skip loop drains the whole bag, exactly one extra refill is attempted
// before giving up.
func (s *Service) drawAsset(ctx context.Context) (model.CelebrationAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.remaining) == 0 {
		if err := s.refill(ctx); err != nil {
			return model.CelebrationAsset{}, err
		}
	}

	refilledOnSkip := false
	for {
		if len(s.remaining) == 0 {
			if refilledOnSkip {
				return model.CelebrationAsset{}, ErrNoAssets
			}
			refilledOnSkip = true
			if err := s.refill(ctx); err != nil {
				return model.CelebrationAsset{}, err
			}
		}

		id := s.remaining[0]
		s.remaining = s.remaining[1:]

		asset, err := s.store.GetByID(ctx, id)
		if errors.Is(err, postgres.ErrAssetNotFound) {
			s.logger.Debug("skipping deleted asset", zap.Int64("asset_id", id))
			continue
		}
		if err != nil {
			return model.CelebrationAsset{}, fmt.Errorf("resolve asset %d: %w", id, err)
		}

		return asset, nil
	}
}

func (s *Service) refill(ctx context.Context) error {
	ids, err := s.store.AllIDs(ctx)
	if err != nil {
		return fmt.Errorf("list asset ids: %w", err)
	}
	if len(ids) == 0 {
		return ErrNoAssets
	}

	s.remaining = append([]int64(nil), ids...)
	s.shuffle(s.remaining)
	return nil
}
