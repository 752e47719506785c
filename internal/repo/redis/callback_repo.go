package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/guardbot/internal/domain/model"
)

var ErrContextNotFound = errors.New("callback context not found")

const callbackPrefix = "cbctx:"

// CallbackRepo keeps short-lived callback contexts. Expiry is enforced here by
// the key TTL, the router never has to reason about staleness itself.
type CallbackRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewCallbackRepo(client *goredis.Client, ttl time.Duration) *CallbackRepo {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &CallbackRepo{client: client, ttl: ttl}
}

func (r *CallbackRepo) Put(ctx context.Context, cc model.CallbackContext) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(cc.ContextID) == "" {
		return fmt.Errorf("context id is required")
	}

	payload, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("marshal callback context: %w", err)
	}

	if err := r.client.Set(ctx, callbackKey(cc.ContextID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store callback context: %w", err)
	}

	return nil
}

func (r *CallbackRepo) GetByID(ctx context.Context, contextID string) (model.CallbackContext, error) {
	if r.client == nil {
		return model.CallbackContext{}, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, callbackKey(contextID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return model.CallbackContext{}, ErrContextNotFound
		}
		return model.CallbackContext{}, fmt.Errorf("get callback context: %w", err)
	}

	var cc model.CallbackContext
	if err := json.Unmarshal(raw, &cc); err != nil {
		return model.CallbackContext{}, fmt.Errorf("unmarshal callback context: %w", err)
	}

	return cc, nil
}

func (r *CallbackRepo) Delete(ctx context.Context, contextID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.client.Del(ctx, callbackKey(contextID)).Err(); err != nil {
		return fmt.Errorf("delete callback context: %w", err)
	}

	return nil
}

func callbackKey(contextID string) string {
	return callbackPrefix + contextID
}
