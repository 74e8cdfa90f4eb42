package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Rick1330/cybersage/internal/types"
)

// RedisStore implements Store using Redis. Contexts are stored as JSON
// under "workflow:ctx:<id>" keys with a TTL enforced by Redis itself, so
// expiry works across processes sharing the same instance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption is a functional option for configuring RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL sets the context time-to-live. Default: DefaultTTL.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore creates a Redis-backed context store over an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func contextKey(workflowID types.ID) string {
	return fmt.Sprintf("workflow:ctx:%s", workflowID)
}

// CreateContext implements Store.
func (s *RedisStore) CreateContext(ctx context.Context, workflowID types.ID, contextType types.ContextType, level types.SecurityLevel) (*Context, error) {
	if workflowID.IsZero() {
		return nil, types.NewError(types.CONTEXT_CREATE_FAILED, "workflow id cannot be empty")
	}

	wctx := newContext(workflowID, contextType, level, s.ttl)

	data, err := json.Marshal(wctx)
	if err != nil {
		return nil, types.WrapError(types.CONTEXT_CREATE_FAILED, "failed to encode context", err)
	}

	// SETNX so a duplicate create is rejected rather than overwritten.
	ok, err := s.client.SetNX(ctx, contextKey(workflowID), data, s.ttl).Result()
	if err != nil {
		return nil, types.WrapError(types.CONTEXT_CREATE_FAILED, "failed to store context", err)
	}
	if !ok {
		return nil, types.NewError(types.CONTEXT_CREATE_FAILED,
			fmt.Sprintf("context already exists for workflow %s", workflowID))
	}

	return wctx, nil
}

// GetContext implements Store.
func (s *RedisStore) GetContext(ctx context.Context, workflowID types.ID) (*Context, error) {
	data, err := s.client.Get(ctx, contextKey(workflowID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, types.NewError(types.CONTEXT_NOT_FOUND,
				fmt.Sprintf("context not found for workflow %s", workflowID))
		}
		return nil, types.WrapError(types.CONTEXT_NOT_FOUND, "failed to load context", err)
	}

	var wctx Context
	if err := json.Unmarshal(data, &wctx); err != nil {
		return nil, types.WrapError(types.CONTEXT_NOT_FOUND, "failed to decode context", err)
	}

	return &wctx, nil
}

// UpdateContext implements Store. Uses a WATCH transaction so concurrent
// updates to the same workflow context do not lose writes.
func (s *RedisStore) UpdateContext(ctx context.Context, workflowID types.ID, updates map[string]any) error {
	key := contextKey(workflowID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return types.NewError(types.CONTEXT_NOT_FOUND,
					fmt.Sprintf("context not found for workflow %s", workflowID))
			}
			return err
		}

		var wctx Context
		if err := json.Unmarshal(data, &wctx); err != nil {
			return err
		}

		now := time.Now().UTC()
		if wctx.State == nil {
			wctx.State = make(map[string]any)
		}
		for k, v := range updates {
			wctx.State[k] = v
		}
		wctx.LastUpdated = now
		wctx.Expiry = now.Add(s.ttl)

		newData, err := json.Marshal(&wctx)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, s.ttl)
			return nil
		})
		return err
	}, key)

	if err != nil {
		var csErr *types.CyberSageError
		if errors.As(err, &csErr) {
			return err
		}
		// A WATCH conflict means another writer got there first; the
		// caller can simply retry the merge.
		if errors.Is(err, redis.TxFailedErr) {
			return types.NewRetryableError(types.CONTEXT_UPDATE_FAILED,
				fmt.Sprintf("concurrent update to context for workflow %s", workflowID))
		}
		return types.WrapError(types.CONTEXT_UPDATE_FAILED,
			fmt.Sprintf("failed to update context for workflow %s", workflowID), err)
	}

	return nil
}

// ClearContext implements Store.
func (s *RedisStore) ClearContext(ctx context.Context, workflowID types.ID) error {
	if err := s.client.Del(ctx, contextKey(workflowID)).Err(); err != nil {
		return types.WrapError(types.CONTEXT_UPDATE_FAILED,
			fmt.Sprintf("failed to clear context for workflow %s", workflowID), err)
	}
	return nil
}

// Ensure RedisStore implements Store at compile time.
var _ Store = (*RedisStore)(nil)
