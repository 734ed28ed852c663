package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

const idempotencyPrefix = "idem:"

var pendingResponse = []byte(`{"pending":true}`)

type idempotencyStore struct {
	rdb goredis.UniversalClient
}

func NewIdempotencyStore(rdb goredis.UniversalClient) ports.IdempotencyStore {
	return &idempotencyStore{rdb: rdb}
}

func (s *idempotencyStore) Reserve(ctx context.Context, scope string, ttl time.Duration) (*domain.RecordedResponse, bool, error) {
	key := idempotencyPrefix + scope
	reserved, err := s.rdb.SetNX(ctx, key, pendingResponse, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, true, nil
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		// Released or expired between the two calls.
		return s.Reserve(ctx, scope, ttl)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	var recorded domain.RecordedResponse
	if err := json.Unmarshal(raw, &recorded); err != nil {
		return nil, false, fmt.Errorf("failed to decode recorded response: %w", err)
	}
	return &recorded, false, nil
}

func (s *idempotencyStore) Complete(ctx context.Context, scope string, resp *domain.RecordedResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode recorded response: %w", err)
	}
	if err := s.rdb.Set(ctx, idempotencyPrefix+scope, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to record response: %w", err)
	}
	return nil
}

func (s *idempotencyStore) Release(ctx context.Context, scope string) error {
	if err := s.rdb.Del(ctx, idempotencyPrefix+scope).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
