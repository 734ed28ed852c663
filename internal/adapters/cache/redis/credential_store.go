package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

// incrementScript sets the expiry only when the counter is created, so a
// window is never extended by later hits.
var incrementScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

type credentialStore struct {
	rdb goredis.UniversalClient
}

func NewCredentialStore(rdb goredis.UniversalClient) ports.CredentialStore {
	return &credentialStore{rdb: rdb}
}

func (s *credentialStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return ok, nil
}

func (s *credentialStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *credentialStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *credentialStore) Delete(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return n, nil
}

func (s *credentialStore) Increment(ctx context.Context, key string, ttlOnCreation time.Duration) (int64, error) {
	n, err := incrementScript.Run(ctx, s.rdb, []string{key}, ttlOnCreation.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

func (s *credentialStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
