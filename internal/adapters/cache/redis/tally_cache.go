package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

// A contest tally lives in one hash. Nominee ids map to stored counts,
// "bias:<nominee>" fields hold the overlay, and three bookkeeping fields
// track state: _seeded once a full snapshot was written, _stale after a
// write was lost, and _v which every write bumps.
const (
	tallyPrefix    = "tally:"
	biasField      = "bias:"
	seededField    = "_seeded"
	staleField     = "_stale"
	versionField   = "_v"
	internalPrefix = "_"
)

// Every write refreshes the hash TTL (milliseconds, 0 for none), so only
// contests nobody touches expire. Replace writes field/value pairs in HSET
// calls of 512 arguments to stay clear of the Lua stack limit.
var (
	tallyIncrementScript = goredis.NewScript(`
redis.call('HINCRBY', KEYS[1], '_v', 1)
local applied = 0
if redis.call('HEXISTS', KEYS[1], '_seeded') == 1 then
	redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
	applied = 1
end
if tonumber(ARGV[2]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return applied
`)

	tallyReplaceScript = goredis.NewScript(`
local v = tonumber(redis.call('HGET', KEYS[1], '_v') or '0')
if v ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], '_v', v, '_seeded', '1')
for i = 3, #ARGV, 512 do
	redis.call('HSET', KEYS[1], unpack(ARGV, i, math.min(i + 511, #ARGV)))
end
if tonumber(ARGV[2]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

	tallyMarkStaleScript = goredis.NewScript(`
redis.call('HINCRBY', KEYS[1], '_v', 1)
if redis.call('HEXISTS', KEYS[1], '_seeded') == 1 then
	redis.call('HSET', KEYS[1], '_stale', '1')
end
if tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 1
`)

	tallyInvalidateScript = goredis.NewScript(`
local v = tonumber(redis.call('HGET', KEYS[1], '_v') or '0')
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], '_v', v + 1)
if tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return v + 1
`)
)

type tallyCache struct {
	rdb goredis.UniversalClient
	ttl int64
}

func NewTallyCache(rdb goredis.UniversalClient, ttl time.Duration) ports.TallyCache {
	return &tallyCache{rdb: rdb, ttl: ttl.Milliseconds()}
}

func tallyKey(contestID uuid.UUID) string {
	return tallyPrefix + contestID.String()
}

func (c *tallyCache) Get(ctx context.Context, contestID uuid.UUID) (domain.TallySnapshot, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, tallyKey(contestID)).Result()
	if err != nil {
		return domain.TallySnapshot{}, false, fmt.Errorf("failed to read tally cache: %w", err)
	}
	if _, seeded := fields[seededField]; !seeded {
		return domain.TallySnapshot{}, false, nil
	}

	snap := domain.TallySnapshot{
		Counts: make(map[uuid.UUID]int64, len(fields)),
		Bias:   make(map[uuid.UUID]int64),
	}
	_, snap.Stale = fields[staleField]

	for field, raw := range fields {
		if strings.HasPrefix(field, internalPrefix) {
			continue
		}
		target := snap.Counts
		name := field
		if strings.HasPrefix(field, biasField) {
			target = snap.Bias
			name = strings.TrimPrefix(field, biasField)
		}
		id, err := uuid.Parse(name)
		if err != nil {
			return domain.TallySnapshot{}, false, fmt.Errorf("failed to parse tally cache field %q: %w", field, err)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.TallySnapshot{}, false, fmt.Errorf("failed to parse tally cache value of %q: %w", field, err)
		}
		target[id] = n
	}
	return snap, true, nil
}

func (c *tallyCache) Version(ctx context.Context, contestID uuid.UUID) (int64, error) {
	v, err := c.rdb.HGet(ctx, tallyKey(contestID), versionField).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tally cache version: %w", err)
	}
	return v, nil
}

func (c *tallyCache) Increment(ctx context.Context, contestID, nomineeID uuid.UUID) (bool, error) {
	n, err := tallyIncrementScript.Run(ctx, c.rdb, []string{tallyKey(contestID)}, nomineeID.String(), c.ttl).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to increment tally cache: %w", err)
	}
	return n == 1, nil
}

func (c *tallyCache) Replace(ctx context.Context, contestID uuid.UUID, snapshot domain.TallySnapshot, version int64) (bool, error) {
	args := make([]interface{}, 0, 2+2*(len(snapshot.Counts)+len(snapshot.Bias)))
	args = append(args, version, c.ttl)
	for id, n := range snapshot.Counts {
		args = append(args, id.String(), n)
	}
	for id, n := range snapshot.Bias {
		args = append(args, biasField+id.String(), n)
	}

	n, err := tallyReplaceScript.Run(ctx, c.rdb, []string{tallyKey(contestID)}, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to replace tally cache: %w", err)
	}
	return n == 1, nil
}

func (c *tallyCache) MarkStale(ctx context.Context, contestID uuid.UUID) error {
	if err := tallyMarkStaleScript.Run(ctx, c.rdb, []string{tallyKey(contestID)}, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark tally cache stale: %w", err)
	}
	return nil
}

func (c *tallyCache) Invalidate(ctx context.Context, contestID uuid.UUID) error {
	if err := tallyInvalidateScript.Run(ctx, c.rdb, []string{tallyKey(contestID)}, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tally cache: %w", err)
	}
	return nil
}

func (c *tallyCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *tallyCache) Degraded() bool { return false }
