package resilient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"github.com/vncsmyrnk/awardpoll/internal/resilience"
)

type tallyCache struct {
	next    ports.TallyCache
	breaker *resilience.Breaker
}

func NewTallyCache(next ports.TallyCache, reg *resilience.Registry) ports.TallyCache {
	return &tallyCache{next: next, breaker: reg.Breaker(resilience.CounterCache)}
}

type snapshotResult struct {
	snap  domain.TallySnapshot
	found bool
}

func (c *tallyCache) Get(ctx context.Context, contestID uuid.UUID) (domain.TallySnapshot, bool, error) {
	res, err := resilience.Execute(ctx, c.breaker, func(ctx context.Context) (snapshotResult, error) {
		snap, found, err := c.next.Get(ctx, contestID)
		return snapshotResult{snap: snap, found: found}, err
	}, nil)
	return res.snap, res.found, err
}

func (c *tallyCache) Version(ctx context.Context, contestID uuid.UUID) (int64, error) {
	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (int64, error) {
		return c.next.Version(ctx, contestID)
	}, nil)
}

func (c *tallyCache) Increment(ctx context.Context, contestID, nomineeID uuid.UUID) (bool, error) {
	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (bool, error) {
		return c.next.Increment(ctx, contestID, nomineeID)
	}, nil)
}

func (c *tallyCache) Replace(ctx context.Context, contestID uuid.UUID, snapshot domain.TallySnapshot, version int64) (bool, error) {
	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (bool, error) {
		return c.next.Replace(ctx, contestID, snapshot, version)
	}, nil)
}

func (c *tallyCache) MarkStale(ctx context.Context, contestID uuid.UUID) error {
	return resilience.Run(ctx, c.breaker, func(ctx context.Context) error {
		return c.next.MarkStale(ctx, contestID)
	})
}

func (c *tallyCache) Invalidate(ctx context.Context, contestID uuid.UUID) error {
	return resilience.Run(ctx, c.breaker, func(ctx context.Context) error {
		return c.next.Invalidate(ctx, contestID)
	})
}

func (c *tallyCache) Ping(ctx context.Context) error {
	return resilience.Run(ctx, c.breaker, c.next.Ping)
}

// Degraded reports whether the counter-cache breaker is anything but closed.
// Readers bypass the cache until it closes again.
func (c *tallyCache) Degraded() bool {
	return c.breaker.State() != resilience.StateClosed
}

// WatchTallyCache pings a degraded counter cache every interval so its
// breaker gets the half-open trial call without waiting for traffic. It returns
// when ctx is done.
func WatchTallyCache(ctx context.Context, cache ports.TallyCache, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !cache.Degraded() {
				continue
			}
			if err := cache.Ping(ctx); err != nil {
				logger.Debug().Err(err).Msg("counter cache still unavailable")
				continue
			}
			if !cache.Degraded() {
				logger.Info().Msg("counter cache recovered")
			}
		}
	}
}

// credentialStore has no fallback. Callers decide how to fail: access
// verification fails closed, rotation reports SERVICE_UNAVAILABLE.
type credentialStore struct {
	next    ports.CredentialStore
	breaker *resilience.Breaker
}

func NewCredentialStore(next ports.CredentialStore, reg *resilience.Registry) ports.CredentialStore {
	return &credentialStore{next: next, breaker: reg.Breaker(resilience.CredentialStore)}
}

func (s *credentialStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return resilience.Execute(ctx, s.breaker, func(ctx context.Context) (bool, error) {
		return s.next.SetIfAbsent(ctx, key, value, ttl)
	}, nil)
}

func (s *credentialStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return resilience.Run(ctx, s.breaker, func(ctx context.Context) error {
		return s.next.Set(ctx, key, value, ttl)
	})
}

type valueResult struct {
	value string
	found bool
}

func (s *credentialStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := resilience.Execute(ctx, s.breaker, func(ctx context.Context) (valueResult, error) {
		v, found, err := s.next.Get(ctx, key)
		return valueResult{value: v, found: found}, err
	}, nil)
	return res.value, res.found, err
}

func (s *credentialStore) Delete(ctx context.Context, key string) (int64, error) {
	return resilience.Execute(ctx, s.breaker, func(ctx context.Context) (int64, error) {
		return s.next.Delete(ctx, key)
	}, nil)
}

func (s *credentialStore) Increment(ctx context.Context, key string, ttlOnCreation time.Duration) (int64, error) {
	return resilience.Execute(ctx, s.breaker, func(ctx context.Context) (int64, error) {
		return s.next.Increment(ctx, key, ttlOnCreation)
	}, nil)
}

func (s *credentialStore) Ping(ctx context.Context) error {
	return resilience.Run(ctx, s.breaker, s.next.Ping)
}

// idempotencyStore shares the credential-store breaker: both live in the
// same Redis deployment.
type idempotencyStore struct {
	next    ports.IdempotencyStore
	breaker *resilience.Breaker
}

func NewIdempotencyStore(next ports.IdempotencyStore, reg *resilience.Registry) ports.IdempotencyStore {
	return &idempotencyStore{next: next, breaker: reg.Breaker(resilience.CredentialStore)}
}

type reserveResult struct {
	recorded *domain.RecordedResponse
	reserved bool
}

func (s *idempotencyStore) Reserve(ctx context.Context, scope string, ttl time.Duration) (*domain.RecordedResponse, bool, error) {
	res, err := resilience.Execute(ctx, s.breaker, func(ctx context.Context) (reserveResult, error) {
		recorded, reserved, err := s.next.Reserve(ctx, scope, ttl)
		return reserveResult{recorded: recorded, reserved: reserved}, err
	}, nil)
	return res.recorded, res.reserved, err
}

func (s *idempotencyStore) Complete(ctx context.Context, scope string, resp *domain.RecordedResponse, ttl time.Duration) error {
	return resilience.Run(ctx, s.breaker, func(ctx context.Context) error {
		return s.next.Complete(ctx, scope, resp, ttl)
	})
}

func (s *idempotencyStore) Release(ctx context.Context, scope string) error {
	return resilience.Run(ctx, s.breaker, func(ctx context.Context) error {
		return s.next.Release(ctx, scope)
	})
}
