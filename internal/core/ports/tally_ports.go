package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

// TallyStore reads the authoritative tally of a contest from the durable
// store. It fails with domain.ErrNotFound for unknown contests.
type TallyStore interface {
	LoadTally(ctx context.Context, contestID uuid.UUID) (*domain.StoredTally, error)
}

// TallyCache is the write-through counter cache. Every write bumps a
// per-contest version; Replace only applies when the version still equals
// the one read before the replacement was computed, so a seed built from a
// durable read can never overwrite increments that raced it.
type TallyCache interface {
	Get(ctx context.Context, contestID uuid.UUID) (domain.TallySnapshot, bool, error)
	Version(ctx context.Context, contestID uuid.UUID) (int64, error)
	// Increment only applies to a seeded contest and reports whether it did.
	Increment(ctx context.Context, contestID, nomineeID uuid.UUID) (bool, error)
	Replace(ctx context.Context, contestID uuid.UUID, snapshot domain.TallySnapshot, version int64) (bool, error)
	MarkStale(ctx context.Context, contestID uuid.UUID) error
	// Invalidate drops the cached tally so the next read reseeds it.
	Invalidate(ctx context.Context, contestID uuid.UUID) error
	Ping(ctx context.Context) error
	// Degraded reports that readers should bypass the cache entirely.
	Degraded() bool
}

type TallyService interface {
	GetTally(ctx context.Context, contestID uuid.UUID) ([]domain.TallyEntry, error)
	ListResults(ctx context.Context) ([]domain.ContestResult, error)
	ClearTallyCache(ctx context.Context, contestID uuid.UUID) error
}

// RepairHinter accepts cache-repair hints for contests whose cache may have
// missed a write.
type RepairHinter interface {
	Hint(contestID uuid.UUID)
}

type Reconciler interface {
	RepairHinter
	ReconcileAll(ctx context.Context, force bool) (*domain.ReconcileReport, error)
	ReconcileContest(ctx context.Context, contestID uuid.UUID, force bool) (bool, error)
}
