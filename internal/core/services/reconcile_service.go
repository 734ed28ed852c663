package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"github.com/vncsmyrnk/awardpoll/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	reconcileConcurrency = 4
	rebuildAttempts      = 3
	hintQueueSize        = 256
)

// Reconciler keeps the counter cache consistent with the durable store.
type Reconciler struct {
	contestRepo ports.ContestRepository
	store       ports.TallyStore
	cache       ports.TallyCache
	hints       chan uuid.UUID
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewReconciler(contestRepo ports.ContestRepository, store ports.TallyStore, cache ports.TallyCache, logger zerolog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		contestRepo: contestRepo,
		store:       store,
		cache:       cache,
		hints:       make(chan uuid.UUID, hintQueueSize),
		logger:      logger.With().Str("component", "reconciler").Logger(),
		metrics:     m,
		now:         time.Now,
	}
}

// Hint never blocks. When the queue is full the hint is dropped and the next
// full pass repairs the contest.
func (r *Reconciler) Hint(contestID uuid.UUID) {
	r.metrics.RepairHinted()
	select {
	case r.hints <- contestID:
	default:
		r.logger.Warn().Str("contest_id", contestID.String()).Msg("repair hint queue full, deferring to next full pass")
	}
}

func (r *Reconciler) ReconcileAll(ctx context.Context, force bool) (*domain.ReconcileReport, error) {
	start := r.now()
	contests, err := r.contestRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active contests: %w", err)
	}

	var repaired, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(reconcileConcurrency)
	for _, contest := range contests {
		g.Go(func() error {
			ok, err := r.ReconcileContest(ctx, contest.ID, force)
			if err != nil {
				failed.Add(1)
				r.logger.Warn().Err(err).Str("code", string(domain.CodeOf(err))).Str("contest_id", contest.ID.String()).Msg("failed to reconcile contest")
				return nil
			}
			if ok {
				repaired.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	r.metrics.ReconcileRun()

	report := &domain.ReconcileReport{
		Checked:   len(contests),
		Repaired:  int(repaired.Load()),
		Failed:    int(failed.Load()),
		StartedAt: start,
		Duration:  r.now().Sub(start),
	}
	r.logger.Info().
		Int("checked", report.Checked).
		Int("repaired", report.Repaired).
		Int("failed", report.Failed).
		Bool("force", force).
		Dur("duration", report.Duration).
		Msg("tally reconciliation finished")

	if report.Failed > 0 {
		return report, fmt.Errorf("failed to reconcile %d of %d contests", report.Failed, report.Checked)
	}
	return report, nil
}

// ReconcileContest rebuilds the cached tally of one contest when it is
// missing, marked stale or diverges from the store, or unconditionally when
// force is set. It reports whether the cache was rewritten.
func (r *Reconciler) ReconcileContest(ctx context.Context, contestID uuid.UUID, force bool) (bool, error) {
	for attempt := 0; attempt < rebuildAttempts; attempt++ {
		version, err := r.cache.Version(ctx, contestID)
		if err != nil {
			return false, err
		}
		cached, found, err := r.cache.Get(ctx, contestID)
		if err != nil {
			return false, err
		}
		stored, err := r.store.LoadTally(ctx, contestID)
		if err != nil {
			return false, err
		}
		if stored.LastKnown {
			return false, domain.NewError(domain.CodeStoreUnavailable, "durable store unavailable, refusing to rebuild from last known tally")
		}

		want := stored.Snapshot()
		consistent := found && !cached.Stale && sameTally(cached, want)
		if consistent && !force {
			return false, nil
		}
		if found && !cached.Stale && !consistent {
			r.metrics.TallyDiverged()
			r.logger.Warn().Str("contest_id", contestID.String()).Msg("cached tally diverged from store")
		}

		applied, err := r.cache.Replace(ctx, contestID, want, version)
		if err != nil {
			return false, err
		}
		if applied {
			return true, nil
		}
	}
	return false, fmt.Errorf("tally cache for contest %s kept changing during rebuild", contestID)
}

// Run serves repair hints as they arrive and runs a full pass every interval
// until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.hints:
			if _, err := r.ReconcileContest(ctx, id, false); err != nil {
				r.logger.Warn().Err(err).Str("contest_id", id.String()).Msg("hinted repair failed")
			}
		case <-ticker.C:
			_, _ = r.ReconcileAll(ctx, false)
		}
	}
}

func sameTally(a, b domain.TallySnapshot) bool {
	return sameCounts(a.Counts, b.Counts) && sameCounts(a.Bias, b.Bias)
}

// sameCounts treats absent entries as zero.
func sameCounts(a, b map[uuid.UUID]int64) bool {
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if a[k] != v {
			return false
		}
	}
	return true
}
