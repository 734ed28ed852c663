package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	resultsConcurrency = 8
	// loadTimeout bounds a shared durable load, which outlives the caller
	// that started it.
	loadTimeout = 30 * time.Second
)

type tallyService struct {
	contestRepo ports.ContestRepository
	store       ports.TallyStore
	cache       ports.TallyCache
	group       singleflight.Group
	logger      zerolog.Logger
}

func NewTallyService(contestRepo ports.ContestRepository, store ports.TallyStore, cache ports.TallyCache, logger zerolog.Logger) ports.TallyService {
	return &tallyService{
		contestRepo: contestRepo,
		store:       store,
		cache:       cache,
		logger:      logger.With().Str("component", "tally").Logger(),
	}
}

// GetTally serves the observable tally (stored counts plus active bias)
// from the counter cache, falling back to the durable store on a miss.
func (s *tallyService) GetTally(ctx context.Context, contestID uuid.UUID) ([]domain.TallyEntry, error) {
	if !s.cache.Degraded() {
		snap, found, err := s.cache.Get(ctx, contestID)
		switch {
		case err != nil:
			s.logger.Debug().Err(err).Str("contest_id", contestID.String()).Msg("tally cache read failed")
		case found && !snap.Stale:
			return snap.Observable(), nil
		}
	}

	// Callers sharing the load each wait on their own context; one leaving
	// does not cancel the load for the others.
	ch := s.group.DoChan(contestID.String(), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.loadAndSeed(loadCtx, contestID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.TallyEntry), nil
	}
}

func (s *tallyService) loadAndSeed(ctx context.Context, contestID uuid.UUID) ([]domain.TallyEntry, error) {
	seed := !s.cache.Degraded()
	var version int64
	if seed {
		var err error
		if version, err = s.cache.Version(ctx, contestID); err != nil {
			seed = false
		}
	}

	stored, err := s.store.LoadTally(ctx, contestID)
	if err != nil {
		return nil, err
	}
	snap := stored.Snapshot()

	if seed && !stored.LastKnown {
		applied, err := s.cache.Replace(ctx, contestID, snap, version)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("contest_id", contestID.String()).Msg("failed to seed tally cache")
		case !applied:
			s.logger.Debug().Str("contest_id", contestID.String()).Msg("tally cache changed while seeding, seed dropped")
		}
	}
	return snap.Observable(), nil
}

func (s *tallyService) ListResults(ctx context.Context) ([]domain.ContestResult, error) {
	contests, err := s.contestRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ContestResult, len(contests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resultsConcurrency)
	for i, contest := range contests {
		g.Go(func() error {
			tally, err := s.GetTally(gctx, contest.ID)
			if err != nil {
				return err
			}
			results[i] = domain.ContestResult{ContestID: contest.ID, Name: contest.Name, Tally: tally}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *tallyService) ClearTallyCache(ctx context.Context, contestID uuid.UUID) error {
	return s.cache.Invalidate(ctx, contestID)
}
