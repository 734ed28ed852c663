// Package resilient wraps every outbound port in the circuit breaker of
// its dependency class.
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

type voterRepository struct {
	next    ports.VoterRepository
	breaker *resilience.Breaker
}

func NewVoterRepository(next ports.VoterRepository, reg *resilience.Registry) ports.VoterRepository {
	return &voterRepository{next: next, breaker: reg.Breaker(resilience.DurableStore)}
}

func (r *voterRepository) GetBySubject(ctx context.Context, subject string) (*domain.Voter, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Voter, error) {
		return r.next.GetBySubject(ctx, subject)
	}, nil)
}

func (r *voterRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Voter, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Voter, error) {
		return r.next.GetByID(ctx, id)
	}, nil)
}

func (r *voterRepository) Create(ctx context.Context, voter *domain.Voter) error {
	return resilience.Run(ctx, r.breaker, func(ctx context.Context) error {
		return r.next.Create(ctx, voter)
	})
}

func (r *voterRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	return resilience.Run(ctx, r.breaker, func(ctx context.Context) error {
		return r.next.UpdateRole(ctx, id, role)
	})
}

func (r *voterRepository) CountAuthenticators(ctx context.Context, voterID uuid.UUID) (int, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (int, error) {
		return r.next.CountAuthenticators(ctx, voterID)
	}, nil)
}

type contestRepository struct {
	next    ports.ContestRepository
	breaker *resilience.Breaker
}

func NewContestRepository(next ports.ContestRepository, reg *resilience.Registry) ports.ContestRepository {
	return &contestRepository{next: next, breaker: reg.Breaker(resilience.DurableStore)}
}

func (r *contestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contest, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Contest, error) {
		return r.next.GetByID(ctx, id)
	}, nil)
}

func (r *contestRepository) ListActive(ctx context.Context) ([]*domain.Contest, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) ([]*domain.Contest, error) {
		return r.next.ListActive(ctx)
	}, nil)
}

func (r *contestRepository) GetNominee(ctx context.Context, id uuid.UUID) (*domain.Nominee, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Nominee, error) {
		return r.next.GetNominee(ctx, id)
	}, nil)
}

type voteRepository struct {
	next    ports.VoteRepository
	breaker *resilience.Breaker
}

func NewVoteRepository(next ports.VoteRepository, reg *resilience.Registry) ports.VoteRepository {
	return &voteRepository{next: next, breaker: reg.Breaker(resilience.DurableStore)}
}

func (r *voteRepository) Insert(ctx context.Context, vote *domain.Vote) error {
	return resilience.Run(ctx, r.breaker, func(ctx context.Context) error {
		return r.next.Insert(ctx, vote)
	})
}

func (r *voteRepository) HasVoted(ctx context.Context, voterID, contestID uuid.UUID) (bool, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (bool, error) {
		return r.next.HasVoted(ctx, voterID, contestID)
	}, nil)
}

func (r *voteRepository) GetByVoterAndContest(ctx context.Context, voterID, contestID uuid.UUID) (*domain.Vote, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Vote, error) {
		return r.next.GetByVoterAndContest(ctx, voterID, contestID)
	}, nil)
}

type biasRepository struct {
	next    ports.BiasRepository
	breaker *resilience.Breaker
}

func NewBiasRepository(next ports.BiasRepository, reg *resilience.Registry) ports.BiasRepository {
	return &biasRepository{next: next, breaker: reg.Breaker(resilience.DurableStore)}
}

func (r *biasRepository) UpsertActive(ctx context.Context, bias *domain.Bias) error {
	return resilience.Run(ctx, r.breaker, func(ctx context.Context) error {
		return r.next.UpsertActive(ctx, bias)
	})
}

func (r *biasRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bias, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Bias, error) {
		return r.next.GetByID(ctx, id)
	}, nil)
}

func (r *biasRepository) Deactivate(ctx context.Context, id, by uuid.UUID, reason string, at time.Time) (bool, error) {
	return resilience.Execute(ctx, r.breaker, func(ctx context.Context) (bool, error) {
		return r.next.Deactivate(ctx, id, by, reason, at)
	}, nil)
}

type auditRepository struct {
	next    ports.AuditRepository
	breaker *resilience.Breaker
}

func NewAuditRepository(next ports.AuditRepository, reg *resilience.Registry) ports.AuditRepository {
	return &auditRepository{next: next, breaker: reg.Breaker(resilience.DurableStore)}
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	return resilience.Run(ctx, r.breaker, func(ctx context.Context) error {
		return r.next.Append(ctx, entry)
	})
}

// tallyStore serves the last tally it read for a contest while the durable
// store breaker rejects calls. Such tallies are flagged LastKnown.
type tallyStore struct {
	next      ports.TallyStore
	breaker   *resilience.Breaker
	lastKnown *resilience.LastKnownGood[uuid.UUID, *domain.StoredTally]
	logger    zerolog.Logger
}

func NewTallyStore(next ports.TallyStore, reg *resilience.Registry, lastKnownSize int, logger zerolog.Logger) (ports.TallyStore, error) {
	lastKnown, err := resilience.NewLastKnownGood[uuid.UUID, *domain.StoredTally](lastKnownSize)
	if err != nil {
		return nil, err
	}
	return &tallyStore{
		next:      next,
		breaker:   reg.Breaker(resilience.DurableStore),
		lastKnown: lastKnown,
		logger:    logger.With().Str("component", "tally_store").Logger(),
	}, nil
}

func (s *tallyStore) LoadTally(ctx context.Context, contestID uuid.UUID) (*domain.StoredTally, error) {
	return resilience.Execute(ctx, s.breaker, func(ctx context.Context) (*domain.StoredTally, error) {
		tally, err := s.next.LoadTally(ctx, contestID)
		if err != nil {
			return nil, err
		}
		s.lastKnown.Remember(contestID, tally)
		return tally, nil
	}, func(ctx context.Context) (*domain.StoredTally, error) {
		tally, ok := s.lastKnown.Recall(contestID)
		if !ok {
			return nil, domain.Unavailable(domain.CodeServiceUnavailable,
				"durable store unavailable and no last known tally", s.breaker.RetryAfter(), nil)
		}
		s.logger.Warn().Str("contest_id", contestID.String()).Msg("serving last known tally")
		cp := *tally
		cp.LastKnown = true
		return &cp, nil
	})
}
