package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"github.com/vncsmyrnk/awardpoll/internal/metrics"
)

type voteService struct {
	contestRepo ports.ContestRepository
	voteRepo    ports.VoteRepository
	cache       ports.TallyCache
	hinter      ports.RepairHinter
	origins     OriginHasher
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewVoteService(
	contestRepo ports.ContestRepository,
	voteRepo ports.VoteRepository,
	cache ports.TallyCache,
	hinter ports.RepairHinter,
	origins OriginHasher,
	logger zerolog.Logger,
	m *metrics.Metrics,
) ports.VoteService {
	return &voteService{
		contestRepo: contestRepo,
		voteRepo:    voteRepo,
		cache:       cache,
		hinter:      hinter,
		origins:     origins,
		logger:      logger.With().Str("component", "votes").Logger(),
		metrics:     m,
		now:         time.Now,
	}
}

// SubmitVote checks its preconditions in a fixed order so that a cheaper
// failure never reveals state behind a later one.
func (s *voteService) SubmitVote(ctx context.Context, input ports.VoteInput) (*domain.Vote, error) {
	vote, err := s.submit(ctx, input)
	if err != nil {
		s.metrics.VoteRecorded(string(domain.CodeOf(err)))
		return nil, err
	}
	s.metrics.VoteRecorded("ok")
	return vote, nil
}

func (s *voteService) submit(ctx context.Context, input ports.VoteInput) (*domain.Vote, error) {
	if !input.Voter.Role.CanVote() {
		return nil, domain.ErrForbidden
	}

	switch input.Biometric {
	case domain.BiometricVerified, domain.BiometricSkipped:
	case domain.BiometricSetupRequired:
		return nil, domain.ErrBiometricSetupRequired
	default:
		return nil, domain.ErrBiometricRequired
	}

	now := s.now()
	contest, err := s.contestRepo.GetByID(ctx, input.ContestID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrWindowClosed
	}
	if err != nil {
		return nil, err
	}
	if !contest.VotingOpen(now) {
		return nil, domain.ErrWindowClosed
	}

	nominee, err := s.contestRepo.GetNominee(ctx, input.NomineeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrBadTarget
	}
	if err != nil {
		return nil, err
	}
	if !nominee.EligibleIn(input.ContestID) {
		return nil, domain.ErrBadTarget
	}

	hasVoted, err := s.voteRepo.HasVoted(ctx, input.Voter.ID, input.ContestID)
	if err != nil {
		return nil, err
	}
	if hasVoted {
		return nil, domain.ErrAlreadyVoted
	}

	vote := &domain.Vote{
		ID:                uuid.New(),
		VoterID:           input.Voter.ID,
		ContestID:         input.ContestID,
		NomineeID:         input.NomineeID,
		BiometricVerified: input.Biometric == domain.BiometricVerified,
		OriginHash:        s.origins.Hash(input.Origin),
		CreatedAt:         now,
	}
	if err := s.voteRepo.Insert(ctx, vote); err != nil {
		return nil, err
	}

	s.applyToCache(ctx, vote)
	return vote, nil
}

// applyToCache never fails the vote: the durable store is authoritative and
// the reconciler repairs whatever the cache missed.
func (s *voteService) applyToCache(ctx context.Context, vote *domain.Vote) {
	applied, err := s.cache.Increment(ctx, vote.ContestID, vote.NomineeID)
	if err == nil {
		if !applied {
			s.logger.Debug().Str("contest_id", vote.ContestID.String()).Msg("tally cache not seeded, increment skipped")
		}
		return
	}

	s.logger.Warn().Err(err).
		Str("code", string(domain.CodeOf(err))).
		Str("contest_id", vote.ContestID.String()).
		Str("vote_id", vote.ID.String()).
		Msg("tally cache increment failed, scheduling repair")

	// The increment may have landed before the failure surfaced; readers
	// must not trust the cached tally until it is rebuilt.
	if err := s.cache.MarkStale(context.WithoutCancel(ctx), vote.ContestID); err != nil {
		s.logger.Warn().Err(err).Str("contest_id", vote.ContestID.String()).Msg("failed to mark tally cache stale")
	}
	s.hinter.Hint(vote.ContestID)
}

func (s *voteService) CheckVoted(ctx context.Context, voterID, contestID uuid.UUID) (*domain.VoteSummary, error) {
	vote, err := s.voteRepo.GetByVoterAndContest(ctx, voterID, contestID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.VoteSummary{Voted: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.VoteSummary{
		Voted:     true,
		VoteID:    &vote.ID,
		NomineeID: &vote.NomineeID,
		VotedAt:   &vote.CreatedAt,
	}, nil
}
