package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

type ContestRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Contest, error)
	ListActive(ctx context.Context) ([]*domain.Contest, error)
	GetNominee(ctx context.Context, id uuid.UUID) (*domain.Nominee, error)
}

// VoteRepository enforces at most one vote per (voter, contest): Insert
// fails with domain.ErrAlreadyVoted on a uniqueness violation and with
// domain.ErrBadTarget when the nominee does not belong to the contest.
// GetByVoterAndContest fails with domain.ErrNotFound when no vote exists.
type VoteRepository interface {
	Insert(ctx context.Context, vote *domain.Vote) error
	HasVoted(ctx context.Context, voterID, contestID uuid.UUID) (bool, error)
	GetByVoterAndContest(ctx context.Context, voterID, contestID uuid.UUID) (*domain.Vote, error)
}

type VoteInput struct {
	Voter     domain.Caller
	ContestID uuid.UUID
	NomineeID uuid.UUID
	Biometric domain.BiometricResult
	Origin    string
}

type VoteService interface {
	SubmitVote(ctx context.Context, input VoteInput) (*domain.Vote, error)
	CheckVoted(ctx context.Context, voterID, contestID uuid.UUID) (*domain.VoteSummary, error)
}
