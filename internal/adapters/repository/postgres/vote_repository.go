package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type voteRepository struct {
	db *sql.DB
}

func NewVoteRepository(db *sql.DB) ports.VoteRepository {
	return &voteRepository{
		db: db,
	}
}

// Insert relies on UNIQUE (voter_id, contest_id) for at-most-one vote and on
// the (contest_id, nominee_id) foreign key for target membership.
func (r *voteRepository) Insert(ctx context.Context, vote *domain.Vote) error {
	query := `
		INSERT INTO votes (id, voter_id, contest_id, nominee_id, biometric_verified, origin_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.db.ExecContext(ctx, query,
		vote.ID, vote.VoterID, vote.ContestID, vote.NomineeID, vote.BiometricVerified, vote.OriginHash, vote.CreatedAt,
	)
	if err != nil {
		switch pqCode(err) {
		case uniqueViolation:
			return domain.ErrAlreadyVoted
		case foreignKeyViolation:
			return domain.ErrBadTarget
		}
		return fmt.Errorf("failed to save vote: %w", err)
	}
	return nil
}

func (r *voteRepository) HasVoted(ctx context.Context, voterID, contestID uuid.UUID) (bool, error) {
	query := `SELECT 1 FROM votes WHERE voter_id = $1 AND contest_id = $2 LIMIT 1`
	var exists int
	err := r.db.QueryRowContext(ctx, query, voterID, contestID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing vote: %w", err)
	}
	return true, nil
}

func (r *voteRepository) GetByVoterAndContest(ctx context.Context, voterID, contestID uuid.UUID) (*domain.Vote, error) {
	query := `
		SELECT id, voter_id, contest_id, nominee_id, biometric_verified, origin_hash, created_at
		FROM votes
		WHERE voter_id = $1 AND contest_id = $2
	`
	var vote domain.Vote
	err := r.db.QueryRowContext(ctx, query, voterID, contestID).Scan(
		&vote.ID, &vote.VoterID, &vote.ContestID, &vote.NomineeID, &vote.BiometricVerified, &vote.OriginHash, &vote.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return &vote, nil
}
