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

const contestColumns = `id, name, description, status, nomination_start, nomination_end, voting_start, voting_end, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type contestRepository struct {
	db *sql.DB
}

func NewContestRepository(db *sql.DB) ports.ContestRepository {
	return &contestRepository{
		db: db,
	}
}

func scanContest(row rowScanner) (*domain.Contest, error) {
	var c domain.Contest
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Status,
		&c.NominationStart, &c.NominationEnd, &c.VotingStart, &c.VotingEnd, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getContest(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id uuid.UUID) (*domain.Contest, error) {
	contest, err := scanContest(q.QueryRowContext(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}
	return contest, nil
}

func (r *contestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contest, error) {
	return getContest(ctx, r.db, id)
}

func (r *contestRepository) ListActive(ctx context.Context) ([]*domain.Contest, error) {
	query := `
		SELECT ` + contestColumns + `
		FROM contests
		WHERE status = 'active'
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list contests: %w", err)
	}
	defer rows.Close()

	var contests []*domain.Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		contests = append(contests, contest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contests: %w", err)
	}
	return contests, nil
}

func (r *contestRepository) GetNominee(ctx context.Context, id uuid.UUID) (*domain.Nominee, error) {
	query := `
		SELECT id, contest_id, name, approval, status, media_key, created_at
		FROM nominees
		WHERE id = $1
	`
	var n domain.Nominee
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.ContestID, &n.Name, &n.Approval, &n.Status, &n.MediaKey, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get nominee: %w", err)
	}
	return &n, nil
}
