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

type VoterRepository struct {
	db *sql.DB
}

func NewVoterRepository(db *sql.DB) ports.VoterRepository {
	return &VoterRepository{db: db}
}

func (r *VoterRepository) GetBySubject(ctx context.Context, subject string) (*domain.Voter, error) {
	query := `SELECT id, subject, email, name, role, created_at FROM voters WHERE subject = $1`
	return r.get(ctx, query, subject)
}

func (r *VoterRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Voter, error) {
	query := `SELECT id, subject, email, name, role, created_at FROM voters WHERE id = $1`
	return r.get(ctx, query, id)
}

func (r *VoterRepository) get(ctx context.Context, query string, arg any) (*domain.Voter, error) {
	voter := &domain.Voter{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&voter.ID, &voter.Subject, &voter.Email, &voter.Name, &voter.Role, &voter.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get voter: %w", err)
	}
	return voter, nil
}

func (r *VoterRepository) Create(ctx context.Context, voter *domain.Voter) error {
	query := `
		INSERT INTO voters (id, subject, email, name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, voter.ID, voter.Subject, voter.Email, voter.Name, voter.Role, voter.CreatedAt)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return domain.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create voter: %w", err)
	}
	return nil
}

func (r *VoterRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE voters SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("failed to update voter role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update voter role: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *VoterRepository) CountAuthenticators(ctx context.Context, voterID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM authenticator_credentials WHERE voter_id = $1`, voterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count authenticators: %w", err)
	}
	return n, nil
}
