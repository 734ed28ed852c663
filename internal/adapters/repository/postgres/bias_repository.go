package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type biasRepository struct {
	db *sql.DB
}

func NewBiasRepository(db *sql.DB) ports.BiasRepository {
	return &biasRepository{db: db}
}

// UpsertActive leans on the partial unique index over active biases: a
// conflict means the pair already has an active bias, which is updated in
// place and keeps its id.
func (r *biasRepository) UpsertActive(ctx context.Context, bias *domain.Bias) error {
	query := `
		INSERT INTO biases (id, contest_id, nominee_id, amount, reason, applied_by, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $7)
		ON CONFLICT (contest_id, nominee_id) WHERE status = 'active'
		DO UPDATE SET amount = EXCLUDED.amount,
		              reason = EXCLUDED.reason,
		              applied_by = EXCLUDED.applied_by,
		              updated_at = EXCLUDED.updated_at
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		bias.ID, bias.ContestID, bias.NomineeID, bias.Amount, bias.Reason, bias.AppliedBy, bias.UpdatedAt,
	).Scan(&bias.ID, &bias.Status, &bias.CreatedAt, &bias.UpdatedAt)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return domain.ErrBadTarget
		}
		return fmt.Errorf("failed to upsert bias: %w", err)
	}
	return nil
}

func (r *biasRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bias, error) {
	query := `
		SELECT id, contest_id, nominee_id, amount, reason, applied_by, status, created_at, updated_at,
		       deactivated_at, deactivated_by, deactivation_reason
		FROM biases
		WHERE id = $1
	`
	var (
		b             domain.Bias
		deactivatedBy uuid.NullUUID
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.ContestID, &b.NomineeID, &b.Amount, &b.Reason, &b.AppliedBy, &b.Status, &b.CreatedAt, &b.UpdatedAt,
		&b.DeactivatedAt, &deactivatedBy, &b.DeactivationReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bias: %w", err)
	}
	if deactivatedBy.Valid {
		b.DeactivatedBy = &deactivatedBy.UUID
	}
	return &b, nil
}

func (r *biasRepository) Deactivate(ctx context.Context, id, by uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE biases
		SET status = 'inactive', deactivated_at = $3, deactivated_by = $2, deactivation_reason = $4, updated_at = $3
		WHERE id = $1 AND status = 'active'
	`
	res, err := r.db.ExecContext(ctx, query, id, by, at, reason)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate bias: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate bias: %w", err)
	}
	return n == 1, nil
}
