package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type tallyRepository struct {
	db *sql.DB
}

func NewTallyRepository(db *sql.DB) ports.TallyStore {
	return &tallyRepository{
		db: db,
	}
}

// LoadTally reads the contest, its grouped vote counts and its active
// biases from one snapshot. Eligible nominees without votes are reported
// with zero; ineligible nominees only when they hold votes.
func (r *tallyRepository) LoadTally(ctx context.Context, contestID uuid.UUID) (*domain.StoredTally, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	contest, err := getContest(ctx, tx, contestID)
	if err != nil {
		return nil, err
	}

	countsQuery := `
		SELECT n.id, COUNT(v.id)
		FROM nominees n
		LEFT JOIN votes v ON v.contest_id = n.contest_id AND v.nominee_id = n.id
		WHERE n.contest_id = $1
		GROUP BY n.id, n.approval, n.status
		HAVING COUNT(v.id) > 0 OR (n.approval = 'approved' AND n.status = 'active')
	`
	counts, err := r.grouped(ctx, tx, countsQuery, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes for contest %s: %w", contestID, err)
	}

	biasQuery := `
		SELECT nominee_id, amount
		FROM biases
		WHERE contest_id = $1 AND status = 'active'
	`
	bias, err := r.grouped(ctx, tx, biasQuery, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to read biases for contest %s: %w", contestID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &domain.StoredTally{Contest: contest, Counts: counts, Bias: bias}, nil
}

func (r *tallyRepository) grouped(ctx context.Context, tx *sql.Tx, query string, contestID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := tx.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
