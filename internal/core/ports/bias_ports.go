package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

type BiasRepository interface {
	// UpsertActive updates the active bias of the pair in place, or inserts
	// one when none is active. The stored row is written back into bias.
	UpsertActive(ctx context.Context, bias *domain.Bias) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Bias, error)
	// Deactivate reports false when the bias was already inactive.
	Deactivate(ctx context.Context, id, by uuid.UUID, reason string, at time.Time) (bool, error)
}

type ApplyBiasInput struct {
	ContestID uuid.UUID
	NomineeID uuid.UUID
	Amount    int64
	Reason    string
	Operator  domain.Caller
}

type BiasService interface {
	ApplyBias(ctx context.Context, input ApplyBiasInput) (*domain.Bias, error)
	DeactivateBias(ctx context.Context, operator domain.Caller, biasID uuid.UUID, reason string) error
}
