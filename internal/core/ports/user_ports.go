package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

// VoterRepository returns nil, nil when a voter does not exist.
type VoterRepository interface {
	GetBySubject(ctx context.Context, subject string) (*domain.Voter, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Voter, error)
	Create(ctx context.Context, voter *domain.Voter) error
	UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error
	CountAuthenticators(ctx context.Context, voterID uuid.UUID) (int, error)
}

type UserService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Voter, error)
	UpdateRole(ctx context.Context, operator domain.Caller, voterID uuid.UUID, role domain.Role) (*domain.Voter, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}
