package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type UserService struct {
	repo      ports.VoterRepository
	auditRepo ports.AuditRepository
	logger    zerolog.Logger
}

func NewUserService(repo ports.VoterRepository, auditRepo ports.AuditRepository, logger zerolog.Logger) ports.UserService {
	return &UserService{
		repo:      repo,
		auditRepo: auditRepo,
		logger:    logger.With().Str("component", "users").Logger(),
	}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Voter, error) {
	voter, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get voter: %w", err)
	}
	if voter == nil {
		return nil, domain.ErrNotFound
	}
	return voter, nil
}

// UpdateRole changes the role of a voter. Only operators may change roles,
// and never their own.
func (s *UserService) UpdateRole(ctx context.Context, operator domain.Caller, voterID uuid.UUID, role domain.Role) (*domain.Voter, error) {
	if operator.Role != domain.RoleOperator {
		return nil, domain.ErrForbidden
	}
	if operator.ID == voterID {
		return nil, domain.ErrSelfModification
	}
	if !role.Valid() {
		return nil, domain.NewError(domain.CodeBadInput, "unknown role "+string(role))
	}

	voter, err := s.GetByID(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if voter.Role == role {
		return voter, nil
	}

	previous := voter.Role
	if err := s.repo.UpdateRole(ctx, voterID, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	voter.Role = role

	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		ActorID:    &operator.ID,
		Action:     domain.AuditRoleChanged,
		TargetType: "voter",
		TargetID:   voterID.String(),
		Detail:     map[string]any{"from": string(previous), "to": string(role)},
		CreatedAt:  time.Now(),
	}
	if err := s.auditRepo.Append(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("voter_id", voterID.String()).Msg("failed to write audit entry")
	}
	return voter, nil
}
