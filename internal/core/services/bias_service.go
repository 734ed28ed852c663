package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type biasService struct {
	contestRepo ports.ContestRepository
	biasRepo    ports.BiasRepository
	auditRepo   ports.AuditRepository
	tally       ports.TallyService
	hinter      ports.RepairHinter
	logger      zerolog.Logger
	now         func() time.Time
}

func NewBiasService(contestRepo ports.ContestRepository, biasRepo ports.BiasRepository, auditRepo ports.AuditRepository, tally ports.TallyService, hinter ports.RepairHinter, logger zerolog.Logger) ports.BiasService {
	return &biasService{
		contestRepo: contestRepo,
		biasRepo:    biasRepo,
		auditRepo:   auditRepo,
		tally:       tally,
		hinter:      hinter,
		logger:      logger.With().Str("component", "bias").Logger(),
		now:         time.Now,
	}
}

// ApplyBias sets the active bias of a (contest, nominee) pair, updating it in
// place when one is already active.
func (s *biasService) ApplyBias(ctx context.Context, input ports.ApplyBiasInput) (*domain.Bias, error) {
	if input.Operator.Role != domain.RoleOperator {
		return nil, domain.ErrForbidden
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, domain.NewError(domain.CodeBadInput, "reason is required")
	}

	if _, err := s.contestRepo.GetByID(ctx, input.ContestID); err != nil {
		return nil, err
	}
	nominee, err := s.contestRepo.GetNominee(ctx, input.NomineeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrBadTarget
	}
	if err != nil {
		return nil, err
	}
	if nominee.ContestID != input.ContestID {
		return nil, domain.ErrBadTarget
	}

	now := s.now()
	bias := &domain.Bias{
		ID:        uuid.New(),
		ContestID: input.ContestID,
		NomineeID: input.NomineeID,
		Amount:    input.Amount,
		Reason:    reason,
		AppliedBy: input.Operator.ID,
		Status:    domain.BiasActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.biasRepo.UpsertActive(ctx, bias); err != nil {
		return nil, err
	}

	s.audit(ctx, input.Operator.ID, domain.AuditBiasApplied, bias.ID, map[string]any{
		"contest_id": bias.ContestID.String(),
		"nominee_id": bias.NomineeID.String(),
		"amount":     bias.Amount,
		"reason":     bias.Reason,
	})
	s.clearTally(ctx, bias.ContestID)
	return bias, nil
}

// DeactivateBias is a no-op for a bias that is already inactive.
func (s *biasService) DeactivateBias(ctx context.Context, operator domain.Caller, biasID uuid.UUID, reason string) error {
	if operator.Role != domain.RoleOperator {
		return domain.ErrForbidden
	}

	bias, err := s.biasRepo.GetByID(ctx, biasID)
	if err != nil {
		return err
	}
	if !bias.Active() {
		return nil
	}

	changed, err := s.biasRepo.Deactivate(ctx, biasID, operator.ID, strings.TrimSpace(reason), s.now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.audit(ctx, operator.ID, domain.AuditBiasDeactivated, biasID, map[string]any{
		"contest_id": bias.ContestID.String(),
		"nominee_id": bias.NomineeID.String(),
		"reason":     strings.TrimSpace(reason),
	})
	s.clearTally(ctx, bias.ContestID)
	return nil
}

func (s *biasService) audit(ctx context.Context, actor uuid.UUID, action string, biasID uuid.UUID, detail map[string]any) {
	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		ActorID:    &actor,
		Action:     action,
		TargetType: "bias",
		TargetID:   biasID.String(),
		Detail:     detail,
		CreatedAt:  s.now(),
	}
	if err := s.auditRepo.Append(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("bias_id", biasID.String()).Str("action", action).Msg("failed to write audit entry")
	}
}

// clearTally is best effort. A failed invalidation leaves the old overlay
// cached, so the contest is handed to the reconciler for a repair pass.
func (s *biasService) clearTally(ctx context.Context, contestID uuid.UUID) {
	if err := s.tally.ClearTallyCache(ctx, contestID); err != nil {
		s.logger.Warn().Err(err).Str("contest_id", contestID.String()).Msg("failed to clear tally cache")
		s.hinter.Hint(contestID)
	}
}
