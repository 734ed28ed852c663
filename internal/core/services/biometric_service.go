package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type biometricGate struct {
	voterRepo ports.VoterRepository
	verifier  ports.AuthenticatorVerifier
	enforced  bool
	logger    zerolog.Logger
}

// NewBiometricGate builds the gate that turns the biometric assertion of a
// vote request into a domain.BiometricResult. With enforced unset every
// check yields BiometricSkipped.
func NewBiometricGate(voterRepo ports.VoterRepository, verifier ports.AuthenticatorVerifier, enforced bool, logger zerolog.Logger) ports.BiometricGate {
	return &biometricGate{
		voterRepo: voterRepo,
		verifier:  verifier,
		enforced:  enforced,
		logger:    logger.With().Str("component", "biometric").Logger(),
	}
}

func (g *biometricGate) Check(ctx context.Context, voterID uuid.UUID, assertion string) (domain.BiometricResult, error) {
	if !g.enforced {
		return domain.BiometricSkipped, nil
	}

	registered, err := g.voterRepo.CountAuthenticators(ctx, voterID)
	if err != nil {
		return domain.BiometricMissing, err
	}
	if registered == 0 {
		return domain.BiometricSetupRequired, nil
	}
	if assertion == "" {
		return domain.BiometricMissing, nil
	}

	ok, err := g.verifier.VerifyAssertion(ctx, voterID, assertion)
	if errors.Is(err, domain.ErrAuthenticatorCancelled) {
		return domain.BiometricMissing, nil
	}
	if err != nil {
		return domain.BiometricMissing, err
	}
	if !ok {
		g.logger.Info().Str("voter_id", voterID.String()).Msg("biometric assertion rejected")
		return domain.BiometricMissing, nil
	}
	return domain.BiometricVerified, nil
}
