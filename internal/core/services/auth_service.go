package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type AuthConfig struct {
	GoogleClientID   string
	FailedAuthLimit  int64
	FailedAuthWindow time.Duration
}

type AuthService struct {
	voterRepo           ports.VoterRepository
	sessions            ports.SessionService
	googleTokenVerifier ports.TokenVerifier
	store               ports.CredentialStore
	origins             OriginHasher
	cfg                 AuthConfig
	logger              zerolog.Logger
	now                 func() time.Time
}

func NewAuthService(
	voterRepo ports.VoterRepository,
	sessions ports.SessionService,
	googleTokenVerifier ports.TokenVerifier,
	store ports.CredentialStore,
	origins OriginHasher,
	cfg AuthConfig,
	logger zerolog.Logger,
) *AuthService {
	if cfg.GoogleClientID == "" {
		logger.Warn().Msg("GOOGLE_CLIENT_ID not set")
	}
	return &AuthService{
		voterRepo:           voterRepo,
		sessions:            sessions,
		googleTokenVerifier: googleTokenVerifier,
		store:               store,
		origins:             origins,
		cfg:                 cfg,
		logger:              logger.With().Str("component", "auth").Logger(),
		now:                 time.Now,
	}
}

// ExchangeCode verifies an identity-provider assertion, creates the voter on
// first login and opens a new credential family.
func (s *AuthService) ExchangeCode(ctx context.Context, assertion, origin string) (*domain.Session, error) {
	if assertion == "" {
		return nil, domain.NewError(domain.CodeBadInput, "missing credential")
	}
	if err := s.checkFailedAuth(ctx, origin); err != nil {
		return nil, err
	}

	identity, err := s.googleTokenVerifier.Verify(ctx, assertion, s.cfg.GoogleClientID)
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Code != domain.CodeInvalidToken {
			return nil, err
		}
		s.recordFailedAuth(ctx, origin)
		return nil, domain.WrapError(domain.CodeInvalidToken, "identity assertion rejected", err)
	}
	if identity.Subject == "" {
		s.recordFailedAuth(ctx, origin)
		return nil, domain.NewError(domain.CodeInvalidToken, "identity assertion has no subject")
	}

	voter, err := s.findOrCreate(ctx, identity)
	if err != nil {
		return nil, err
	}

	pair, err := s.sessions.MintPair(ctx, voter)
	if err != nil {
		return nil, err
	}
	return &domain.Session{Tokens: *pair, Voter: voter}, nil
}

// Rotate reloads the voter so the new access credential carries the
// current role.
func (s *AuthService) Rotate(ctx context.Context, refreshToken string, rc domain.RotationContext) (*domain.TokenPair, error) {
	if err := s.checkFailedAuth(ctx, rc.Origin); err != nil {
		return nil, err
	}

	voterID, err := s.sessions.RefreshSubject(refreshToken)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeInvalidToken {
			s.recordFailedAuth(ctx, rc.Origin)
		}
		return nil, err
	}

	voter, err := s.voterRepo.GetByID(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if voter == nil {
		return nil, domain.NewError(domain.CodeInvalidToken, "credential subject no longer exists")
	}

	return s.sessions.Rotate(ctx, refreshToken, voter, rc)
}

// Revoke blacklists an access credential or revokes the family of a refresh
// credential. Revoking an already revoked credential succeeds.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	access, err := s.sessions.VerifyAccess(ctx, token)
	switch {
	case err == nil:
		return s.sessions.RevokeIndividual(ctx, access.TokenID, access.ExpiresAt.Sub(s.now()), "revoked by holder")
	case errors.Is(err, domain.ErrTokenRevoked):
		return nil
	case !errors.Is(err, domain.ErrInvalidToken):
		return err
	}

	refresh, err := s.sessions.VerifyRefresh(ctx, token)
	switch {
	case err == nil:
		return s.sessions.RevokeFamily(ctx, refresh.FamilyID, "logout")
	case errors.Is(err, domain.ErrTokenFamilyRevoked), errors.Is(err, domain.ErrTokenRevoked):
		return nil
	default:
		return err
	}
}

func (s *AuthService) findOrCreate(ctx context.Context, identity *domain.Identity) (*domain.Voter, error) {
	voter, err := s.voterRepo.GetBySubject(ctx, identity.Subject)
	if err != nil {
		return nil, err
	}
	if voter != nil {
		return voter, nil
	}

	voter = &domain.Voter{
		ID:        uuid.New(),
		Subject:   identity.Subject,
		Email:     identity.Email,
		Name:      identity.Name,
		Role:      domain.RoleBasic,
		CreatedAt: s.now(),
	}
	err = s.voterRepo.Create(ctx, voter)
	if errors.Is(err, domain.ErrDuplicateEntry) {
		// Concurrent first login for the same subject.
		existing, getErr := s.voterRepo.GetBySubject(ctx, identity.Subject)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, fmt.Errorf("failed to create voter: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("voter_id", voter.ID.String()).Msg("voter registered")
	return voter, nil
}

// checkFailedAuth is best effort: an unreachable credential store does not
// block logins.
func (s *AuthService) checkFailedAuth(ctx context.Context, origin string) error {
	if s.cfg.FailedAuthLimit <= 0 {
		return nil
	}
	raw, found, err := s.store.Get(ctx, failedAuthPrefix+s.origins.Hash(origin))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed-auth counter unavailable")
		return nil
	}
	if !found {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	if n >= s.cfg.FailedAuthLimit {
		return domain.Unavailable(domain.CodeRateLimited, "too many failed authentication attempts", s.cfg.FailedAuthWindow, nil)
	}
	return nil
}

func (s *AuthService) recordFailedAuth(ctx context.Context, origin string) {
	if s.cfg.FailedAuthLimit <= 0 {
		return
	}
	if _, err := s.store.Increment(ctx, failedAuthPrefix+s.origins.Hash(origin), s.cfg.FailedAuthWindow); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record failed authentication")
	}
}
