package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"github.com/vncsmyrnk/awardpoll/internal/metrics"
)

const (
	blacklistPrefix      = "blacklist:"
	revokedFamilyPrefix  = "revoked_family:"
	usedRefreshPrefix    = "used_refresh:"
	failedAuthPrefix     = "failed_auth:"
	revokedFamilyMarker  = "1"
	blacklistedJTIMarker = "1"
	securityKindReuse    = "token_reuse"
)

type SessionConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type credentialClaims struct {
	Kind     domain.TokenKind `json:"kind"`
	Role     domain.Role      `json:"role,omitempty"`
	FamilyID string           `json:"fid"`
	jwt.RegisteredClaims
}

// SessionService mints and verifies access/refresh credentials and rotates
// refresh credentials within a family, revoking the whole family when a
// refresh credential is presented twice.
type SessionService struct {
	store   ports.CredentialStore
	audit   ports.AuditRepository
	cfg     SessionConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSessionService(store ports.CredentialStore, audit ports.AuditRepository, cfg SessionConfig, logger zerolog.Logger, m *metrics.Metrics) *SessionService {
	return &SessionService{
		store:   store,
		audit:   audit,
		cfg:     cfg,
		logger:  logger.With().Str("component", "session").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

func (s *SessionService) MintPair(ctx context.Context, voter *domain.Voter) (*domain.TokenPair, error) {
	return s.mintPair(voter, uuid.NewString())
}

func (s *SessionService) mintPair(voter *domain.Voter, familyID string) (*domain.TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.sign(domain.TokenAccess, voter, familyID, now)
	if err != nil {
		return nil, domain.WrapError(domain.CodeInternal, "failed to sign access credential", err)
	}
	refresh, refreshExp, err := s.sign(domain.TokenRefresh, voter, familyID, now)
	if err != nil {
		return nil, domain.WrapError(domain.CodeInternal, "failed to sign refresh credential", err)
	}

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		FamilyID:         familyID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *SessionService) sign(kind domain.TokenKind, voter *domain.Voter, familyID string, now time.Time) (string, time.Time, error) {
	secret, ttl := s.cfg.AccessSecret, s.cfg.AccessTTL
	claims := credentialClaims{Kind: kind, FamilyID: familyID}
	if kind == domain.TokenAccess {
		claims.Role = voter.Role
	} else {
		secret, ttl = s.cfg.RefreshSecret, s.cfg.RefreshTTL
	}

	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   voter.ID.String(),
		Issuer:    s.cfg.Issuer,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *SessionService) parse(token string, kind domain.TokenKind) (*credentialClaims, uuid.UUID, error) {
	if token == "" {
		return nil, uuid.Nil, domain.ErrNoToken
	}
	secret := s.cfg.AccessSecret
	if kind == domain.TokenRefresh {
		secret = s.cfg.RefreshSecret
	}

	claims := &credentialClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, uuid.Nil, domain.ErrTokenExpired
		}
		return nil, uuid.Nil, domain.WrapError(domain.CodeInvalidToken, "invalid credential", err)
	}
	if claims.Kind != kind || claims.ID == "" || claims.FamilyID == "" {
		return nil, uuid.Nil, domain.ErrInvalidToken
	}
	voterID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, domain.WrapError(domain.CodeInvalidToken, "invalid credential subject", err)
	}
	return claims, voterID, nil
}

// VerifyAccess fails closed: when revocation state cannot be read the
// credential is treated as revoked.
func (s *SessionService) VerifyAccess(ctx context.Context, token string) (*domain.AccessPayload, error) {
	claims, voterID, err := s.parse(token, domain.TokenAccess)
	if err != nil {
		return nil, err
	}

	revoked, err := s.anyPresent(ctx, blacklistPrefix+claims.ID, revokedFamilyPrefix+claims.FamilyID)
	if err != nil {
		s.logger.Warn().Err(err).Str("code", string(domain.CodeTokenRevoked)).Msg("credential store unavailable, rejecting access credential")
		return nil, domain.WrapError(domain.CodeTokenRevoked, "credential revocation state unavailable", err)
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}

	return &domain.AccessPayload{
		VoterID:   voterID,
		Role:      claims.Role,
		TokenID:   claims.ID,
		FamilyID:  claims.FamilyID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RefreshSubject returns the voter a refresh credential was issued to after
// checking only its signature and expiry.
func (s *SessionService) RefreshSubject(token string) (uuid.UUID, error) {
	_, voterID, err := s.parse(token, domain.TokenRefresh)
	return voterID, err
}

func (s *SessionService) VerifyRefresh(ctx context.Context, token string) (*domain.RefreshPayload, error) {
	return s.verifyRefresh(ctx, token, true)
}

// verifyRefresh checks signature, expiry and family state. Rotation skips
// the blacklist lookup: a rotated credential is blacklisted and carries a
// used-marker, and a second presentation has to surface as a replay.
func (s *SessionService) verifyRefresh(ctx context.Context, token string, checkBlacklist bool) (*domain.RefreshPayload, error) {
	claims, voterID, err := s.parse(token, domain.TokenRefresh)
	if err != nil {
		return nil, err
	}

	_, familyRevoked, err := s.store.Get(ctx, revokedFamilyPrefix+claims.FamilyID)
	if err != nil {
		return nil, s.unavailable(err)
	}
	if familyRevoked {
		return nil, domain.ErrTokenFamilyRevoked
	}
	if checkBlacklist {
		_, blacklisted, err := s.store.Get(ctx, blacklistPrefix+claims.ID)
		if err != nil {
			return nil, s.unavailable(err)
		}
		if blacklisted {
			return nil, domain.ErrTokenRevoked
		}
	}

	return &domain.RefreshPayload{
		VoterID:   voterID,
		TokenID:   claims.ID,
		FamilyID:  claims.FamilyID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Rotate exchanges a refresh credential for a new pair in the same family.
// The used-marker is installed with set-if-absent, so of two concurrent
// rotations of one credential exactly one succeeds and the other revokes
// the family.
func (s *SessionService) Rotate(ctx context.Context, oldRefresh string, voter *domain.Voter, rc domain.RotationContext) (*domain.TokenPair, error) {
	old, err := s.verifyRefresh(ctx, oldRefresh, false)
	if err != nil {
		return nil, err
	}
	if voter == nil || voter.ID != old.VoterID {
		return nil, domain.ErrInvalidToken
	}

	usedKey := usedRefreshPrefix + old.TokenID
	installed, err := s.store.SetIfAbsent(ctx, usedKey, old.FamilyID, s.cfg.RefreshTTL)
	if err != nil {
		return nil, s.unavailable(err)
	}
	if !installed {
		// The used-marker stays, so a retry lands here again and revokes.
		if err := s.store.Set(ctx, revokedFamilyPrefix+old.FamilyID, revokedFamilyMarker, s.cfg.RefreshTTL); err != nil {
			s.logger.Error().Err(err).Str("family_id", old.FamilyID).Msg("failed to revoke family after refresh replay")
			return nil, s.unavailable(err)
		}
		s.securityEvent(ctx, domain.AuditTokenReuse, securityKindReuse, old.VoterID, old.FamilyID, map[string]any{
			"token_id":   old.TokenID,
			"origin":     rc.Origin,
			"user_agent": rc.UserAgent,
		})
		return nil, domain.ErrTokenReuseDetected
	}

	pair, err := s.mintPair(voter, old.FamilyID)
	if err != nil {
		return nil, err
	}

	if err := s.RevokeIndividual(ctx, old.TokenID, old.ExpiresAt.Sub(s.now()), "rotated"); err != nil {
		// Give the caller a clean retry instead of a replay on its next attempt.
		if _, delErr := s.store.Delete(ctx, usedKey); delErr != nil {
			s.logger.Error().Err(delErr).Str("token_id", old.TokenID).Msg("failed to release used refresh marker")
		}
		return nil, s.unavailable(err)
	}

	return pair, nil
}

func (s *SessionService) RevokeFamily(ctx context.Context, familyID, reason string) error {
	if err := s.store.Set(ctx, revokedFamilyPrefix+familyID, revokedFamilyMarker, s.cfg.RefreshTTL); err != nil {
		return s.unavailable(err)
	}
	s.logger.Info().Str("family_id", familyID).Str("reason", reason).Msg("credential family revoked")
	return nil
}

func (s *SessionService) RevokeIndividual(ctx context.Context, tokenID string, remaining time.Duration, reason string) error {
	if remaining <= 0 {
		return nil
	}
	if remaining > s.cfg.RefreshTTL {
		remaining = s.cfg.RefreshTTL
	}
	if err := s.store.Set(ctx, blacklistPrefix+tokenID, blacklistedJTIMarker, remaining); err != nil {
		return s.unavailable(err)
	}
	s.logger.Debug().Str("token_id", tokenID).Str("reason", reason).Msg("credential blacklisted")
	return nil
}

func (s *SessionService) anyPresent(ctx context.Context, keys ...string) (bool, error) {
	for _, key := range keys {
		_, found, err := s.store.Get(ctx, key)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (s *SessionService) unavailable(err error) error {
	return domain.Unavailable(domain.CodeServiceUnavailable, "credential store unavailable", domain.RetryAfterOf(err), err)
}

func (s *SessionService) securityEvent(ctx context.Context, action, kind string, voterID uuid.UUID, familyID string, detail map[string]any) {
	s.metrics.SecurityEvent(kind)
	s.logger.Warn().
		Str("code", string(domain.CodeTokenReuseDetected)).
		Str("voter_id", voterID.String()).
		Str("family_id", familyID).
		Fields(detail).
		Msg("refresh credential replay detected, family revoked")

	if s.audit == nil {
		return
	}
	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		ActorID:    &voterID,
		Action:     action,
		TargetType: "credential_family",
		TargetID:   familyID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}
	if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error().Err(err).Msg("failed to record security event")
	}
}
