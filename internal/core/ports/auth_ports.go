package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

// TokenVerifier validates an identity-provider assertion.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, clientID string) (*domain.Identity, error)
}

// CredentialStore is a key-value store with per-key TTLs. SetIfAbsent must
// be linearizable for concurrent calls on the same key.
type CredentialStore interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, ttlOnCreation time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type SessionService interface {
	MintPair(ctx context.Context, voter *domain.Voter) (*domain.TokenPair, error)
	VerifyAccess(ctx context.Context, token string) (*domain.AccessPayload, error)
	VerifyRefresh(ctx context.Context, token string) (*domain.RefreshPayload, error)
	RefreshSubject(token string) (uuid.UUID, error)
	Rotate(ctx context.Context, oldRefresh string, voter *domain.Voter, rc domain.RotationContext) (*domain.TokenPair, error)
	RevokeFamily(ctx context.Context, familyID, reason string) error
	RevokeIndividual(ctx context.Context, tokenID string, remaining time.Duration, reason string) error
}

type AuthService interface {
	ExchangeCode(ctx context.Context, assertion, origin string) (*domain.Session, error)
	Rotate(ctx context.Context, refreshToken string, rc domain.RotationContext) (*domain.TokenPair, error)
	Revoke(ctx context.Context, token string) error
}

// AuthenticatorVerifier checks a platform-authenticator assertion for a voter.
// A dismissed prompt is reported as domain.ErrAuthenticatorCancelled.
type AuthenticatorVerifier interface {
	VerifyAssertion(ctx context.Context, voterID uuid.UUID, assertion string) (bool, error)
}

type BiometricGate interface {
	Check(ctx context.Context, voterID uuid.UUID, assertion string) (domain.BiometricResult, error)
}
