package resilient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"github.com/vncsmyrnk/awardpoll/internal/resilience"
)

type mediaStore struct {
	next    ports.MediaStore
	breaker *resilience.Breaker
}

func NewMediaStore(next ports.MediaStore, reg *resilience.Registry) ports.MediaStore {
	return &mediaStore{next: next, breaker: reg.Breaker(resilience.ObjectStore)}
}

func (s *mediaStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return resilience.Execute(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return s.next.PresignGet(ctx, key, ttl)
	}, nil)
}

// authenticatorVerifier lets a dismissed prompt through as an expected
// error; the registry never counts it against the breaker.
type authenticatorVerifier struct {
	next    ports.AuthenticatorVerifier
	breaker *resilience.Breaker
}

func NewAuthenticatorVerifier(next ports.AuthenticatorVerifier, reg *resilience.Registry) ports.AuthenticatorVerifier {
	return &authenticatorVerifier{next: next, breaker: reg.Breaker(resilience.Authenticator)}
}

func (v *authenticatorVerifier) VerifyAssertion(ctx context.Context, voterID uuid.UUID, assertion string) (bool, error) {
	return resilience.Execute(ctx, v.breaker, func(ctx context.Context) (bool, error) {
		return v.next.VerifyAssertion(ctx, voterID, assertion)
	}, nil)
}

type tokenVerifier struct {
	next    ports.TokenVerifier
	breaker *resilience.Breaker
}

func NewTokenVerifier(next ports.TokenVerifier, reg *resilience.Registry) ports.TokenVerifier {
	return &tokenVerifier{next: next, breaker: reg.Breaker(resilience.IdentityProvider)}
}

func (v *tokenVerifier) Verify(ctx context.Context, token string, clientID string) (*domain.Identity, error) {
	return resilience.Execute(ctx, v.breaker, func(ctx context.Context) (*domain.Identity, error) {
		return v.next.Verify(ctx, token, clientID)
	}, nil)
}
