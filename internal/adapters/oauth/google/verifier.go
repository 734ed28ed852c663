package google

import (
	"context"
	"strings"

	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"google.golang.org/api/idtoken"
)

type GoogleVerifier struct {
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewVerifier() ports.TokenVerifier {
	return &GoogleVerifier{validate: idtoken.Validate}
}

// Verify returns INVALID_TOKEN for assertions Google rejects. Failures to
// reach Google are returned unwrapped so the identity-provider breaker
// counts them.
func (v *GoogleVerifier) Verify(ctx context.Context, token string, clientID string) (*domain.Identity, error) {
	payload, err := v.validate(ctx, token, clientID)
	if err != nil {
		return nil, classify(err)
	}
	if payload.Subject == "" {
		return nil, domain.NewError(domain.CodeInvalidToken, "subject not found in claims")
	}
	email, ok := payload.Claims["email"].(string)
	if !ok || email == "" {
		return nil, domain.NewError(domain.CodeInvalidToken, "email not found in claims")
	}
	name, _ := payload.Claims["name"].(string)
	return &domain.Identity{Subject: payload.Subject, Email: email, Name: name}, nil
}

// idtoken prefixes every validation failure; transport errors carry no prefix.
func classify(err error) error {
	if strings.HasPrefix(err.Error(), "idtoken:") {
		return domain.WrapError(domain.CodeInvalidToken, "identity assertion rejected", err)
	}
	return err
}
