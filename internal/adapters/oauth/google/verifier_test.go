package google

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"google.golang.org/api/idtoken"
)

func stubbed(payload *idtoken.Payload, err error) *GoogleVerifier {
	return &GoogleVerifier{validate: func(context.Context, string, string) (*idtoken.Payload, error) {
		return payload, err
	}}
}

func TestVerify(t *testing.T) {
	v := stubbed(&idtoken.Payload{
		Subject: "10769150350006150715113082367",
		Claims:  map[string]interface{}{"email": "ana@example.com", "name": "Ana"},
	}, nil)

	identity, err := v.Verify(context.Background(), "token", "client")
	require.NoError(t, err)
	assert.Equal(t, "10769150350006150715113082367", identity.Subject)
	assert.Equal(t, "ana@example.com", identity.Email)
	assert.Equal(t, "Ana", identity.Name)
}

func TestVerifyRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload *idtoken.Payload
		err     error
		code    domain.Code
	}{
		{
			name: "validation failure",
			err:  errors.New("idtoken: token expired: now=1, expires=0"),
			code: domain.CodeInvalidToken,
		},
		{
			name:    "missing subject",
			payload: &idtoken.Payload{Claims: map[string]interface{}{"email": "a@example.com"}},
			code:    domain.CodeInvalidToken,
		},
		{
			name:    "missing email",
			payload: &idtoken.Payload{Subject: "sub", Claims: map[string]interface{}{"name": "A"}},
			code:    domain.CodeInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stubbed(tt.payload, tt.err).Verify(context.Background(), "token", "client")
			assert.Equal(t, tt.code, domain.CodeOf(err))
		})
	}
}

func TestVerifyTransportFailureIsNotADomainError(t *testing.T) {
	cause := errors.New(`Get "https://www.googleapis.com/oauth2/v3/certs": dial tcp: i/o timeout`)

	_, err := stubbed(nil, cause).Verify(context.Background(), "token", "client")

	var domainErr *domain.Error
	assert.False(t, errors.As(err, &domainErr))
	assert.ErrorIs(t, err, cause)
}
