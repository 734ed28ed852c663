// Package authenticator verifies platform-authenticator assertions against
// the attestation service that holds the registered public keys.
package authenticator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

const verifyPath = "/v1/assertions/verify"

type verifyRequest struct {
	VoterID   string `json:"voter_id"`
	Assertion string `json:"assertion"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

const reasonCancelled = "cancelled"

type httpClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a verifier for the attestation service at baseURL.
func NewClient(baseURL string, timeout time.Duration) (ports.AuthenticatorVerifier, error) {
	if baseURL == "" {
		return nil, errors.New("authenticator URL is not configured")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid authenticator URL: %w", err)
	}
	return &httpClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

// VerifyAssertion returns false for assertions the service rejects and
// domain.ErrAuthenticatorCancelled when the user dismissed the prompt. Any
// other failure is a dependency failure.
func (c *httpClient) VerifyAssertion(ctx context.Context, voterID uuid.UUID, assertion string) (bool, error) {
	body, err := json.Marshal(verifyRequest{VoterID: voterID.String(), Assertion: assertion})
	if err != nil {
		return false, fmt.Errorf("failed to encode assertion: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verifyPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach authenticator: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("authenticator returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	default:
		// Malformed or unknown assertions are rejections, not outages.
		return false, nil
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode authenticator response: %w", err)
	}
	if !out.Verified && out.Reason == reasonCancelled {
		return false, domain.ErrAuthenticatorCancelled
	}
	return out.Verified, nil
}
