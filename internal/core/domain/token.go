package domain

import (
	"time"

	"github.com/google/uuid"
)

type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// AccessPayload is the verified content of an access credential.
type AccessPayload struct {
	VoterID   uuid.UUID
	Role      Role
	TokenID   string
	FamilyID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshPayload is the verified content of a refresh credential.
type RefreshPayload struct {
	VoterID   uuid.UUID
	TokenID   string
	FamilyID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	FamilyID         string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session is the result of a successful code exchange.
type Session struct {
	Tokens TokenPair `json:"tokens"`
	Voter  *Voter    `json:"voter"`
}

// RotationContext describes the request performing a refresh rotation. It
// is attached to security events.
type RotationContext struct {
	Origin    string
	UserAgent string
}

// Caller is the verified identity behind a request.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

func (p *AccessPayload) Caller() Caller {
	return Caller{ID: p.VoterID, Role: p.Role}
}
