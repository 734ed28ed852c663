package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is drawn from an ordered set: basic < curator < operator.
type Role string

const (
	RoleBasic    Role = "basic"
	RoleCurator  Role = "curator"
	RoleOperator Role = "operator"
)

func (r Role) rank() int {
	switch r {
	case RoleBasic:
		return 1
	case RoleCurator:
		return 2
	case RoleOperator:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.rank() > 0 }

// AtLeast reports whether r ranks at or above min. Unknown roles rank below everything.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.rank() >= min.rank()
}

// CanVote reports whether the role permits casting ballots.
func (r Role) CanVote() bool { return r.AtLeast(RoleBasic) }

// ParseRole converts an external role tag.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", NewError(CodeBadInput, "unknown role "+s)
	}
	return r, nil
}

type Voter struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthenticatorCredential is a registered platform-authenticator record.
type AuthenticatorCredential struct {
	ID           uuid.UUID `json:"id"`
	VoterID      uuid.UUID `json:"voter_id"`
	CredentialID string    `json:"credential_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is what the identity provider vouches for after a code exchange.
type Identity struct {
	Subject string
	Email   string
	Name    string
}
