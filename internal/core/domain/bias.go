package domain

import (
	"time"

	"github.com/google/uuid"
)

type BiasStatus string

const (
	BiasActive   BiasStatus = "active"
	BiasInactive BiasStatus = "inactive"
)

// Bias is an additive adjustment to the observable tally of one nominee.
// At most one active Bias exists per (contest, nominee); inactive rows are
// kept for audit.
type Bias struct {
	ID                 uuid.UUID  `json:"id"`
	ContestID          uuid.UUID  `json:"contest_id"`
	NomineeID          uuid.UUID  `json:"nominee_id"`
	Amount             int64      `json:"amount"`
	Reason             string     `json:"reason"`
	AppliedBy          uuid.UUID  `json:"applied_by"`
	Status             BiasStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
	DeactivatedBy      *uuid.UUID `json:"deactivated_by,omitempty"`
	DeactivationReason string     `json:"deactivation_reason,omitempty"`
}

func (b *Bias) Active() bool { return b.Status == BiasActive }

type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

const (
	AuditBiasApplied     = "bias.applied"
	AuditBiasDeactivated = "bias.deactivated"
	AuditRoleChanged     = "voter.role_changed"
	AuditTokenReuse      = "security.token_reuse"
)
