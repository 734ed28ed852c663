package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is never mutated once written.
type Vote struct {
	ID                uuid.UUID `json:"id"`
	VoterID           uuid.UUID `json:"voter_id"`
	ContestID         uuid.UUID `json:"contest_id"`
	NomineeID         uuid.UUID `json:"nominee_id"`
	BiometricVerified bool      `json:"biometric_verified"`
	OriginHash        string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

type VoteSummary struct {
	Voted     bool       `json:"voted"`
	VoteID    *uuid.UUID `json:"vote_id,omitempty"`
	NomineeID *uuid.UUID `json:"nominee_id,omitempty"`
	VotedAt   *time.Time `json:"voted_at,omitempty"`
}

// BiometricResult is the outcome of checking the biometric assertion that
// accompanies a vote.
type BiometricResult int

const (
	BiometricMissing BiometricResult = iota
	BiometricVerified
	BiometricSetupRequired
	// BiometricSkipped is produced only when enforcement is disabled by deployment.
	BiometricSkipped
)
