package domain

import (
	"time"

	"github.com/google/uuid"
)

type ContestStatus string

const (
	ContestActive   ContestStatus = "active"
	ContestInactive ContestStatus = "inactive"
)

type Contest struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Status          ContestStatus `json:"status"`
	NominationStart *time.Time    `json:"nomination_start,omitempty"`
	NominationEnd   *time.Time    `json:"nomination_end,omitempty"`
	VotingStart     *time.Time    `json:"voting_start,omitempty"`
	VotingEnd       *time.Time    `json:"voting_end,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// VotingOpen reports whether the contest accepts votes at t. Either bound
// of the voting window may be absent; the ones present must both hold.
func (c *Contest) VotingOpen(t time.Time) bool {
	if c.Status != ContestActive {
		return false
	}
	if c.VotingStart != nil && t.Before(*c.VotingStart) {
		return false
	}
	if c.VotingEnd != nil && !t.Before(*c.VotingEnd) {
		return false
	}
	return true
}

type NomineeApproval string

const (
	NomineePending  NomineeApproval = "pending"
	NomineeApproved NomineeApproval = "approved"
	NomineeRejected NomineeApproval = "rejected"
)

type NomineeStatus string

const (
	NomineeActive   NomineeStatus = "active"
	NomineeArchived NomineeStatus = "archived"
)

type Nominee struct {
	ID        uuid.UUID       `json:"id"`
	ContestID uuid.UUID       `json:"contest_id"`
	Name      string          `json:"name"`
	Approval  NomineeApproval `json:"approval"`
	Status    NomineeStatus   `json:"status"`
	MediaKey  string          `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// EligibleIn reports whether the nominee may receive votes in contestID.
func (n *Nominee) EligibleIn(contestID uuid.UUID) bool {
	return n.ContestID == contestID && n.Approval == NomineeApproved && n.Status == NomineeActive
}
