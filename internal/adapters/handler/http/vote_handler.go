package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type VoteHandler struct {
	service ports.VoteService
	gate    ports.BiometricGate
}

func NewVoteHandler(service ports.VoteService, gate ports.BiometricGate) *VoteHandler {
	return &VoteHandler{
		service: service,
		gate:    gate,
	}
}

type voteRequest struct {
	NomineeID          uuid.UUID `json:"nominee_id"`
	BiometricAssertion string    `json:"biometric_assertion"`
}

type voteResponse struct {
	VoteID    uuid.UUID `json:"vote_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *VoteHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	contestID, err := parseContestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.NomineeID == uuid.Nil {
		writeError(w, r, domain.NewError(domain.CodeBadInput, "nominee_id is required"))
		return
	}

	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	biometric, err := h.gate.Check(r.Context(), caller.ID, req.BiometricAssertion)
	if err != nil {
		writeError(w, r, err)
		return
	}

	vote, err := h.service.SubmitVote(r.Context(), ports.VoteInput{
		Voter:     caller,
		ContestID: contestID,
		NomineeID: req.NomineeID,
		Biometric: biometric,
		Origin:    clientIP(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, voteResponse{VoteID: vote.ID, CreatedAt: vote.CreatedAt})
}

func (h *VoteHandler) CheckVoted(w http.ResponseWriter, r *http.Request) {
	contestID, err := parseContestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	summary, err := h.service.CheckVoted(r.Context(), caller.ID, contestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
