package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type BiasHandler struct {
	service ports.BiasService
}

func NewBiasHandler(service ports.BiasService) *BiasHandler {
	return &BiasHandler{service: service}
}

type applyBiasRequest struct {
	NomineeID uuid.UUID `json:"nominee_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
}

type deactivateBiasRequest struct {
	Reason string `json:"reason"`
}

func (h *BiasHandler) ApplyBias(w http.ResponseWriter, r *http.Request) {
	contestID, err := parseContestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req applyBiasRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	bias, err := h.service.ApplyBias(r.Context(), ports.ApplyBiasInput{
		ContestID: contestID,
		NomineeID: req.NomineeID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Operator:  caller,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"bias_id": bias.ID, "bias": bias})
}

func (h *BiasHandler) DeactivateBias(w http.ResponseWriter, r *http.Request) {
	biasID, err := uuidParam(r, "biasID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req deactivateBiasRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	if err := h.service.DeactivateBias(r.Context(), caller, biasID, req.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
