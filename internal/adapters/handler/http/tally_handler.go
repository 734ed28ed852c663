package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type TallyHandler struct {
	service ports.TallyService
}

func NewTallyHandler(service ports.TallyService) *TallyHandler {
	return &TallyHandler{
		service: service,
	}
}

type tallyResponse struct {
	ContestID uuid.UUID           `json:"contest_id"`
	Tally     []domain.TallyEntry `json:"tally"`
}

func (h *TallyHandler) GetTally(w http.ResponseWriter, r *http.Request) {
	contestID, err := parseContestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := h.service.GetTally(r.Context(), contestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.TallyEntry{}
	}
	writeJSON(w, http.StatusOK, tallyResponse{ContestID: contestID, Tally: entries})
}

func (h *TallyHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.ListResults(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.ContestResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
