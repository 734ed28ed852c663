package http

import (
	"net/http"

	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type MediaHandler struct {
	service ports.MediaService
}

func NewMediaHandler(service ports.MediaService) *MediaHandler {
	return &MediaHandler{service: service}
}

func (h *MediaHandler) NomineeMedia(w http.ResponseWriter, r *http.Request) {
	contestID, err := parseContestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	nomineeID, err := uuidParam(r, "nomineeID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	media, err := h.service.NomineeMediaURL(r.Context(), contestID, nomineeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, media)
}
