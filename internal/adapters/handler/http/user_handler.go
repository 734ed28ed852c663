package http

import (
	"net/http"

	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type UserHandler struct {
	service ports.UserService
}

func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	voter, err := h.service.GetByID(r.Context(), caller.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voter)
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	voterID, err := uuidParam(r, "voterID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	voter, err := h.service.UpdateRole(r.Context(), caller, voterID, role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voter)
}
