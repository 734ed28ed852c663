package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

func parseContestID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "contestID"))
	if err != nil {
		return uuid.Nil, domain.ErrInvalidAwardID
	}
	return id, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.NewError(domain.CodeBadInput, "invalid "+name)
	}
	return id, nil
}
