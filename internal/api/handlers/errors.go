package handlers

import (
	"errors"
	"net/http"

	"github.com/ramonehamilton/binderkeep/internal/api/response"
	"github.com/ramonehamilton/binderkeep/internal/binder"
	"github.com/ramonehamilton/binderkeep/internal/csvimport"
	"github.com/ramonehamilton/binderkeep/internal/resolver"
	"github.com/ramonehamilton/binderkeep/internal/scryfall"
	"github.com/ramonehamilton/binderkeep/internal/storage/repository"
	"github.com/ramonehamilton/binderkeep/internal/trade"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var columnErr *csvimport.ColumnError
	switch {
	case errors.As(err, &columnErr):
		response.UnprocessableEntity(w, err)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, resolver.ErrNotFound):
		response.NotFound(w, err)
	case errors.Is(err, binder.ErrInvalidPage),
		errors.Is(err, binder.ErrInvalidPosition),
		errors.Is(err, binder.ErrSlotEmpty),
		errors.Is(err, trade.ErrInvalidTrade):
		response.BadRequest(w, err)
	case errors.Is(err, trade.ErrNotParticipant):
		response.Forbidden(w, err)
	case errors.Is(err, trade.ErrInvalidTransition):
		response.Conflict(w, err)
	case errors.Is(err, scryfall.ErrRateLimited):
		response.TooManyRequests(w, err)
	default:
		response.InternalError(w, err)
	}
}
