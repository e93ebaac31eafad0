package daemon

import (
	"context"
	"errors"
	"net/http"

	"briefsmith/internal/api"
	"briefsmith/internal/services"
)

// statusForError maps pipeline error markers onto HTTP status codes.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, services.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "precondition_failed"
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable, "configuration"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	case services.IsTransient(err):
		return http.StatusServiceUnavailable, "transient"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func errorBody(message, code string) api.ErrorResponse {
	return api.ErrorResponse{Error: message, Code: code}
}
