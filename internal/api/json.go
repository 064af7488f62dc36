package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/dagaz/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps engine error kinds to HTTP statuses. Unrecognized
// errors are logged and reported as opaque internal errors.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument),
		errors.Is(err, apperr.ErrInvalidGeometry),
		errors.Is(err, apperr.ErrPathValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrSlideNotFound),
		errors.Is(err, apperr.ErrShapeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrLockTimeout):
		status = http.StatusLocked
	case errors.Is(err, apperr.ErrDocumentLoad),
		errors.Is(err, apperr.ErrInternalXML):
		status = http.StatusUnprocessableEntity
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Retryable: apperr.Retryable(err)})
}
