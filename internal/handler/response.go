// Package handler contains the HTTP handlers for the QuestLog API.
//
// Handlers parse the request, call a service, and write the response. They
// hold no business logic; domain errors from the service layer are turned
// into status codes by writeError.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/questlog/internal/apperror"
)

// ErrorResponse is the body of every JSON error the API returns:
//
//	{"error": "not_found", "message": "user not found with id abc123"}
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind
	Message string `json:"message"` // safe to show to users
	Field   string `json:"field,omitempty"`
}

// writeJSON sets the content type and status, then encodes data.
// Headers must be set before the first Write, so the order here matters.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps an apperror sentinel anywhere in err's chain to an HTTP
// status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError translates a domain error into a JSON error response.
//
// Only *apperror.AppError messages reach the client. Anything else becomes a
// generic 500 so SQL fragments and file paths never leak.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, errorStatus(err), ErrorResponse{
			Error:   apperror.Kind(err),
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
