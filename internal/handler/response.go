// Package handler is the HTTP layer: it decodes requests, calls the service
// layer and maps results and domain errors to JSON responses.
//
// Every error response has the same shape:
//
//	{"error": "not_found", "message": "listing not found with id abc123"}
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, validation errors only
}

// writeJSON sends a JSON response. Headers and status must be set before
// the body is written; after the first Write they are frozen.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status.
//
//	ErrUnauthorized → 401   ErrForbidden → 403   ErrNotFound → 404
//	ErrValidation   → 400   ErrConflict  → 409   anything else → 500
//
// 500s are logged with the real cause and answered with a generic message so
// SQL or file paths never reach the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := http.StatusInternalServerError, "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status, kind = http.StatusBadRequest, "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status, kind = http.StatusUnauthorized, "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status, kind = http.StatusForbidden, "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status, kind = http.StatusNotFound, "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status, kind = http.StatusConflict, "conflict"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   kind,
				Message: appErr.Message,
				Field:   appErr.Field,
			})
			return
		}
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
// Malformed input is reported as a validation error on "body" unless a
// field decoder produced its own AppError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var appErr *apperror.AppError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &appErr):
			return appErr
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "request body is too large")
		default:
			return apperror.ValidationFailed("body", "request body is not valid JSON: "+err.Error())
		}
	}
	return nil
}

// principal returns the caller stored by auth.RequireAuth.
func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, apperror.Unauthorized("authentication required")
	}
	return p, nil
}
