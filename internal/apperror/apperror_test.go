package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("listing", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("title", "title is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("email already in use"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Forbidden wraps ErrForbidden",
			err:       Forbidden("not your listing"),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("no session"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Unauthorized does NOT match ErrForbidden",
			err:       Unauthorized("no session"),
			target:    ErrForbidden,
			wantMatch: false,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("listing", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "wrapped NotFound still matches",
			err:       fmt.Errorf("service: %w", NotFound("user", "u1")),
			target:    ErrNotFound,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("listing", "abc123"),
			wantMessage: "listing not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("title", "title is required"),
			wantMessage: "title is required",
		},
		{
			name:        "Conflict uses custom message",
			err:         Conflict("listing abc123 was modified by another request"),
			wantMessage: "listing abc123 was modified by another request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("listing", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("pricePerHour", "pricePerHour must be a non-negative number")

	if err.Field != "pricePerHour" {
		t.Errorf("Field = %q, want %q", err.Field, "pricePerHour")
	}
}
