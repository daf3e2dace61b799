package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("password", "too short", "missing digit")

	if got, want := err.Error(), "invalid password: too short; missing digit"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := fmt.Errorf("register: %w", err)
	if !errors.Is(wrapped, ErrValidation) {
		t.Error("errors.Is(wrapped, ErrValidation) = false, want true")
	}

	var ve *ValidationError
	if !errors.As(wrapped, &ve) || ve.Field != "password" {
		t.Errorf("errors.As() field = %v, want password", ve)
	}
}

func TestKindsAreDistinct(t *testing.T) {
	notFound := fmt.Errorf("role %w", ErrNotFound)
	if errors.Is(notFound, ErrConflict) {
		t.Error("not-found error matched ErrConflict")
	}
	if !errors.Is(notFound, ErrNotFound) {
		t.Error("not-found error did not match ErrNotFound")
	}
}
