// Package errs holds the error kinds shared by the identity packages.
//
// Packages declare their own sentinel errors by wrapping one of these
// kinds, so callers (notably the HTTP layer) can branch on the kind with
// errors.Is without knowing every package's sentinels:
//
//	var ErrRoleNotFound = fmt.Errorf("role %w", errs.ErrNotFound)
package errs

import (
	"errors"
	"strings"
)

// Error kinds.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid token")
)

// ValidationError reports a value-object or command invariant violation.
// It lists every problem found for one field.
type ValidationError struct {
	Field    string
	Problems []string
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field string, problems ...string) *ValidationError {
	return &ValidationError{Field: field, Problems: problems}
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + strings.Join(e.Problems, "; ")
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
