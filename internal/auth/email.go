package auth

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nerrad567/gray-logic-identity/internal/errs"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_+&*-]+(?:\.[a-zA-Z0-9_+&*-]+)*@(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,7}$`)

// maxEmailLength bounds the stored column.
const maxEmailLength = 254

// Email is a syntactically valid, lower-cased address.
type Email struct {
	value string
}

// NewEmail validates and normalises raw.
func NewEmail(raw string) (Email, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Email{}, errs.NewValidationError("email", "must not be blank")
	}
	if len(v) > maxEmailLength || !emailPattern.MatchString(v) {
		return Email{}, errs.NewValidationError("email", "invalid email format")
	}
	return Email{value: strings.ToLower(v)}, nil
}

func (e Email) String() string { return e.value }

// IsZero reports whether e was never set.
func (e Email) IsZero() bool { return e.value == "" }

// MarshalJSON encodes the address as a JSON string.
func (e Email) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.value)
}
