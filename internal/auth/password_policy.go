package auth

import (
	"unicode"
	"unicode/utf8"

	"github.com/nerrad567/gray-logic-identity/internal/errs"
)

// Password length bounds, in characters.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 100
)

// ValidatePassword checks raw against the password policy. Every rule is
// evaluated and all failures are reported together.
func ValidatePassword(raw string) error {
	var problems []string

	if n := utf8.RuneCountInString(raw); n < MinPasswordLength || n > MaxPasswordLength {
		problems = append(problems, "must be between 8 and 100 characters")
	}

	var digit, lower, upper, special bool
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			special = true
		}
	}
	if !digit {
		problems = append(problems, "must contain a digit")
	}
	if !lower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if !upper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if !special {
		problems = append(problems, "must contain a character that is not a letter or digit")
	}

	if len(problems) > 0 {
		return errs.NewValidationError("password", problems...)
	}
	return nil
}
