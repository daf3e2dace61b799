package auth

import (
	"crypto/subtle"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/errs"
)

// TokenValue is an immutable token string with an absolute expiry.
// Replace it wholesale; never mutate one in place.
type TokenValue struct {
	value     string
	expiresAt time.Time
}

// NewTokenValue creates a token that expires ttl after now.
func NewTokenValue(value string, ttl time.Duration, now time.Time) (TokenValue, error) {
	var problems []string
	if strings.TrimSpace(value) == "" {
		problems = append(problems, "token must not be blank")
	}
	if ttl <= 0 {
		problems = append(problems, "ttl must be positive")
	}
	if len(problems) > 0 {
		return TokenValue{}, errs.NewValidationError("token", problems...)
	}
	return TokenValue{value: value, expiresAt: now.Add(ttl).UTC()}, nil
}

// RestoreTokenValue rebuilds a token loaded from storage. No checks are
// applied; the value was validated when first issued.
func RestoreTokenValue(value string, expiresAt time.Time) TokenValue {
	return TokenValue{value: value, expiresAt: expiresAt.UTC()}
}

// Value returns the token string.
func (t TokenValue) Value() string { return t.value }

// ExpiresAt returns the expiry instant.
func (t TokenValue) ExpiresAt() time.Time { return t.expiresAt }

// IsExpired reports whether now is at or after the expiry.
func (t TokenValue) IsExpired(now time.Time) bool {
	return !now.Before(t.expiresAt)
}

// RemainingSeconds returns whole seconds until expiry, 0 once expired.
func (t TokenValue) RemainingSeconds(now time.Time) int64 {
	if t.IsExpired(now) {
		return 0
	}
	return int64(math.Ceil(t.expiresAt.Sub(now).Seconds()))
}

// Matches compares the raw token string in constant time.
func (t TokenValue) Matches(raw string) bool {
	return subtle.ConstantTimeCompare([]byte(t.value), []byte(raw)) == 1
}

// Equal compares by value.
func (t TokenValue) Equal(other TokenValue) bool {
	return t.value == other.value && t.expiresAt.Equal(other.expiresAt)
}
