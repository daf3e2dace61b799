package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/errs"
)

// UserID identifies a user account. It is opaque and never blank.
type UserID string

// ParseUserID validates a raw identifier.
func ParseUserID(raw string) (UserID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errs.NewValidationError("user_id", "must not be blank")
	}
	return UserID(raw), nil
}

func (id UserID) String() string { return string(id) }

// AuthenticationID identifies an Authentication aggregate.
type AuthenticationID string

// ParseAuthenticationID validates a raw identifier.
func ParseAuthenticationID(raw string) (AuthenticationID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errs.NewValidationError("authentication_id", "must not be blank")
	}
	return AuthenticationID(raw), nil
}

func (id AuthenticationID) String() string { return string(id) }

// UserStatus is the account state. Only ACTIVE users may authenticate.
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
)

// ParseUserStatus converts a stored status string.
func ParseUserStatus(s string) (UserStatus, error) {
	switch UserStatus(s) {
	case UserStatusActive, UserStatusInactive:
		return UserStatus(s), nil
	default:
		return "", errs.NewValidationError("status", fmt.Sprintf("unknown status %q", s))
	}
}

// TokenType distinguishes the two credentials held by an Authentication.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS_TOKEN"
	TokenTypeRefresh TokenType = "REFRESH_TOKEN"
)

// BearerTokenType is the OAuth token_type returned to clients.
const BearerTokenType = "Bearer"

// Default token lifetimes.
const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour
)

// Sentinel errors for auth operations.
var (
	ErrUserNotFound           = fmt.Errorf("user %w", errs.ErrNotFound)
	ErrAuthenticationNotFound = fmt.Errorf("authentication %w", errs.ErrNotFound)
	ErrEmailExists            = fmt.Errorf("email %w", errs.ErrConflict)
	ErrAuthenticationExists   = fmt.Errorf("authentication for user %w", errs.ErrConflict)
	ErrInvalidCredentials     = errs.ErrInvalidCredentials
	ErrAccountInactive        = errs.ErrAccountInactive
	ErrTokenInvalid           = errs.ErrInvalidToken
)
