package auth

import (
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// Authentication event types.
const (
	EventAuthenticationCreated = "AUTHENTICATION_CREATED"
	EventTokenIssued           = "TOKEN_ISSUED"
	EventTokenRefreshed        = "TOKEN_REFRESHED"
	EventTokenRevoked          = "TOKEN_REVOKED"
	EventTokenValidated        = "TOKEN_VALIDATED"
	EventAuthenticationExpired = "AUTHENTICATION_EXPIRED"
)

// User event types.
const (
	EventUserCreated         = "user.created"
	EventUserActivated       = "user.activated"
	EventUserDeactivated     = "user.deactivated"
	EventUserPasswordChanged = "user.password.changed"
	EventUserProfileUpdated  = "user.profile.updated"
	EventUserLoginSucceeded  = "user.login.succeeded"
	EventUserLoginFailed     = "user.login.failed"
)

// Validation reasons carried by TokenValidated.
const (
	ReasonValid    = "valid"
	ReasonExpired  = "expired"
	ReasonMismatch = "mismatch"
)

// AuthenticationCreated is emitted when a login creates a new session.
type AuthenticationCreated struct {
	event.Base
	UserID UserID `json:"user_id"`
}

// TokenIssued is emitted for each token handed out at login.
type TokenIssued struct {
	event.Base
	UserID    UserID    `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenRefreshed is emitted when the access token is rotated.
type TokenRefreshed struct {
	event.Base
	UserID    UserID    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenRevoked is emitted once per token actually removed.
type TokenRevoked struct {
	event.Base
	UserID    UserID    `json:"user_id"`
	TokenType TokenType `json:"token_type"`
}

// TokenValidated records the outcome of a validation attempt.
type TokenValidated struct {
	event.Base
	UserID    UserID    `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason"`
}

// AuthenticationExpired is emitted when the sweep discards a session.
type AuthenticationExpired struct {
	event.Base
	UserID UserID `json:"user_id"`
}

// UserCreated is emitted on registration.
type UserCreated struct {
	event.Base
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// UserStatusChanged is emitted by Activate and Deactivate. The event type
// distinguishes the direction.
type UserStatusChanged struct {
	event.Base
	Status UserStatus `json:"status"`
}

// UserPasswordChanged is emitted after a successful password change.
type UserPasswordChanged struct {
	event.Base
	Algorithm string `json:"algorithm"`
}

// UserProfileUpdated is emitted when the name or phone number is edited.
type UserProfileUpdated struct {
	event.Base
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// UserLoginSucceeded is emitted after a session is persisted.
type UserLoginSucceeded struct {
	event.Base
	Email string `json:"email"`
}

// UserLoginFailed is emitted when a login is rejected. Reason is internal
// only and is never returned to the caller.
type UserLoginFailed struct {
	event.Base
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// NewUserLoginFailed builds a failed-login event. aggregateID is the user id
// when known, otherwise the attempted email.
func NewUserLoginFailed(aggregateID, email, reason string, now time.Time) UserLoginFailed {
	return UserLoginFailed{
		Base:   event.NewBase(EventUserLoginFailed, aggregateID, now),
		Email:  email,
		Reason: reason,
	}
}
