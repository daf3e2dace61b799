package auth

import (
	"regexp"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/errs"
	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// maxNameLength bounds the display name.
const maxNameLength = 100

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// User is an account that can log in. Credentials are held as an opaque
// hash; the raw password never reaches this type.
type User struct {
	event.Log `json:"-"`

	ID           UserID       `json:"id"`
	Email        Email        `json:"email"`
	Name         string       `json:"name,omitempty"`
	PhoneNumber  string       `json:"phone_number,omitempty"`
	PasswordHash PasswordHash `json:"-"` // never serialised
	Status       UserStatus   `json:"status"`
	LastLoginAt  *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// RegisterUser creates an ACTIVE user.
func RegisterUser(id UserID, email Email, name string, hash PasswordHash, now time.Time) (*User, []event.Event, error) {
	if _, err := ParseUserID(string(id)); err != nil {
		return nil, nil, err
	}
	if email.IsZero() {
		return nil, nil, errs.NewValidationError("email", "must not be blank")
	}
	if hash.IsZero() || hash.Algorithm == "" {
		return nil, nil, errs.NewValidationError("password", "hash and algorithm are required")
	}
	name = strings.TrimSpace(name)
	if err := checkNameLength(name); err != nil {
		return nil, nil, err
	}

	now = now.UTC()
	u := &User{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return u, u.emit(UserCreated{
		Base:  event.NewBase(EventUserCreated, string(id), now),
		Email: email.String(),
		Name:  name,
	}), nil
}

// IsActive reports whether the user may authenticate.
func (u *User) IsActive() bool { return u.Status == UserStatusActive }

// Activate sets the status to ACTIVE. No event is emitted if it already is.
func (u *User) Activate(now time.Time) []event.Event {
	return u.setStatus(UserStatusActive, EventUserActivated, now)
}

// Deactivate sets the status to INACTIVE. No event is emitted if it already is.
func (u *User) Deactivate(now time.Time) []event.Event {
	return u.setStatus(UserStatusInactive, EventUserDeactivated, now)
}

func (u *User) setStatus(status UserStatus, eventType string, now time.Time) []event.Event {
	if u.Status == status {
		return nil
	}
	u.Status = status
	u.UpdatedAt = now.UTC()
	return u.emit(UserStatusChanged{
		Base:   event.NewBase(eventType, string(u.ID), now),
		Status: status,
	})
}

// ChangePassword replaces the stored hash. Inactive users cannot change
// their password.
func (u *User) ChangePassword(hash PasswordHash, now time.Time) ([]event.Event, error) {
	if !u.IsActive() {
		return nil, ErrAccountInactive
	}
	if hash.IsZero() || hash.Algorithm == "" {
		return nil, errs.NewValidationError("password", "hash and algorithm are required")
	}
	u.PasswordHash = hash
	u.UpdatedAt = now.UTC()
	return u.emit(UserPasswordChanged{
		Base:      event.NewBase(EventUserPasswordChanged, string(u.ID), now),
		Algorithm: hash.Algorithm,
	}), nil
}

// UpdateProfile replaces the display name and phone number. An empty
// phone number clears it. Inactive users cannot be edited.
func (u *User) UpdateProfile(name, phoneNumber string, now time.Time) ([]event.Event, error) {
	if !u.IsActive() {
		return nil, ErrAccountInactive
	}
	name = strings.TrimSpace(name)
	if err := checkNameLength(name); err != nil {
		return nil, err
	}
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber != "" && !phonePattern.MatchString(phoneNumber) {
		return nil, errs.NewValidationError("phone_number", "must be 10 to 15 digits with an optional leading +")
	}

	u.Name = name
	u.PhoneNumber = phoneNumber
	u.UpdatedAt = now.UTC()
	return u.emit(UserProfileUpdated{
		Base:        event.NewBase(EventUserProfileUpdated, string(u.ID), now),
		Email:       u.Email.String(),
		Name:        name,
		PhoneNumber: phoneNumber,
	}), nil
}

// RecordLogin stamps the last login time.
func (u *User) RecordLogin(now time.Time) []event.Event {
	now = now.UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	return u.emit(UserLoginSucceeded{
		Base:  event.NewBase(EventUserLoginSucceeded, string(u.ID), now),
		Email: u.Email.String(),
	})
}

func checkNameLength(name string) error {
	if len(name) > maxNameLength {
		return errs.NewValidationError("name", "must be at most 100 characters")
	}
	return nil
}

func (u *User) emit(events ...event.Event) []event.Event {
	u.Record(events...)
	return events
}
