package auth

import (
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// State is the position of an Authentication in the token lifecycle.
type State string

const (
	// StateCreated: no tokens have been issued yet.
	StateCreated State = "CREATED"
	// StateAuthenticated: at least one token issued. A lone access or
	// refresh token is a partial but legal state.
	StateAuthenticated State = "AUTHENTICATED"
	// StateRotated: the access token was replaced by a refresh.
	StateRotated State = "ROTATED"
	// StateRevoked: both tokens were cleared. The instance is normally
	// deleted right after.
	StateRevoked State = "REVOKED"
)

// Authentication holds the access and refresh token of one user session.
// At most one exists per user; the login flow replaces the previous one.
//
// Every mutating method returns the events it emitted and also records
// them in the embedded log, to be drained after the instance is saved.
//
// Thread Safety: not safe for concurrent use. Load one instance per request.
type Authentication struct {
	event.Log

	id                  AuthenticationID
	userID              UserID
	state               State
	accessToken         *TokenValue
	refreshToken        *TokenValue
	lastAuthenticatedAt *time.Time
	createdAt           time.Time
	updatedAt           time.Time
}

// AuthenticationSnapshot is the persisted form of an Authentication.
type AuthenticationSnapshot struct {
	ID                  AuthenticationID
	UserID              UserID
	State               State
	AccessToken         *TokenValue
	RefreshToken        *TokenValue
	LastAuthenticatedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewAuthentication creates a session with no tokens.
func NewAuthentication(id AuthenticationID, userID UserID, now time.Time) (*Authentication, []event.Event, error) {
	if _, err := ParseAuthenticationID(string(id)); err != nil {
		return nil, nil, err
	}
	if _, err := ParseUserID(string(userID)); err != nil {
		return nil, nil, err
	}

	now = now.UTC()
	a := &Authentication{
		id:        id,
		userID:    userID,
		state:     StateCreated,
		createdAt: now,
		updatedAt: now,
	}
	return a, a.emit(AuthenticationCreated{
		Base:   event.NewBase(EventAuthenticationCreated, string(id), now),
		UserID: userID,
	}), nil
}

// RestoreAuthentication rebuilds an instance from storage. No events are
// recorded.
func RestoreAuthentication(s AuthenticationSnapshot) *Authentication {
	state := s.State
	if state == "" {
		state = deriveState(s.AccessToken, s.RefreshToken)
	}
	return &Authentication{
		id:                  s.ID,
		userID:              s.UserID,
		state:               state,
		accessToken:         s.AccessToken,
		refreshToken:        s.RefreshToken,
		lastAuthenticatedAt: s.LastAuthenticatedAt,
		createdAt:           s.CreatedAt,
		updatedAt:           s.UpdatedAt,
	}
}

// Snapshot returns the persisted form.
func (a *Authentication) Snapshot() AuthenticationSnapshot {
	return AuthenticationSnapshot{
		ID:                  a.id,
		UserID:              a.userID,
		State:               a.state,
		AccessToken:         a.accessToken,
		RefreshToken:        a.refreshToken,
		LastAuthenticatedAt: a.lastAuthenticatedAt,
		CreatedAt:           a.createdAt,
		UpdatedAt:           a.updatedAt,
	}
}

func (a *Authentication) ID() AuthenticationID            { return a.id }
func (a *Authentication) UserID() UserID                  { return a.userID }
func (a *Authentication) State() State                    { return a.state }
func (a *Authentication) AccessToken() *TokenValue        { return a.accessToken }
func (a *Authentication) RefreshToken() *TokenValue       { return a.refreshToken }
func (a *Authentication) LastAuthenticatedAt() *time.Time { return a.lastAuthenticatedAt }
func (a *Authentication) CreatedAt() time.Time            { return a.createdAt }
func (a *Authentication) UpdatedAt() time.Time            { return a.updatedAt }

// IssueAccessToken stores a new access token expiring ttl after now.
func (a *Authentication) IssueAccessToken(token string, ttl time.Duration, now time.Time) ([]event.Event, error) {
	tv, err := NewTokenValue(token, ttl, now)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	a.accessToken = &tv
	a.lastAuthenticatedAt = &now
	a.state = StateAuthenticated
	a.updatedAt = now
	return a.emit(TokenIssued{
		Base:      event.NewBase(EventTokenIssued, string(a.id), now),
		UserID:    a.userID,
		TokenType: TokenTypeAccess,
		ExpiresAt: tv.ExpiresAt(),
	}), nil
}

// IssueRefreshToken stores a new refresh token expiring ttl after now.
func (a *Authentication) IssueRefreshToken(token string, ttl time.Duration, now time.Time) ([]event.Event, error) {
	tv, err := NewTokenValue(token, ttl, now)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	a.refreshToken = &tv
	a.state = StateAuthenticated
	a.updatedAt = now
	return a.emit(TokenIssued{
		Base:      event.NewBase(EventTokenIssued, string(a.id), now),
		UserID:    a.userID,
		TokenType: TokenTypeRefresh,
		ExpiresAt: tv.ExpiresAt(),
	}), nil
}

// RefreshAccessToken replaces the access token and leaves the refresh
// token untouched.
func (a *Authentication) RefreshAccessToken(token string, ttl time.Duration, now time.Time) ([]event.Event, error) {
	tv, err := NewTokenValue(token, ttl, now)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	a.accessToken = &tv
	a.state = StateRotated
	a.updatedAt = now
	return a.emit(TokenRefreshed{
		Base:      event.NewBase(EventTokenRefreshed, string(a.id), now),
		UserID:    a.userID,
		ExpiresAt: tv.ExpiresAt(),
	}), nil
}

// RevokeAllTokens clears both tokens. One TokenRevoked is emitted per
// token that was present, so a second call emits nothing.
func (a *Authentication) RevokeAllTokens(now time.Time) []event.Event {
	now = now.UTC()
	var out []event.Event
	if a.accessToken != nil {
		a.accessToken = nil
		out = append(out, TokenRevoked{
			Base:      event.NewBase(EventTokenRevoked, string(a.id), now),
			UserID:    a.userID,
			TokenType: TokenTypeAccess,
		})
	}
	if a.refreshToken != nil {
		a.refreshToken = nil
		out = append(out, TokenRevoked{
			Base:      event.NewBase(EventTokenRevoked, string(a.id), now),
			UserID:    a.userID,
			TokenType: TokenTypeRefresh,
		})
	}
	if len(out) == 0 {
		return nil
	}
	a.state = StateRevoked
	a.updatedAt = now
	return a.emit(out...)
}

// ValidateAccessToken reports whether token is the current, unexpired
// access token. It never fails and never changes token state.
func (a *Authentication) ValidateAccessToken(token string, now time.Time) (bool, []event.Event) {
	return a.validate(a.accessToken, TokenTypeAccess, token, now)
}

// ValidateRefreshToken is ValidateAccessToken for the refresh token.
func (a *Authentication) ValidateRefreshToken(token string, now time.Time) (bool, []event.Event) {
	return a.validate(a.refreshToken, TokenTypeRefresh, token, now)
}

func (a *Authentication) validate(current *TokenValue, typ TokenType, token string, now time.Time) (bool, []event.Event) {
	if current == nil {
		return false, nil
	}

	var valid bool
	var reason string
	switch {
	case current.IsExpired(now):
		reason = ReasonExpired
	case current.Matches(token):
		valid, reason = true, ReasonValid
	default:
		reason = ReasonMismatch
	}

	return valid, a.emit(TokenValidated{
		Base:      event.NewBase(EventTokenValidated, string(a.id), now),
		UserID:    a.userID,
		TokenType: typ,
		Valid:     valid,
		Reason:    reason,
	})
}

// IsRefreshExpired reports whether the session can no longer be renewed.
// A session without a refresh token is renewable only while its access
// token is live.
func (a *Authentication) IsRefreshExpired(now time.Time) bool {
	if a.refreshToken != nil {
		return a.refreshToken.IsExpired(now)
	}
	return a.accessToken == nil || a.accessToken.IsExpired(now)
}

// MarkExpired records that the session is being discarded by the sweep.
func (a *Authentication) MarkExpired(now time.Time) []event.Event {
	return a.emit(AuthenticationExpired{
		Base:   event.NewBase(EventAuthenticationExpired, string(a.id), now),
		UserID: a.userID,
	})
}

func (a *Authentication) emit(events ...event.Event) []event.Event {
	a.Record(events...)
	return events
}

func deriveState(access, refresh *TokenValue) State {
	if access == nil && refresh == nil {
		return StateCreated
	}
	return StateAuthenticated
}
