package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/clock"
	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/lock"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/metrics"
)

// Failed-login reasons. They go to logs and events, never to the caller.
const (
	ReasonMalformedEmail = "malformed_email"
	ReasonUnknownEmail   = "unknown_email"
	ReasonInactive       = "inactive"
	ReasonBadPassword    = "bad_password"
	ReasonAccountChanged = "account_changed"
)

// Config holds token lifetimes.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// PublishValidations forwards TOKEN_VALIDATED events from Validate.
	// Off by default: every authenticated request validates.
	PublishValidations bool
}

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = auth.DefaultAccessTokenTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = auth.DefaultRefreshTokenTTL
	}
	return c
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// Principal identifies the holder of a valid access token.
type Principal struct {
	UserID           auth.UserID           `json:"user_id"`
	AuthenticationID auth.AuthenticationID `json:"authentication_id"`
	ExpiresAt        time.Time             `json:"expires_at"`
}

// Service runs the session use cases.
type Service struct {
	sessions auth.AuthenticationRepository
	users    auth.UserRepository
	verifier auth.CredentialVerifier
	tokens   auth.TokenGenerator
	locker   lock.Locker
	sink     event.Sink
	ids      ids.Generator
	clock    clock.Clock
	metrics  *metrics.Metrics
	cfg      Config
	logger   *slog.Logger

	sweepBatch int
}

// Deps holds the collaborators of Service.
type Deps struct {
	Sessions auth.AuthenticationRepository
	Users    auth.UserRepository
	Verifier auth.CredentialVerifier
	Tokens   auth.TokenGenerator
	Locker   lock.Locker
	Sink     event.Sink
	IDs      ids.Generator
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Config   Config
	Logger   *slog.Logger
}

// NewService wires a Service. Tokens defaults to opaque UUIDs; the other
// optional collaborators default as in rbac.NewEngine.
func NewService(deps Deps) *Service {
	s := &Service{
		sessions: deps.Sessions,
		users:    deps.Users,
		verifier: deps.Verifier,
		tokens:   deps.Tokens,
		locker:   deps.Locker,
		sink:     deps.Sink,
		ids:      deps.IDs,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		cfg:      deps.Config.withDefaults(),
		logger:   deps.Logger,
	}
	if s.tokens == nil {
		s.tokens = auth.OpaqueTokenGenerator{}
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.sink == nil {
		s.sink = event.Discard
	}
	if s.ids == nil {
		s.ids = ids.UUID{}
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func userLockKey(id auth.UserID) string { return "session:user:" + string(id) }

// Login checks the credentials and opens a fresh session for the user,
// replacing any previous one. Every credential failure, including an
// inactive account, is reported as auth.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	addr, err := auth.NewEmail(email)
	if err != nil {
		return nil, s.loginFailed(ctx, email, email, ReasonMalformedEmail)
	}

	user, err := s.users.FindByEmail(ctx, addr)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return nil, s.loginFailed(ctx, addr.String(), addr.String(), ReasonUnknownEmail)
	case err != nil:
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !user.IsActive() {
		return nil, s.loginFailed(ctx, string(user.ID), addr.String(), ReasonInactive)
	}

	ok, err := s.verifier.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying credential: %w", err)
	}
	if !ok {
		return nil, s.loginFailed(ctx, string(user.ID), addr.String(), ReasonBadPassword)
	}

	pair, session, err := s.openSession(ctx, user)
	switch {
	case errors.Is(err, auth.ErrAccountInactive):
		return nil, s.loginFailed(ctx, string(user.ID), addr.String(), ReasonAccountChanged)
	case err != nil:
		return nil, err
	}

	s.metrics.ObserveLogin(metrics.LoginSucceeded)
	s.logger.Info("user logged in", "user_id", user.ID, "authentication_id", session.ID())
	s.publish(ctx, session.Drain(), user.Drain())
	return pair, nil
}

// openSession replaces the user's session under the per-user lock. The
// login is stamped first, conditionally on the account still being active
// with the verified hash, so a concurrent deactivation or password change
// fails the login with auth.ErrAccountInactive.
func (s *Service) openSession(ctx context.Context, user *auth.User) (*TokenPair, *auth.Authentication, error) {
	userID := user.ID
	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	now := s.clock.Now()
	if err := s.users.RecordLogin(ctx, userID, user.PasswordHash.Hash, now); err != nil {
		return nil, nil, err
	}
	user.RecordLogin(now)

	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return nil, nil, err
	}

	session, _, err := auth.NewAuthentication(auth.AuthenticationID(s.ids.NewID()), userID, now)
	if err != nil {
		return nil, nil, err
	}

	access, err := s.tokens.AccessToken(userID, s.cfg.AccessTTL, now)
	if err != nil {
		return nil, nil, fmt.Errorf("generating access token: %w", err)
	}
	refresh, err := s.tokens.RefreshToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generating refresh token: %w", err)
	}
	if _, err := session.IssueAccessToken(auth.HashToken(access), s.cfg.AccessTTL, now); err != nil {
		return nil, nil, err
	}
	if _, err := session.IssueRefreshToken(auth.HashToken(refresh), s.cfg.RefreshTTL, now); err != nil {
		return nil, nil, err
	}

	err = s.sessions.Save(ctx, session)
	if errors.Is(err, auth.ErrAuthenticationExists) {
		// Another process won the race past our lock; take over.
		s.logger.Warn("concurrent session detected, replacing", "user_id", userID)
		if err = s.sessions.DeleteByUserID(ctx, userID); err == nil {
			err = s.sessions.Save(ctx, session)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	return s.pair(session, access, refresh, now), session, nil
}

// Refresh issues a new access token for the session holding refreshToken.
// The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	digest := auth.HashToken(refreshToken)

	session, err := s.sessions.FindByRefreshToken(ctx, digest)
	switch {
	case errors.Is(err, auth.ErrAuthenticationNotFound):
		s.metrics.ObserveRefresh("invalid")
		return nil, auth.ErrTokenInvalid
	case err != nil:
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(session.UserID()))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	if ok, _ := session.ValidateRefreshToken(digest, now); !ok {
		s.metrics.ObserveRefresh("invalid")
		s.publish(ctx, session.Drain())
		return nil, auth.ErrTokenInvalid
	}

	access, err := s.tokens.AccessToken(session.UserID(), s.cfg.AccessTTL, now)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	if _, err := session.RefreshAccessToken(auth.HashToken(access), s.cfg.AccessTTL, now); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.ObserveRefresh("succeeded")
	s.logger.Debug("access token refreshed", "user_id", session.UserID())
	s.publish(ctx, session.Drain())
	return s.pair(session, access, refreshToken, now), nil
}

// Logout revokes and deletes the session holding accessToken. An unknown
// token is not an error.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	session, err := s.sessions.FindByAccessToken(ctx, auth.HashToken(accessToken))
	switch {
	case errors.Is(err, auth.ErrAuthenticationNotFound):
		return nil
	case err != nil:
		return err
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(session.UserID()))
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.end(ctx, session); err != nil {
		return err
	}
	s.logger.Info("user logged out", "user_id", session.UserID())
	return nil
}

// RevokeUser ends the user's session, if any. Deactivated accounts are
// signed out this way.
func (s *Service) RevokeUser(ctx context.Context, userID auth.UserID) error {
	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	session, err := s.sessions.FindByUserID(ctx, userID)
	switch {
	case errors.Is(err, auth.ErrAuthenticationNotFound):
		return nil
	case err != nil:
		return err
	}

	if err := s.end(ctx, session); err != nil {
		return err
	}
	s.logger.Info("user session revoked", "user_id", userID)
	return nil
}

// end revokes both tokens and deletes the session. The caller holds the
// user lock.
func (s *Service) end(ctx context.Context, session *auth.Authentication) error {
	session.RevokeAllTokens(s.clock.Now())
	if err := s.sessions.Delete(ctx, session); err != nil {
		return err
	}
	s.publish(ctx, session.Drain())
	return nil
}

// Validate resolves the principal behind a bearer access token. An
// unknown, expired or superseded token yields false with a nil error; only
// storage failures are returned as errors.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Principal, bool, error) {
	digest := auth.HashToken(accessToken)

	session, err := s.sessions.FindByAccessToken(ctx, digest)
	switch {
	case errors.Is(err, auth.ErrAuthenticationNotFound):
		s.metrics.ObserveValidation(false)
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	ok, events := session.ValidateAccessToken(digest, s.clock.Now())
	session.Drain()
	if s.cfg.PublishValidations {
		s.publish(ctx, events)
	}
	s.metrics.ObserveValidation(ok)
	if !ok {
		return nil, false, nil
	}

	return &Principal{
		UserID:           session.UserID(),
		AuthenticationID: session.ID(),
		ExpiresAt:        session.AccessToken().ExpiresAt(),
	}, true, nil
}

// defaultSweepBatch bounds how many sessions one DeleteExpired call
// removes.
const defaultSweepBatch = 500

// CleanupExpired removes sessions that can no longer be renewed, batch by
// batch, and returns how many were deleted. Every removed session yields
// an AUTHENTICATION_EXPIRED event.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	batch := s.sweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	var total int64
	for {
		removed, err := s.sessions.DeleteExpired(ctx, now, batch)
		if err != nil {
			s.metrics.ObserveSweep(total)
			return total, err
		}
		var expired []event.Event
		for _, a := range removed {
			expired = append(expired, a.MarkExpired(now)...)
		}
		total += int64(len(removed))
		s.publish(ctx, expired)
		if len(removed) < batch {
			break
		}
	}

	s.metrics.ObserveSweep(total)
	if total > 0 {
		s.logger.Info("expired sessions removed", "count", total)
	}
	return total, nil
}

func (s *Service) loginFailed(ctx context.Context, aggregateID, email, reason string) error {
	s.metrics.ObserveLogin(metrics.LoginFailed)
	s.logger.Info("login rejected", "email", email, "reason", reason)
	s.publish(ctx, []event.Event{auth.NewUserLoginFailed(aggregateID, email, reason, s.clock.Now())})
	return auth.ErrInvalidCredentials
}

func (s *Service) pair(session *auth.Authentication, access, refresh string, now time.Time) *TokenPair {
	p := &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    auth.BearerTokenType,
	}
	if t := session.AccessToken(); t != nil {
		p.ExpiresIn = t.RemainingSeconds(now)
	}
	if t := session.RefreshToken(); t != nil {
		p.RefreshExpiresIn = t.RemainingSeconds(now)
	}
	return p
}

// publish forwards events from several aggregates as one batch. Delivery
// failures are logged; the writes have already committed.
func (s *Service) publish(ctx context.Context, batches ...[]event.Event) {
	var events []event.Event
	for _, b := range batches {
		events = append(events, b...)
	}
	if len(events) == 0 {
		return
	}
	if err := s.sink.Publish(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("publishing session events failed", "events", len(events), "error", err)
	}
}
