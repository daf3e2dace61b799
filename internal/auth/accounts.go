package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nerrad567/gray-logic-identity/internal/clock"
	"github.com/nerrad567/gray-logic-identity/internal/errs"
	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/lock"
)

// Accounts manages user registration and account state. Every
// read-modify-write of one user runs under that user's account lock, so
// concurrent edits are applied one after the other.
type Accounts struct {
	users    UserRepository
	verifier CredentialVerifier
	locker   lock.Locker
	sink     event.Sink
	ids      ids.Generator
	clock    clock.Clock
	logger   *slog.Logger
}

// AccountsDeps holds the collaborators of Accounts.
type AccountsDeps struct {
	Users    UserRepository
	Verifier CredentialVerifier
	Locker   lock.Locker
	Sink     event.Sink
	IDs      ids.Generator
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewAccounts wires an Accounts service. Locker, Sink, IDs, Clock and
// Logger default to an in-process locker, a discarding sink, UUIDs, the
// system clock and slog.Default.
func NewAccounts(deps AccountsDeps) *Accounts {
	a := &Accounts{
		users:    deps.Users,
		verifier: deps.Verifier,
		locker:   deps.Locker,
		sink:     deps.Sink,
		ids:      deps.IDs,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	if a.locker == nil {
		a.locker = lock.NewLocalLocker()
	}
	if a.sink == nil {
		a.sink = event.Discard
	}
	if a.ids == nil {
		a.ids = ids.UUID{}
	}
	if a.clock == nil {
		a.clock = clock.System{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

func accountLockKey(id UserID) string { return "account:user:" + string(id) }

// RegisterRequest carries the raw input for Register.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// Register validates the email and password policy, hashes the password
// and stores an ACTIVE user.
func (a *Accounts) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email, err := NewEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	exists, err := a.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hash, err := a.verifier.Hash(req.Password, a.verifier.DefaultAlgorithm())
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, _, err := RegisterUser(UserID(a.ids.NewID()), email, req.Name, hash, a.clock.Now())
	if err != nil {
		return nil, err
	}
	// The UNIQUE(email) constraint catches a concurrent registration that
	// passed the ExistsByEmail check.
	if err := a.users.Save(ctx, user); err != nil {
		return nil, err
	}

	a.logger.Info("user registered", "user_id", user.ID)
	a.publish(ctx, user)
	return user, nil
}

// Get loads a user.
func (a *Accounts) Get(ctx context.Context, id UserID) (*User, error) {
	return a.users.FindByID(ctx, id)
}

// GetByEmail loads the user registered under email. The address is
// normalised first, so lookups are case-insensitive.
func (a *Accounts) GetByEmail(ctx context.Context, email string) (*User, error) {
	addr, err := NewEmail(email)
	if err != nil {
		return nil, err
	}
	return a.users.FindByEmail(ctx, addr)
}

// modify loads the user under its account lock, applies fn and saves the
// result when fn reports a change.
func (a *Accounts) modify(ctx context.Context, id UserID, fn func(*User) (bool, error)) (*User, error) {
	unlock, err := a.locker.Lock(ctx, accountLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := a.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(user)
	if err != nil || !changed {
		return user, err
	}
	if err := a.users.Save(ctx, user); err != nil {
		return nil, err
	}
	a.publish(ctx, user)
	return user, nil
}

// ChangePassword verifies the current password and stores a hash of the
// new one, which must satisfy the password policy. Inactive accounts are
// rejected with ErrAccountInactive.
func (a *Accounts) ChangePassword(ctx context.Context, id UserID, current, next string) error {
	_, err := a.modify(ctx, id, func(user *User) (bool, error) {
		if !user.IsActive() {
			return false, ErrAccountInactive
		}
		ok, err := a.verifier.Verify(current, user.PasswordHash)
		if err != nil {
			return false, fmt.Errorf("verifying password: %w", err)
		}
		if !ok {
			return false, ErrInvalidCredentials
		}
		if err := ValidatePassword(next); err != nil {
			return false, err
		}

		hash, err := a.verifier.Hash(next, a.verifier.DefaultAlgorithm())
		if err != nil {
			return false, fmt.Errorf("hashing password: %w", err)
		}
		if _, err := user.ChangePassword(hash, a.clock.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	a.logger.Info("password changed", "user_id", id)
	return nil
}

// ProfileUpdate carries the fields of UpdateProfile. A nil field keeps
// the stored value.
type ProfileUpdate struct {
	Name        *string
	PhoneNumber *string
}

// UpdateProfile edits the display name and phone number of an active user.
// A supplied name must not be blank.
func (a *Accounts) UpdateProfile(ctx context.Context, id UserID, req ProfileUpdate) (*User, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, errs.NewValidationError("name", "must not be blank")
	}
	user, err := a.modify(ctx, id, func(user *User) (bool, error) {
		name, phone := user.Name, user.PhoneNumber
		if req.Name != nil {
			name = *req.Name
		}
		if req.PhoneNumber != nil {
			phone = *req.PhoneNumber
		}
		if _, err := user.UpdateProfile(name, phone, a.clock.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("profile updated", "user_id", id)
	return user, nil
}

// Activate re-enables a user.
func (a *Accounts) Activate(ctx context.Context, id UserID) (*User, error) {
	return a.setActive(ctx, id, true)
}

// Deactivate disables a user; Login rejects the user from now on. An
// existing session is not touched here: the API ends it through
// session.Service.RevokeUser once the deactivation has committed.
func (a *Accounts) Deactivate(ctx context.Context, id UserID) (*User, error) {
	return a.setActive(ctx, id, false)
}

func (a *Accounts) setActive(ctx context.Context, id UserID, active bool) (*User, error) {
	var changed []event.Event
	user, err := a.modify(ctx, id, func(user *User) (bool, error) {
		if active {
			changed = user.Activate(a.clock.Now())
		} else {
			changed = user.Deactivate(a.clock.Now())
		}
		return len(changed) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		a.logger.Info("user status changed", "user_id", id, "status", user.Status)
	}
	return user, nil
}

// List returns a page of users.
func (a *Accounts) List(ctx context.Context, filter UserFilter) (*UserList, error) {
	return a.users.List(ctx, filter)
}

// publish drains r and forwards its events. Delivery failures are logged;
// the write they describe has already committed.
func (a *Accounts) publish(ctx context.Context, r event.Recorder) {
	events := r.Drain()
	if err := a.sink.Publish(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("publishing account events failed", "events", len(events), "error", err)
	}
}
