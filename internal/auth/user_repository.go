package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// User list pagination bounds.
const (
	defaultUserLimit = 50
	maxUserLimit     = 200
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Save(ctx context.Context, user *User) error
	// RecordLogin stamps the last login time of an ACTIVE user whose stored
	// hash still equals passwordHash. Any other state yields
	// ErrAccountInactive and writes nothing.
	RecordLogin(ctx context.Context, id UserID, passwordHash string, at time.Time) error
	FindByID(ctx context.Context, id UserID) (*User, error)
	FindByEmail(ctx context.Context, email Email) (*User, error)
	ExistsByEmail(ctx context.Context, email Email) (bool, error)
	List(ctx context.Context, filter UserFilter) (*UserList, error)
	Delete(ctx context.Context, id UserID) error
	Count(ctx context.Context) (int, error)
}

// UserFilter controls which users List returns.
type UserFilter struct {
	Status UserStatus // optional
	Search string     // optional: matches email or name
	Limit  int        // default 50, max 200
	Offset int
}

// UserList is one page of users.
type UserList struct {
	Users  []User `json:"users"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = `id, email, name, phone_number, password_hash, password_algorithm, status, last_login_at, created_at, updated_at`

// Save inserts the user or updates its mutable fields. A second account
// with the same email is rejected with ErrEmailExists.
func (r *SQLiteUserRepository) Save(ctx context.Context, user *User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email = excluded.email,
		   name = excluded.name,
		   phone_number = excluded.phone_number,
		   password_hash = excluded.password_hash,
		   password_algorithm = excluded.password_algorithm,
		   status = excluded.status,
		   last_login_at = excluded.last_login_at,
		   updated_at = excluded.updated_at`,
		string(user.ID), user.Email.String(), database.NullString(user.Name),
		database.NullString(user.PhoneNumber), user.PasswordHash.Hash, user.PasswordHash.Algorithm, string(user.Status),
		database.NullTime(user.LastLoginAt),
		database.FormatTime(user.CreatedAt), database.FormatTime(user.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// RecordLogin updates last_login_at only. The status and hash guards make
// a login that raced a deactivation or password change fail instead of
// overwriting it.
func (r *SQLiteUserRepository) RecordLogin(ctx context.Context, id UserID, passwordHash string, at time.Time) error {
	stamp := database.FormatTime(at)
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND password_hash = ?`,
		stamp, stamp, string(id), string(UserStatusActive), passwordHash,
	)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	if n == 0 {
		return ErrAccountInactive
	}
	return nil
}

// FindByID retrieves a user by id.
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id UserID) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", string(id))
}

// FindByEmail retrieves a user by normalised email.
func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email Email) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email.String())
}

// ExistsByEmail reports whether an account uses email.
func (r *SQLiteUserRepository) ExistsByEmail(ctx context.Context, email Email) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", email.String()).Scan(&n); err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return n > 0, nil
}

// List returns a page of users ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context, filter UserFilter) (*UserList, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultUserLimit
	}
	if filter.Limit > maxUserLimit {
		filter.Limit = maxUserLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + database.EscapeLike(strings.ToLower(term)) + "%"
		where = append(where, `(email LIKE ? ESCAPE '\' OR LOWER(COALESCE(name, '')) LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	query := "SELECT " + userColumns + " FROM users" + whereClause + " ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return &UserList{Users: users, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Delete removes a user account by ID. Its session is removed by the
// foreign key cascade.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id UserID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// getUser executes a query and scans a single user result.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var id, email, status, createdAt, updatedAt string
	var name, phone, lastLogin sql.NullString

	err := s.Scan(&id, &email, &name, &phone, &u.PasswordHash.Hash, &u.PasswordHash.Algorithm,
		&status, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.ID = UserID(id)
	if u.Email, err = NewEmail(email); err != nil {
		return nil, fmt.Errorf("stored email for %s: %w", id, err)
	}
	if u.Status, err = ParseUserStatus(status); err != nil {
		return nil, fmt.Errorf("stored status for %s: %w", id, err)
	}
	u.Name = name.String
	u.PhoneNumber = phone.String
	if u.LastLoginAt, err = database.ParseNullTime(lastLogin); err != nil {
		return nil, fmt.Errorf("parsing last_login_at: %w", err)
	}
	if u.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &u, nil
}
