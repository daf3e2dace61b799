package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// AuthenticationRepository persists Authentication aggregates.
type AuthenticationRepository interface {
	Save(ctx context.Context, a *Authentication) error
	FindByID(ctx context.Context, id AuthenticationID) (*Authentication, error)
	FindByUserID(ctx context.Context, userID UserID) (*Authentication, error)
	FindByAccessToken(ctx context.Context, token string) (*Authentication, error)
	FindByRefreshToken(ctx context.Context, token string) (*Authentication, error)
	Delete(ctx context.Context, a *Authentication) error
	DeleteByUserID(ctx context.Context, userID UserID) error
	// DeleteExpired removes up to limit sessions that can no longer be
	// renewed and returns exactly the rows it removed.
	DeleteExpired(ctx context.Context, now time.Time, limit int) ([]*Authentication, error)
}

// SQLiteAuthenticationRepository implements AuthenticationRepository using SQLite.
type SQLiteAuthenticationRepository struct {
	db *sql.DB
}

// NewAuthenticationRepository creates a SQLite-backed repository.
func NewAuthenticationRepository(db *sql.DB) *SQLiteAuthenticationRepository {
	return &SQLiteAuthenticationRepository{db: db}
}

// HashToken computes the SHA-256 digest of a raw token. Sessions store and
// look up digests only.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

const authenticationColumns = `id, user_id, state, access_token, access_expires_at,
	refresh_token, refresh_expires_at, last_authenticated_at, created_at, updated_at`

// Save inserts or updates a. A second row for the same user is rejected
// with ErrAuthenticationExists.
func (r *SQLiteAuthenticationRepository) Save(ctx context.Context, a *Authentication) error {
	s := a.Snapshot()
	accessValue, accessExp := tokenColumns(s.AccessToken)
	refreshValue, refreshExp := tokenColumns(s.RefreshToken)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO authentications (`+authenticationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   access_token = excluded.access_token,
		   access_expires_at = excluded.access_expires_at,
		   refresh_token = excluded.refresh_token,
		   refresh_expires_at = excluded.refresh_expires_at,
		   last_authenticated_at = excluded.last_authenticated_at,
		   updated_at = excluded.updated_at`,
		string(s.ID), string(s.UserID), string(s.State),
		accessValue, accessExp, refreshValue, refreshExp,
		database.NullTime(s.LastAuthenticatedAt),
		database.FormatTime(s.CreatedAt), database.FormatTime(s.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAuthenticationExists
		}
		return fmt.Errorf("saving authentication: %w", err)
	}
	return nil
}

// FindByID retrieves an Authentication by id.
func (r *SQLiteAuthenticationRepository) FindByID(ctx context.Context, id AuthenticationID) (*Authentication, error) {
	return r.findOne(ctx, "id = ?", string(id))
}

// FindByUserID retrieves the session of a user.
func (r *SQLiteAuthenticationRepository) FindByUserID(ctx context.Context, userID UserID) (*Authentication, error) {
	return r.findOne(ctx, "user_id = ?", string(userID))
}

// FindByAccessToken retrieves the session holding the given stored access
// token value.
func (r *SQLiteAuthenticationRepository) FindByAccessToken(ctx context.Context, token string) (*Authentication, error) {
	return r.findOne(ctx, "access_token = ?", token)
}

// FindByRefreshToken retrieves the session holding the given stored
// refresh token value.
func (r *SQLiteAuthenticationRepository) FindByRefreshToken(ctx context.Context, token string) (*Authentication, error) {
	return r.findOne(ctx, "refresh_token = ?", token)
}

// Delete removes a. Deleting a missing row is not an error.
func (r *SQLiteAuthenticationRepository) Delete(ctx context.Context, a *Authentication) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM authentications WHERE id = ?", string(a.ID())); err != nil {
		return fmt.Errorf("deleting authentication: %w", err)
	}
	return nil
}

// DeleteByUserID removes the session of a user, if any.
func (r *SQLiteAuthenticationRepository) DeleteByUserID(ctx context.Context, userID UserID) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM authentications WHERE user_id = ?", string(userID)); err != nil {
		return fmt.Errorf("deleting authentication for user: %w", err)
	}
	return nil
}

// expiredCondition matches sessions that can no longer be renewed: the
// refresh token has expired, or there is no refresh token and the access
// token has expired (or is absent). Both placeholders take the cutoff.
const expiredCondition = `(refresh_expires_at IS NOT NULL AND refresh_expires_at <= ?)
	    OR (refresh_expires_at IS NULL AND (access_expires_at IS NULL OR access_expires_at <= ?))`

// DeleteExpired selects and deletes in one statement, so a session
// replaced by a concurrent login is neither removed nor reported.
func (r *SQLiteAuthenticationRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) ([]*Authentication, error) {
	cutoff := database.FormatTime(now)
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM authentications
		 WHERE id IN (
		   SELECT id FROM authentications WHERE `+expiredCondition+`
		   ORDER BY updated_at LIMIT ?)
		 RETURNING `+authenticationColumns,
		cutoff, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("deleting expired authentications: %w", err)
	}
	defer rows.Close()

	var out []*Authentication
	for rows.Next() {
		a, err := scanAuthenticationFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deleting expired authentications: %w", err)
	}
	return out, nil
}

func (r *SQLiteAuthenticationRepository) findOne(ctx context.Context, where string, arg any) (*Authentication, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+authenticationColumns+` FROM authentications WHERE `+where, arg)
	a, err := scanAuthenticationFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthenticationNotFound
		}
		return nil, err
	}
	return a, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAuthenticationFrom(sc scanner) (*Authentication, error) {
	var (
		s                        AuthenticationSnapshot
		id, userID, state        string
		accessValue, accessExp   sql.NullString
		refreshValue, refreshExp sql.NullString
		lastAuth                 sql.NullString
		createdAt, updatedAt     string
	)
	if err := sc.Scan(&id, &userID, &state, &accessValue, &accessExp,
		&refreshValue, &refreshExp, &lastAuth, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning authentication: %w", err)
	}

	var err error
	s.ID, s.UserID, s.State = AuthenticationID(id), UserID(userID), State(state)
	if s.AccessToken, err = restoreToken(accessValue, accessExp); err != nil {
		return nil, err
	}
	if s.RefreshToken, err = restoreToken(refreshValue, refreshExp); err != nil {
		return nil, err
	}
	if s.LastAuthenticatedAt, err = database.ParseNullTime(lastAuth); err != nil {
		return nil, fmt.Errorf("parsing last_authenticated_at: %w", err)
	}
	if s.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return RestoreAuthentication(s), nil
}

func tokenColumns(t *TokenValue) (value, expiresAt sql.NullString) {
	if t == nil {
		return sql.NullString{}, sql.NullString{}
	}
	exp := t.ExpiresAt()
	return database.NullString(t.Value()), database.NullTime(&exp)
}

func restoreToken(value, expiresAt sql.NullString) (*TokenValue, error) {
	if !value.Valid {
		return nil, nil
	}
	exp, err := database.ParseTime(expiresAt.String)
	if err != nil {
		return nil, fmt.Errorf("parsing token expiry: %w", err)
	}
	tv := RestoreTokenValue(value.String, exp)
	return &tv, nil
}
