package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// SQLiteAssignmentRepository implements AssignmentRepository using the
// user_roles table.
type SQLiteAssignmentRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAssignmentRepository creates a SQLite-backed assignment repository.
// now stamps assigned_at; nil uses time.Now.
func NewAssignmentRepository(db *sql.DB, now func() time.Time) *SQLiteAssignmentRepository {
	if now == nil {
		now = time.Now
	}
	return &SQLiteAssignmentRepository{db: db, now: now}
}

// FindRolesByUserID returns the roles assigned to a user, with their
// permission sets, ordered by name.
func (r *SQLiteAssignmentRepository) FindRolesByUserID(ctx context.Context, userID auth.UserID) ([]*Role, error) {
	return queryRoles(ctx, r.db,
		`SELECT `+roleColumns+` FROM roles
		 JOIN user_roles ur ON ur.role_id = roles.id
		 WHERE ur.user_id = ? ORDER BY roles.name`,
		string(userID))
}

// Assign adds the pair if absent.
func (r *SQLiteAssignmentRepository) Assign(ctx context.Context, userID auth.UserID, roleID RoleID) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO user_roles (user_id, role_id, assigned_at) VALUES (?, ?, ?)",
		string(userID), string(roleID), database.FormatTime(r.now()))
	if err != nil {
		return false, fmt.Errorf("assigning role: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n > 0, nil
}

// Remove deletes the pair if present.
func (r *SQLiteAssignmentRepository) Remove(ctx context.Context, userID auth.UserID, roleID RoleID) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = ? AND role_id = ?",
		string(userID), string(roleID))
	if err != nil {
		return false, fmt.Errorf("removing role: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n > 0, nil
}

// HasRole reports membership by role id.
func (r *SQLiteAssignmentRepository) HasRole(ctx context.Context, userID auth.UserID, roleID RoleID) (bool, error) {
	n, err := count(ctx, r.db,
		"SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role_id = ?",
		string(userID), string(roleID))
	return n > 0, err
}

// HasRoleByName reports membership by role name.
func (r *SQLiteAssignmentRepository) HasRoleByName(ctx context.Context, userID auth.UserID, name RoleName) (bool, error) {
	n, err := count(ctx, r.db,
		`SELECT COUNT(*) FROM user_roles ur
		 JOIN roles ON roles.id = ur.role_id
		 WHERE ur.user_id = ? AND roles.name = ?`,
		string(userID), string(name))
	return n > 0, err
}
