package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// SQLiteRoleRepository implements RoleRepository using SQLite. Permission
// sets live in role_permissions.
type SQLiteRoleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a SQLite-backed role repository.
func NewRoleRepository(db *sql.DB) *SQLiteRoleRepository {
	return &SQLiteRoleRepository{db: db}
}

const roleColumns = `roles.id, roles.name, roles.description, roles.created_at, roles.updated_at`

// Save writes the role row and replaces its permission set in one
// transaction. A name collision maps to ErrRoleExists.
func (r *SQLiteRoleRepository) Save(ctx context.Context, role *Role) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   updated_at = excluded.updated_at`,
		string(role.ID), string(role.Name), database.NullString(role.Description),
		database.FormatTime(role.CreatedAt), database.FormatTime(role.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrRoleExists
		}
		return fmt.Errorf("saving role: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = ?", string(role.ID)); err != nil {
		return fmt.Errorf("clearing role permissions: %w", err)
	}
	for _, pid := range role.PermissionIDs() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)",
			string(role.ID), string(pid)); err != nil {
			return fmt.Errorf("granting permission %s: %w", pid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing role: %w", err)
	}
	return nil
}

// FindByID retrieves a role with its permission set.
func (r *SQLiteRoleRepository) FindByID(ctx context.Context, id RoleID) (*Role, error) {
	return r.findOne(ctx, "roles.id = ?", string(id))
}

// FindByName retrieves a role by exact name.
func (r *SQLiteRoleRepository) FindByName(ctx context.Context, name RoleName) (*Role, error) {
	return r.findOne(ctx, "roles.name = ?", string(name))
}

// FindAll returns every role ordered by name.
func (r *SQLiteRoleRepository) FindAll(ctx context.Context) ([]*Role, error) {
	return queryRoles(ctx, r.db, "SELECT "+roleColumns+" FROM roles ORDER BY roles.name")
}

// FindAllByIDs returns the roles whose ids are listed.
func (r *SQLiteRoleRepository) FindAllByIDs(ctx context.Context, ids []RoleID) ([]*Role, error) {
	if len(ids) == 0 {
		return []*Role{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	return queryRoles(ctx, r.db,
		"SELECT "+roleColumns+" FROM roles WHERE roles.id IN ("+placeholders(len(ids))+") ORDER BY roles.name",
		args...)
}

// FindAllByPermissionID returns the roles holding a permission.
func (r *SQLiteRoleRepository) FindAllByPermissionID(ctx context.Context, id PermissionID) ([]*Role, error) {
	return queryRoles(ctx, r.db,
		`SELECT `+roleColumns+` FROM roles
		 JOIN role_permissions rp ON rp.role_id = roles.id
		 WHERE rp.permission_id = ? ORDER BY roles.name`,
		string(id))
}

// Paginate returns one page ordered by name.
func (r *SQLiteRoleRepository) Paginate(ctx context.Context, offset, limit int) ([]*Role, error) {
	return queryRoles(ctx, r.db,
		"SELECT "+roleColumns+" FROM roles ORDER BY roles.name LIMIT ? OFFSET ?",
		limit, offset)
}

// Search matches term against name and description.
func (r *SQLiteRoleRepository) Search(ctx context.Context, term string, offset, limit int) ([]*Role, error) {
	where, args := roleSearch(term)
	return queryRoles(ctx, r.db,
		"SELECT "+roleColumns+" FROM roles WHERE "+where+" ORDER BY roles.name LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
}

// Count returns the number of roles.
func (r *SQLiteRoleRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "SELECT COUNT(*) FROM roles")
}

// CountBySearch returns the number of roles Search would match.
func (r *SQLiteRoleRepository) CountBySearch(ctx context.Context, term string) (int, error) {
	where, args := roleSearch(term)
	return count(ctx, r.db, "SELECT COUNT(*) FROM roles WHERE "+where, args...)
}

// Delete removes a role. Its permission set and user assignments go with
// it through the foreign key cascade.
func (r *SQLiteRoleRepository) Delete(ctx context.Context, id RoleID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *SQLiteRoleRepository) findOne(ctx context.Context, where string, args ...any) (*Role, error) {
	roles, err := queryRoles(ctx, r.db, "SELECT "+roleColumns+" FROM roles WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, ErrRoleNotFound
	}
	return roles[0], nil
}

type roleRow struct {
	id, name             string
	description          sql.NullString
	createdAt, updatedAt string
}

// queryRoles runs a role query, then loads the permission sets of every
// returned role with a second query. The role rows are fully read first;
// the pool may hold a single connection.
func queryRoles(ctx context.Context, db *sql.DB, query string, args ...any) ([]*Role, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}

	var found []roleRow
	for rows.Next() {
		var rr roleRow
		if err := rows.Scan(&rr.id, &rr.name, &rr.description, &rr.createdAt, &rr.updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		found = append(found, rr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	rows.Close()

	if len(found) == 0 {
		return []*Role{}, nil
	}

	ids := make([]RoleID, len(found))
	for i, rr := range found {
		ids[i] = RoleID(rr.id)
	}
	sets, err := loadPermissionSets(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*Role, 0, len(found))
	for _, rr := range found {
		createdAt, err := database.ParseTime(rr.createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		updatedAt, err := database.ParseTime(rr.updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, RestoreRole(RoleID(rr.id), RoleName(rr.name), rr.description.String,
			sets[RoleID(rr.id)], createdAt, updatedAt))
	}
	return out, nil
}

func loadPermissionSets(ctx context.Context, db *sql.DB, ids []RoleID) (map[RoleID][]PermissionID, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	rows, err := db.QueryContext(ctx,
		"SELECT role_id, permission_id FROM role_permissions WHERE role_id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("loading role permissions: %w", err)
	}
	defer rows.Close()

	sets := make(map[RoleID][]PermissionID, len(ids))
	for rows.Next() {
		var roleID, permID string
		if err := rows.Scan(&roleID, &permID); err != nil {
			return nil, fmt.Errorf("scanning role permission: %w", err)
		}
		sets[RoleID(roleID)] = append(sets[RoleID(roleID)], PermissionID(permID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role permissions: %w", err)
	}
	return sets, nil
}

func roleSearch(term string) (string, []any) {
	like := "%" + database.EscapeLike(strings.ToLower(strings.TrimSpace(term))) + "%"
	return `(LOWER(roles.name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(roles.description, '')) LIKE ? ESCAPE '\')`,
		[]any{like, like}
}
