package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// SQLitePermissionRepository implements PermissionRepository using SQLite.
type SQLitePermissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a SQLite-backed permission repository.
func NewPermissionRepository(db *sql.DB) *SQLitePermissionRepository {
	return &SQLitePermissionRepository{db: db}
}

const permissionColumns = `id, name, resource_type, action, description, created_at, updated_at`

// Save inserts or updates p. Name and (resource_type, action) collisions
// map to ErrPermissionExists and ErrPermissionPair.
func (r *SQLitePermissionRepository) Save(ctx context.Context, p *Permission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (`+permissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   updated_at = excluded.updated_at`,
		string(p.ID), string(p.Name), string(p.ResourceType), string(p.Action),
		database.NullString(p.Description),
		database.FormatTime(p.CreatedAt), database.FormatTime(p.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if strings.Contains(err.Error(), "permissions.name") {
				return ErrPermissionExists
			}
			return ErrPermissionPair
		}
		return fmt.Errorf("saving permission: %w", err)
	}
	return nil
}

// FindByID retrieves a permission by id.
func (r *SQLitePermissionRepository) FindByID(ctx context.Context, id PermissionID) (*Permission, error) {
	return r.findOne(ctx, "id = ?", string(id))
}

// FindByName retrieves a permission by exact name.
func (r *SQLitePermissionRepository) FindByName(ctx context.Context, name PermissionName) (*Permission, error) {
	return r.findOne(ctx, "name = ?", string(name))
}

// FindByResourceTypeAndAction retrieves the permission for a pair.
func (r *SQLitePermissionRepository) FindByResourceTypeAndAction(ctx context.Context, resourceType ResourceType, action Action) (*Permission, error) {
	return r.findOne(ctx, "resource_type = ? AND action = ?", string(resourceType), string(action))
}

// FindAll returns every permission ordered by name.
func (r *SQLitePermissionRepository) FindAll(ctx context.Context) ([]*Permission, error) {
	return r.query(ctx, "SELECT "+permissionColumns+" FROM permissions ORDER BY name")
}

// FindAllByIDs returns the permissions whose ids are listed. Unknown ids
// are skipped.
func (r *SQLitePermissionRepository) FindAllByIDs(ctx context.Context, ids []PermissionID) ([]*Permission, error) {
	if len(ids) == 0 {
		return []*Permission{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	return r.query(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE id IN ("+placeholders(len(ids))+") ORDER BY name",
		args...)
}

// FindAllByResourceType returns the permissions on one resource type.
func (r *SQLitePermissionRepository) FindAllByResourceType(ctx context.Context, resourceType ResourceType) ([]*Permission, error) {
	return r.query(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE resource_type = ? ORDER BY action",
		string(resourceType))
}

// Paginate returns one page ordered by name.
func (r *SQLitePermissionRepository) Paginate(ctx context.Context, offset, limit int) ([]*Permission, error) {
	return r.query(ctx,
		"SELECT "+permissionColumns+" FROM permissions ORDER BY name LIMIT ? OFFSET ?",
		limit, offset)
}

// Search matches term against name, resource type and description.
func (r *SQLitePermissionRepository) Search(ctx context.Context, term string, offset, limit int) ([]*Permission, error) {
	where, args := permissionSearch(term)
	return r.query(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE "+where+" ORDER BY name LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
}

// Count returns the number of permissions.
func (r *SQLitePermissionRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "SELECT COUNT(*) FROM permissions")
}

// CountBySearch returns the number of permissions Search would match.
func (r *SQLitePermissionRepository) CountBySearch(ctx context.Context, term string) (int, error) {
	where, args := permissionSearch(term)
	return count(ctx, r.db, "SELECT COUNT(*) FROM permissions WHERE "+where, args...)
}

// Delete removes a permission. Role memberships go with it through the
// foreign key cascade.
func (r *SQLitePermissionRepository) Delete(ctx context.Context, id PermissionID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM permissions WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("deleting permission: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

func (r *SQLitePermissionRepository) findOne(ctx context.Context, where string, args ...any) (*Permission, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+permissionColumns+" FROM permissions WHERE "+where, args...)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPermissionNotFound
	}
	return p, err
}

func (r *SQLitePermissionRepository) query(ctx context.Context, query string, args ...any) ([]*Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	out := []*Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return out, nil
}

func scanPermission(s scanner) (*Permission, error) {
	var p Permission
	var id, name, resourceType, action, createdAt, updatedAt string
	var description sql.NullString

	if err := s.Scan(&id, &name, &resourceType, &action, &description, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning permission: %w", err)
	}

	p.ID = PermissionID(id)
	p.Name = PermissionName(name)
	p.ResourceType = ResourceType(resourceType)
	p.Action = Action(action)
	p.Description = description.String

	var err error
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

func permissionSearch(term string) (string, []any) {
	like := "%" + database.EscapeLike(strings.ToLower(strings.TrimSpace(term))) + "%"
	return `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(resource_type) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\')`,
		[]any{like, like, like}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func count(ctx context.Context, db *sql.DB, query string, args ...any) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
