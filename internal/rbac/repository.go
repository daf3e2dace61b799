package rbac

import (
	"context"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// PermissionRepository persists permissions.
type PermissionRepository interface {
	Save(ctx context.Context, p *Permission) error
	FindByID(ctx context.Context, id PermissionID) (*Permission, error)
	FindByName(ctx context.Context, name PermissionName) (*Permission, error)
	FindByResourceTypeAndAction(ctx context.Context, resourceType ResourceType, action Action) (*Permission, error)
	FindAll(ctx context.Context) ([]*Permission, error)
	FindAllByIDs(ctx context.Context, ids []PermissionID) ([]*Permission, error)
	FindAllByResourceType(ctx context.Context, resourceType ResourceType) ([]*Permission, error)
	Paginate(ctx context.Context, offset, limit int) ([]*Permission, error)
	Search(ctx context.Context, term string, offset, limit int) ([]*Permission, error)
	Count(ctx context.Context) (int, error)
	CountBySearch(ctx context.Context, term string) (int, error)
	Delete(ctx context.Context, id PermissionID) error
}

// RoleRepository persists roles together with their permission sets.
type RoleRepository interface {
	Save(ctx context.Context, r *Role) error
	FindByID(ctx context.Context, id RoleID) (*Role, error)
	FindByName(ctx context.Context, name RoleName) (*Role, error)
	FindAll(ctx context.Context) ([]*Role, error)
	FindAllByIDs(ctx context.Context, ids []RoleID) ([]*Role, error)
	FindAllByPermissionID(ctx context.Context, id PermissionID) ([]*Role, error)
	Paginate(ctx context.Context, offset, limit int) ([]*Role, error)
	Search(ctx context.Context, term string, offset, limit int) ([]*Role, error)
	Count(ctx context.Context) (int, error)
	CountBySearch(ctx context.Context, term string) (int, error)
	Delete(ctx context.Context, id RoleID) error
}

// AssignmentRepository stores the user↔role relation.
type AssignmentRepository interface {
	FindRolesByUserID(ctx context.Context, userID auth.UserID) ([]*Role, error)
	// Assign reports whether the pair was newly added.
	Assign(ctx context.Context, userID auth.UserID, roleID RoleID) (bool, error)
	// Remove reports whether the pair existed.
	Remove(ctx context.Context, userID auth.UserID, roleID RoleID) (bool, error)
	HasRole(ctx context.Context, userID auth.UserID, roleID RoleID) (bool, error)
	HasRoleByName(ctx context.Context, userID auth.UserID, name RoleName) (bool, error)
}
