package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// Resource types and actions guarding the management API.
const (
	ResourceUser       = "USER"
	ResourceRole       = "ROLE"
	ResourcePermission = "PERMISSION"
	ResourceAudit      = "AUDIT"

	ActionRead   = "READ"
	ActionManage = "MANAGE"
)

// AdministratorRoleName is the role given to the bootstrap account.
const AdministratorRoleName = "administrator"

// AdministratorPermissions is the permission set of the administrator role.
var AdministratorPermissions = []CreatePermissionRequest{
	{Name: "users.read", ResourceType: ResourceUser, Action: ActionRead, Description: "List and view accounts"},
	{Name: "users.manage", ResourceType: ResourceUser, Action: ActionManage, Description: "Change and deactivate accounts"},
	{Name: "roles.read", ResourceType: ResourceRole, Action: ActionRead, Description: "List and view roles"},
	{Name: "roles.manage", ResourceType: ResourceRole, Action: ActionManage, Description: "Create, edit and assign roles"},
	{Name: "permissions.read", ResourceType: ResourcePermission, Action: ActionRead, Description: "List and view permissions"},
	{Name: "permissions.manage", ResourceType: ResourcePermission, Action: ActionManage, Description: "Create and edit permissions"},
	{Name: "audit.read", ResourceType: ResourceAudit, Action: ActionRead, Description: "Read the audit trail"},
}

// EnsureAdministrator makes sure the administrator role exists with every
// permission in AdministratorPermissions and is assigned to userID.
// Running it again changes nothing. Existing permissions are matched by
// resource type and action, whatever their name.
func (e *Engine) EnsureAdministrator(ctx context.Context, userID auth.UserID) (*Role, error) {
	role, err := e.ensureRole(ctx, AdministratorRoleName, "Full access to the management API")
	if err != nil {
		return nil, fmt.Errorf("ensuring administrator role: %w", err)
	}

	for _, req := range AdministratorPermissions {
		p, err := e.ensurePermission(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("ensuring permission %s: %w", req.Name, err)
		}
		if role, err = e.AddPermissionToRole(ctx, role.ID, p.ID); err != nil {
			return nil, err
		}
	}

	if err := e.AssignRole(ctx, userID, role.ID); err != nil {
		return nil, err
	}
	return role, nil
}

func (e *Engine) ensureRole(ctx context.Context, name, description string) (*Role, error) {
	role, err := e.GetRoleByName(ctx, name)
	if !errors.Is(err, ErrRoleNotFound) {
		return role, err
	}
	role, err = e.CreateRole(ctx, name, description)
	if errors.Is(err, ErrRoleExists) {
		return e.GetRoleByName(ctx, name)
	}
	return role, err
}

func (e *Engine) ensurePermission(ctx context.Context, req CreatePermissionRequest) (*Permission, error) {
	find := func() (*Permission, error) {
		return e.permissions.FindByResourceTypeAndAction(ctx, ResourceType(req.ResourceType), Action(req.Action))
	}
	p, err := find()
	if !errors.Is(err, ErrPermissionNotFound) {
		return p, err
	}
	p, err = e.CreatePermission(ctx, req)
	if errors.Is(err, ErrPermissionPair) {
		return find()
	}
	return p, err
}
