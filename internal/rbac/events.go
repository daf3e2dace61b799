package rbac

import (
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// Event types.
const (
	EventPermissionCreated     = "permission.created"
	EventPermissionUpdated     = "permission.updated"
	EventPermissionDeleted     = "permission.deleted"
	EventRoleCreated           = "role.created"
	EventRoleUpdated           = "role.updated"
	EventRoleDeleted           = "role.deleted"
	EventRolePermissionAdded   = "role.permission.added"
	EventRolePermissionRemoved = "role.permission.removed"
	EventUserRoleAssigned      = "user.role.assigned"
	EventUserRoleRevoked       = "user.role.revoked"
)

// PermissionChanged is emitted on create and update.
type PermissionChanged struct {
	event.Base
	Name         PermissionName `json:"name"`
	ResourceType ResourceType   `json:"resource_type"`
	Action       Action         `json:"action"`
	Description  string         `json:"description,omitempty"`
}

// PermissionDeleted is emitted when a permission is removed.
type PermissionDeleted struct {
	event.Base
}

// RoleChanged is emitted on create and update.
type RoleChanged struct {
	event.Base
	Name        RoleName `json:"name"`
	Description string   `json:"description,omitempty"`
}

// RoleDeleted is emitted when a role is removed.
type RoleDeleted struct {
	event.Base
}

// RolePermissionChanged is emitted when a role gains or loses a permission.
type RolePermissionChanged struct {
	event.Base
	PermissionID PermissionID `json:"permission_id"`
}

// UserRoleChanged is emitted when a user gains or loses a role. The
// aggregate id is the user id.
type UserRoleChanged struct {
	event.Base
	RoleID RoleID `json:"role_id"`
}

// assignmentEvent builds the event for a membership change of userID.
func assignmentEvent(eventType string, userID auth.UserID, roleID RoleID, at time.Time) UserRoleChanged {
	return UserRoleChanged{
		Base:   event.NewBase(eventType, string(userID), at),
		RoleID: roleID,
	}
}
