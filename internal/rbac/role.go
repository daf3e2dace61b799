package rbac

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// Role is a named set of permissions. Membership is by permission id, so
// adding the same permission twice is a no-op.
type Role struct {
	event.Log

	ID          RoleID
	Name        RoleName
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	permissions map[PermissionID]struct{}
}

// NewRole creates a role with no permissions and records role.created.
func NewRole(id RoleID, name RoleName, description string, now time.Time) (*Role, []event.Event, error) {
	if _, err := ParseRoleID(string(id)); err != nil {
		return nil, nil, err
	}
	now = now.UTC()
	r := &Role{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
		permissions: make(map[PermissionID]struct{}),
	}
	return r, r.emit(r.changed(EventRoleCreated, now)), nil
}

// RestoreRole rebuilds a role from storage without recording events.
func RestoreRole(id RoleID, name RoleName, description string, permissionIDs []PermissionID, createdAt, updatedAt time.Time) *Role {
	r := &Role{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		permissions: make(map[PermissionID]struct{}, len(permissionIDs)),
	}
	for _, pid := range permissionIDs {
		r.permissions[pid] = struct{}{}
	}
	return r
}

// Update renames the role and replaces its description.
func (r *Role) Update(name RoleName, description string, now time.Time) []event.Event {
	now = now.UTC()
	r.Name = name
	r.Description = strings.TrimSpace(description)
	r.UpdatedAt = now
	return r.emit(r.changed(EventRoleUpdated, now))
}

// AddPermission inserts id into the set. Nothing is emitted when it was
// already present.
func (r *Role) AddPermission(id PermissionID, now time.Time) []event.Event {
	if r.HasPermission(id) {
		return nil
	}
	r.ensureSet()
	r.permissions[id] = struct{}{}
	r.UpdatedAt = now.UTC()
	return r.emit(RolePermissionChanged{
		Base:         event.NewBase(EventRolePermissionAdded, string(r.ID), now),
		PermissionID: id,
	})
}

// RemovePermission deletes id from the set. Nothing is emitted when it was
// absent.
func (r *Role) RemovePermission(id PermissionID, now time.Time) []event.Event {
	if !r.HasPermission(id) {
		return nil
	}
	delete(r.permissions, id)
	r.UpdatedAt = now.UTC()
	return r.emit(RolePermissionChanged{
		Base:         event.NewBase(EventRolePermissionRemoved, string(r.ID), now),
		PermissionID: id,
	})
}

// MarkDeleted records role.deleted. The caller removes the row.
func (r *Role) MarkDeleted(now time.Time) []event.Event {
	return r.emit(RoleDeleted{Base: event.NewBase(EventRoleDeleted, string(r.ID), now)})
}

// HasPermission reports set membership.
func (r *Role) HasPermission(id PermissionID) bool {
	_, ok := r.permissions[id]
	return ok
}

// PermissionIDs returns the set in sorted order.
func (r *Role) PermissionIDs() []PermissionID {
	out := make([]PermissionID, 0, len(r.permissions))
	for id := range r.permissions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON includes the permission set.
func (r *Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            RoleID         `json:"id"`
		Name          RoleName       `json:"name"`
		Description   string         `json:"description,omitempty"`
		PermissionIDs []PermissionID `json:"permission_ids"`
		CreatedAt     time.Time      `json:"created_at"`
		UpdatedAt     time.Time      `json:"updated_at"`
	}{r.ID, r.Name, r.Description, r.PermissionIDs(), r.CreatedAt, r.UpdatedAt})
}

func (r *Role) ensureSet() {
	if r.permissions == nil {
		r.permissions = make(map[PermissionID]struct{})
	}
}

func (r *Role) changed(eventType string, now time.Time) RoleChanged {
	return RoleChanged{
		Base:        event.NewBase(eventType, string(r.ID), now),
		Name:        r.Name,
		Description: r.Description,
	}
}

func (r *Role) emit(events ...event.Event) []event.Event {
	r.Record(events...)
	return events
}
