package rbac

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// Permission grants one action on one resource type. The (ResourceType,
// Action) pair is unique system-wide, as is Name.
type Permission struct {
	event.Log `json:"-"`

	ID           PermissionID   `json:"id"`
	Name         PermissionName `json:"name"`
	ResourceType ResourceType   `json:"resource_type"`
	Action       Action         `json:"action"`
	Description  string         `json:"description,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewPermission creates a permission and records permission.created.
func NewPermission(id PermissionID, name PermissionName, resourceType ResourceType, action Action, description string, now time.Time) (*Permission, []event.Event, error) {
	if _, err := ParsePermissionID(string(id)); err != nil {
		return nil, nil, err
	}
	now = now.UTC()
	p := &Permission{
		ID:           id,
		Name:         name,
		ResourceType: resourceType,
		Action:       action,
		Description:  strings.TrimSpace(description),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return p, p.emit(p.changed(EventPermissionCreated, now)), nil
}

// Update renames the permission and replaces its description. The
// resource type and action are fixed at creation.
func (p *Permission) Update(name PermissionName, description string, now time.Time) []event.Event {
	now = now.UTC()
	p.Name = name
	p.Description = strings.TrimSpace(description)
	p.UpdatedAt = now
	return p.emit(p.changed(EventPermissionUpdated, now))
}

// MarkDeleted records permission.deleted. The caller removes the row.
func (p *Permission) MarkDeleted(now time.Time) []event.Event {
	return p.emit(PermissionDeleted{Base: event.NewBase(EventPermissionDeleted, string(p.ID), now)})
}

// Matches reports whether p grants action on resourceType. Both must match
// exactly.
func (p *Permission) Matches(resourceType ResourceType, action Action) bool {
	return p.ResourceType == resourceType && p.Action == action
}

func (p *Permission) changed(eventType string, now time.Time) PermissionChanged {
	return PermissionChanged{
		Base:         event.NewBase(eventType, string(p.ID), now),
		Name:         p.Name,
		ResourceType: p.ResourceType,
		Action:       p.Action,
		Description:  p.Description,
	}
}

func (p *Permission) emit(events ...event.Event) []event.Event {
	p.Record(events...)
	return events
}
