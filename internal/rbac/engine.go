package rbac

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/clock"
	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/lock"
)

// List pagination bounds.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page selects a slice of a listing. A non-blank Search filters it.
type Page struct {
	Offset int
	Limit  int
	Search string
}

func (p Page) normalise() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// PermissionList is one page of permissions.
type PermissionList struct {
	Items  []*Permission `json:"items"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// RoleList is one page of roles.
type RoleList struct {
	Items  []*Role `json:"items"`
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// Engine manages roles, permissions and user assignments, and answers
// access questions over them.
//
// Uniqueness checks on create and rename run under advisory locks keyed by
// the candidate name (and resource/action pair); the storage UNIQUE
// constraints reject whatever slips past them. Mutations of one role are
// serialised on the role id so concurrent membership edits are not lost.
// Reads take no locks.
type Engine struct {
	permissions PermissionRepository
	roles       RoleRepository
	assignments AssignmentRepository
	locker      lock.Locker
	sink        event.Sink
	ids         ids.Generator
	clock       clock.Clock
	logger      *slog.Logger
}

// EngineDeps holds the collaborators of Engine.
type EngineDeps struct {
	Permissions PermissionRepository
	Roles       RoleRepository
	Assignments AssignmentRepository
	Locker      lock.Locker
	Sink        event.Sink
	IDs         ids.Generator
	Clock       clock.Clock
	Logger      *slog.Logger
}

// NewEngine wires an Engine. Locker, Sink, IDs, Clock and Logger default
// to an in-process locker, a discarding sink, UUIDs, the system clock and
// slog.Default.
func NewEngine(deps EngineDeps) *Engine {
	e := &Engine{
		permissions: deps.Permissions,
		roles:       deps.Roles,
		assignments: deps.Assignments,
		locker:      deps.Locker,
		sink:        deps.Sink,
		ids:         deps.IDs,
		clock:       deps.Clock,
		logger:      deps.Logger,
	}
	if e.locker == nil {
		e.locker = lock.NewLocalLocker()
	}
	if e.sink == nil {
		e.sink = event.Discard
	}
	if e.ids == nil {
		e.ids = ids.UUID{}
	}
	if e.clock == nil {
		e.clock = clock.System{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Advisory lock keys.
func roleNameKey(name RoleName) string { return "rbac:role-name:" + string(name) }

func roleIDKey(id RoleID) string { return "rbac:role:" + string(id) }

func permNameKey(name PermissionName) string { return "rbac:perm-name:" + string(name) }

func permIDKey(id PermissionID) string { return "rbac:perm:" + string(id) }

func permPairKey(rt ResourceType, action Action) string {
	return "rbac:perm-pair:" + string(rt) + ":" + string(action)
}

// ─── Permissions ────────────────────────────────────────────────────

// CreatePermissionRequest carries the raw input for CreatePermission.
type CreatePermissionRequest struct {
	Name         string
	ResourceType string
	Action       string
	Description  string
}

// CreatePermission validates the input and stores a new permission. The
// name and the (resource type, action) pair must both be unused.
func (e *Engine) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*Permission, error) {
	name, err := NewPermissionName(req.Name)
	if err != nil {
		return nil, err
	}
	rt, err := NewResourceType(req.ResourceType)
	if err != nil {
		return nil, err
	}
	action, err := NewAction(req.Action)
	if err != nil {
		return nil, err
	}

	unlock, err := lock.LockAll(ctx, e.locker, permNameKey(name), permPairKey(rt, action))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := e.checkPermissionName(ctx, name, ""); err != nil {
		return nil, err
	}
	switch _, err := e.permissions.FindByResourceTypeAndAction(ctx, rt, action); {
	case err == nil:
		return nil, ErrPermissionPair
	case !errors.Is(err, ErrPermissionNotFound):
		return nil, err
	}

	p, _, err := NewPermission(PermissionID(e.ids.NewID()), name, rt, action, req.Description, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.permissions.Save(ctx, p); err != nil {
		return nil, err
	}

	e.logger.Info("permission created", "permission_id", p.ID, "resource_type", rt, "action", action)
	e.publish(ctx, p)
	return p, nil
}

// UpdatePermissionRequest carries the raw input for UpdatePermission.
type UpdatePermissionRequest struct {
	Name        string
	Description string
}

// UpdatePermission renames a permission and replaces its description.
func (e *Engine) UpdatePermission(ctx context.Context, id PermissionID, req UpdatePermissionRequest) (*Permission, error) {
	name, err := NewPermissionName(req.Name)
	if err != nil {
		return nil, err
	}

	unlock, err := lock.LockAll(ctx, e.locker, permIDKey(id), permNameKey(name))
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := e.permissions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkPermissionName(ctx, name, id); err != nil {
		return nil, err
	}

	p.Update(name, req.Description, e.clock.Now())
	if err := e.permissions.Save(ctx, p); err != nil {
		return nil, err
	}

	e.logger.Info("permission updated", "permission_id", id)
	e.publish(ctx, p)
	return p, nil
}

// DeletePermission removes a permission. Role memberships that reference
// it are removed by storage in the same statement.
func (e *Engine) DeletePermission(ctx context.Context, id PermissionID) error {
	unlock, err := e.locker.Lock(ctx, permIDKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	p, err := e.permissions.FindByID(ctx, id)
	if err != nil {
		return err
	}
	p.MarkDeleted(e.clock.Now())
	if err := e.permissions.Delete(ctx, id); err != nil {
		return err
	}

	e.logger.Info("permission deleted", "permission_id", id)
	e.publish(ctx, p)
	return nil
}

// GetPermission loads a permission.
func (e *Engine) GetPermission(ctx context.Context, id PermissionID) (*Permission, error) {
	return e.permissions.FindByID(ctx, id)
}

// ListPermissions returns one page of permissions, optionally filtered.
func (e *Engine) ListPermissions(ctx context.Context, page Page) (*PermissionList, error) {
	page = page.normalise()

	var (
		items []*Permission
		total int
		err   error
	)
	if page.Search != "" {
		if total, err = e.permissions.CountBySearch(ctx, page.Search); err != nil {
			return nil, err
		}
		items, err = e.permissions.Search(ctx, page.Search, page.Offset, page.Limit)
	} else {
		if total, err = e.permissions.Count(ctx); err != nil {
			return nil, err
		}
		items, err = e.permissions.Paginate(ctx, page.Offset, page.Limit)
	}
	if err != nil {
		return nil, err
	}
	return &PermissionList{Items: items, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// PermissionsByResourceType lists the permissions on one resource type.
func (e *Engine) PermissionsByResourceType(ctx context.Context, resourceType string) ([]*Permission, error) {
	rt, err := NewResourceType(resourceType)
	if err != nil {
		return nil, err
	}
	return e.permissions.FindAllByResourceType(ctx, rt)
}

func (e *Engine) checkPermissionName(ctx context.Context, name PermissionName, self PermissionID) error {
	existing, err := e.permissions.FindByName(ctx, name)
	switch {
	case errors.Is(err, ErrPermissionNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return ErrPermissionExists
	}
	return nil
}

// ─── Roles ──────────────────────────────────────────────────────────

// CreateRole stores a new role with no permissions. The name must be
// unused.
func (e *Engine) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	roleName, err := NewRoleName(name)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locker.Lock(ctx, roleNameKey(roleName))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := e.checkRoleName(ctx, roleName, ""); err != nil {
		return nil, err
	}

	role, _, err := NewRole(RoleID(e.ids.NewID()), roleName, description, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.roles.Save(ctx, role); err != nil {
		return nil, err
	}

	e.logger.Info("role created", "role_id", role.ID, "name", roleName)
	e.publish(ctx, role)
	return role, nil
}

// UpdateRole renames a role and replaces its description.
func (e *Engine) UpdateRole(ctx context.Context, id RoleID, name, description string) (*Role, error) {
	roleName, err := NewRoleName(name)
	if err != nil {
		return nil, err
	}

	unlock, err := lock.LockAll(ctx, e.locker, roleIDKey(id), roleNameKey(roleName))
	if err != nil {
		return nil, err
	}
	defer unlock()

	role, err := e.roles.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkRoleName(ctx, roleName, id); err != nil {
		return nil, err
	}

	role.Update(roleName, description, e.clock.Now())
	if err := e.roles.Save(ctx, role); err != nil {
		return nil, err
	}

	e.logger.Info("role updated", "role_id", id)
	e.publish(ctx, role)
	return role, nil
}

// DeleteRole removes a role. Its permission set and user assignments are
// removed by storage in the same statement.
func (e *Engine) DeleteRole(ctx context.Context, id RoleID) error {
	unlock, err := e.locker.Lock(ctx, roleIDKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	role, err := e.roles.FindByID(ctx, id)
	if err != nil {
		return err
	}
	role.MarkDeleted(e.clock.Now())
	if err := e.roles.Delete(ctx, id); err != nil {
		return err
	}

	e.logger.Info("role deleted", "role_id", id)
	e.publish(ctx, role)
	return nil
}

// GetRole loads a role.
func (e *Engine) GetRole(ctx context.Context, id RoleID) (*Role, error) {
	return e.roles.FindByID(ctx, id)
}

// GetRoleByName loads a role by name.
func (e *Engine) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	roleName, err := NewRoleName(name)
	if err != nil {
		return nil, err
	}
	return e.roles.FindByName(ctx, roleName)
}

// ListRoles returns one page of roles, optionally filtered.
func (e *Engine) ListRoles(ctx context.Context, page Page) (*RoleList, error) {
	page = page.normalise()

	var (
		items []*Role
		total int
		err   error
	)
	if page.Search != "" {
		if total, err = e.roles.CountBySearch(ctx, page.Search); err != nil {
			return nil, err
		}
		items, err = e.roles.Search(ctx, page.Search, page.Offset, page.Limit)
	} else {
		if total, err = e.roles.Count(ctx); err != nil {
			return nil, err
		}
		items, err = e.roles.Paginate(ctx, page.Offset, page.Limit)
	}
	if err != nil {
		return nil, err
	}
	return &RoleList{Items: items, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// AddPermissionToRole grants a permission to a role. Granting one already
// held changes nothing and publishes nothing.
func (e *Engine) AddPermissionToRole(ctx context.Context, roleID RoleID, permissionID PermissionID) (*Role, error) {
	return e.editRole(ctx, roleID, permissionID, (*Role).AddPermission)
}

// RemovePermissionFromRole withdraws a permission from a role. Removing
// one not held changes nothing and publishes nothing.
func (e *Engine) RemovePermissionFromRole(ctx context.Context, roleID RoleID, permissionID PermissionID) (*Role, error) {
	return e.editRole(ctx, roleID, permissionID, (*Role).RemovePermission)
}

func (e *Engine) editRole(ctx context.Context, roleID RoleID, permissionID PermissionID,
	apply func(*Role, PermissionID, time.Time) []event.Event) (*Role, error) {
	unlock, err := e.locker.Lock(ctx, roleIDKey(roleID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	role, err := e.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if _, err := e.permissions.FindByID(ctx, permissionID); err != nil {
		return nil, err
	}

	if changed := apply(role, permissionID, e.clock.Now()); len(changed) == 0 {
		return role, nil
	}
	if err := e.roles.Save(ctx, role); err != nil {
		return nil, err
	}

	e.logger.Info("role permissions changed", "role_id", roleID, "permission_id", permissionID)
	e.publish(ctx, role)
	return role, nil
}

// PermissionsForRole resolves the permission set of a role.
func (e *Engine) PermissionsForRole(ctx context.Context, roleID RoleID) ([]*Permission, error) {
	role, err := e.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return e.permissions.FindAllByIDs(ctx, role.PermissionIDs())
}

func (e *Engine) checkRoleName(ctx context.Context, name RoleName, self RoleID) error {
	existing, err := e.roles.FindByName(ctx, name)
	switch {
	case errors.Is(err, ErrRoleNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return ErrRoleExists
	}
	return nil
}

// ─── Assignments and decisions ──────────────────────────────────────

// AssignRole gives a user a role. The role must exist; the user is not
// checked here. Assigning a role already held publishes nothing.
func (e *Engine) AssignRole(ctx context.Context, userID auth.UserID, roleID RoleID) error {
	if _, err := auth.ParseUserID(string(userID)); err != nil {
		return err
	}
	if _, err := e.roles.FindByID(ctx, roleID); err != nil {
		return err
	}

	added, err := e.assignments.Assign(ctx, userID, roleID)
	if err != nil || !added {
		return err
	}

	e.logger.Info("role assigned", "user_id", userID, "role_id", roleID)
	e.publishEvents(ctx, assignmentEvent(EventUserRoleAssigned, userID, roleID, e.clock.Now()))
	return nil
}

// RevokeRole removes a role from a user. The role must exist. Revoking a
// role not held publishes nothing.
func (e *Engine) RevokeRole(ctx context.Context, userID auth.UserID, roleID RoleID) error {
	if _, err := e.roles.FindByID(ctx, roleID); err != nil {
		return err
	}

	removed, err := e.assignments.Remove(ctx, userID, roleID)
	if err != nil || !removed {
		return err
	}

	e.logger.Info("role revoked", "user_id", userID, "role_id", roleID)
	e.publishEvents(ctx, assignmentEvent(EventUserRoleRevoked, userID, roleID, e.clock.Now()))
	return nil
}

// RolesForUser lists the roles assigned to a user.
func (e *Engine) RolesForUser(ctx context.Context, userID auth.UserID) ([]*Role, error) {
	return e.assignments.FindRolesByUserID(ctx, userID)
}

// UserHasRole reports whether the user holds the role.
func (e *Engine) UserHasRole(ctx context.Context, userID auth.UserID, roleID RoleID) (bool, error) {
	return e.assignments.HasRole(ctx, userID, roleID)
}

// UserHasRoleByName reports whether the user holds the named role.
func (e *Engine) UserHasRoleByName(ctx context.Context, userID auth.UserID, name string) (bool, error) {
	roleName, err := NewRoleName(name)
	if err != nil {
		return false, err
	}
	return e.assignments.HasRoleByName(ctx, userID, roleName)
}

// UserHasPermission reports whether any role of the user holds the
// permission.
func (e *Engine) UserHasPermission(ctx context.Context, userID auth.UserID, permissionID PermissionID) (bool, error) {
	roles, err := e.assignments.FindRolesByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.HasPermission(permissionID) {
			return true, nil
		}
	}
	return false, nil
}

// EvaluatePermission decides whether the user may perform action on
// resourceType: true iff some assigned role holds a permission for exactly
// that pair.
func (e *Engine) EvaluatePermission(ctx context.Context, userID auth.UserID, resourceType, action string) (bool, error) {
	grants, err := e.grantsFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return Evaluate(grants, ResourceType(resourceType), Action(action)), nil
}

// EffectivePermissions returns the union of the permissions of every role
// assigned to the user.
func (e *Engine) EffectivePermissions(ctx context.Context, userID auth.UserID) ([]*Permission, error) {
	roles, err := e.assignments.FindRolesByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.permissions.FindAllByIDs(ctx, unionPermissionIDs(roles))
}

// grantsFor resolves the roles of a user and their permissions with two
// storage reads.
func (e *Engine) grantsFor(ctx context.Context, userID auth.UserID) ([]RoleGrant, error) {
	roles, err := e.assignments.FindRolesByUserID(ctx, userID)
	if err != nil || len(roles) == 0 {
		return nil, err
	}

	perms, err := e.permissions.FindAllByIDs(ctx, unionPermissionIDs(roles))
	if err != nil {
		return nil, err
	}
	byID := make(map[PermissionID]*Permission, len(perms))
	for _, p := range perms {
		byID[p.ID] = p
	}

	grants := make([]RoleGrant, len(roles))
	for i, r := range roles {
		grants[i].Role = r
		for _, pid := range r.PermissionIDs() {
			if p, ok := byID[pid]; ok {
				grants[i].Permissions = append(grants[i].Permissions, p)
			}
		}
	}
	return grants, nil
}

func unionPermissionIDs(roles []*Role) []PermissionID {
	seen := make(map[PermissionID]struct{})
	var out []PermissionID
	for _, r := range roles {
		for _, pid := range r.PermissionIDs() {
			if _, ok := seen[pid]; !ok {
				seen[pid] = struct{}{}
				out = append(out, pid)
			}
		}
	}
	return out
}

// publish drains r and forwards its events. Delivery failures are logged;
// the write they describe has already committed.
func (e *Engine) publish(ctx context.Context, r event.Recorder) {
	e.publishEvents(ctx, r.Drain()...)
}

func (e *Engine) publishEvents(ctx context.Context, events ...event.Event) {
	if len(events) == 0 {
		return
	}
	if err := e.sink.Publish(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("publishing rbac events failed", "events", len(events), "error", err)
	}
}
