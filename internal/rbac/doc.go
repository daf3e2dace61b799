// Package rbac is the role-based access control engine.
//
// Permissions name one action on one resource type. Roles are sets of
// permissions, and users hold roles. A user may perform an action when any
// of their roles holds a permission for exactly that resource type and
// action: there is no deny rule and no role hierarchy.
//
// Role and Permission record domain events like the auth aggregates do.
// Engine persists each change before draining and publishing them.
package rbac
