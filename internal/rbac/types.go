package rbac

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nerrad567/gray-logic-identity/internal/errs"
)

// Name length bounds, in characters.
const (
	MaxPermissionNameLength = 100
	MaxRoleNameLength       = 50
)

var resourceTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// RoleID identifies a Role.
type RoleID string

// PermissionID identifies a Permission.
type PermissionID string

// ParseRoleID rejects blank identifiers.
func ParseRoleID(raw string) (RoleID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errs.NewValidationError("role_id", "must not be blank")
	}
	return RoleID(raw), nil
}

// ParsePermissionID rejects blank identifiers.
func ParsePermissionID(raw string) (PermissionID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errs.NewValidationError("permission_id", "must not be blank")
	}
	return PermissionID(raw), nil
}

// RoleName is a non-blank role name of at most 50 characters.
type RoleName string

// NewRoleName trims and validates raw.
func NewRoleName(raw string) (RoleName, error) {
	v, err := boundedName("name", raw, MaxRoleNameLength)
	return RoleName(v), err
}

// PermissionName is a non-blank permission name of at most 100 characters.
type PermissionName string

// NewPermissionName trims and validates raw.
func NewPermissionName(raw string) (PermissionName, error) {
	v, err := boundedName("name", raw, MaxPermissionNameLength)
	return PermissionName(v), err
}

// ResourceType is an upper-case identifier such as ARTICLE or USER_PROFILE.
type ResourceType string

// NewResourceType validates raw against ^[A-Z][A-Z0-9_]*$.
func NewResourceType(raw string) (ResourceType, error) {
	if !resourceTypePattern.MatchString(raw) {
		return "", errs.NewValidationError("resource_type", "must match ^[A-Z][A-Z0-9_]*$")
	}
	return ResourceType(raw), nil
}

// Action is the operation a permission grants on its resource type.
type Action string

// NewAction rejects blank actions.
func NewAction(raw string) (Action, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", errs.NewValidationError("action", "must not be blank")
	}
	return Action(v), nil
}

func boundedName(field, raw string, limit int) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", errs.NewValidationError(field, "must not be blank")
	}
	if utf8.RuneCountInString(v) > limit {
		return "", errs.NewValidationError(field, fmt.Sprintf("must be at most %d characters", limit))
	}
	return v, nil
}

// Sentinel errors. Each wraps an errs kind.
var (
	ErrRoleNotFound       = fmt.Errorf("role %w", errs.ErrNotFound)
	ErrPermissionNotFound = fmt.Errorf("permission %w", errs.ErrNotFound)
	ErrRoleExists         = fmt.Errorf("role name %w", errs.ErrConflict)
	ErrPermissionExists   = fmt.Errorf("permission name %w", errs.ErrConflict)
	ErrPermissionPair     = fmt.Errorf("permission for resource type and action %w", errs.ErrConflict)
)
