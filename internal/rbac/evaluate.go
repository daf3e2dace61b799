package rbac

// RoleGrant is a role together with its resolved permissions.
type RoleGrant struct {
	Role        *Role
	Permissions []*Permission
}

// Allows reports whether any permission of the grant matches exactly.
func (g RoleGrant) Allows(resourceType ResourceType, action Action) bool {
	for _, p := range g.Permissions {
		if p.Matches(resourceType, action) {
			return true
		}
	}
	return false
}

// Evaluate is the access decision: true iff any grant holds a permission
// for exactly (resourceType, action). There is no deny and no inheritance,
// so the order of grants does not affect the result.
func Evaluate(grants []RoleGrant, resourceType ResourceType, action Action) bool {
	for _, g := range grants {
		if g.Allows(resourceType, action) {
			return true
		}
	}
	return false
}
