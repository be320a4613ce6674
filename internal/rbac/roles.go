package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleAgent      = "agent"
	RoleAnalyst    = "analyst"
	RoleSuperAdmin = "super_admin"
	RoleSupport    = "support" // hidden role: internal staff watching live calls
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// CanViewPlatform reports whether role may read other tenants' calls.
func CanViewPlatform(role string) bool { return role == RoleSuperAdmin || role == RoleSupport }

// IsKnownRole reports whether role is one of the roles above.
func IsKnownRole(role string) bool {
	switch role {
	case RoleOwner, RoleAgent, RoleAnalyst, RoleSuperAdmin, RoleSupport:
		return true
	default:
		return false
	}
}
