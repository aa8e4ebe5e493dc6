package auth

// UserRole is the coarse permission class of a user
type UserRole string

const (
	// RoleGuest is an anonymous visitor (i.e. public gallery pages)
	RoleGuest UserRole = "guest"
	// RoleHost is an authenticated event host
	RoleHost UserRole = "host"
	// RoleAdmin is an administrator
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleAdmin:
		return true
	default:
		return false
	}
}

// Satisfies checks if this role may enter a view that requires the given role.
// Guest views are open to everyone; host and admin views are not shared.
func (r UserRole) Satisfies(required UserRole) bool {
	if required == RoleGuest || required == "" {
		return true
	}
	return r == required
}

// LandingPath is the view a user with this role lands on after sign in.
func (r UserRole) LandingPath() string {
	switch r {
	case RoleAdmin:
		return PathAdminDashboard
	case RoleHost:
		return PathDashboard
	default:
		return PathHome
	}
}

// SignInPath is the sign in view for routes that require this role.
func (r UserRole) SignInPath() string {
	if r == RoleAdmin {
		return PathAdminLogin
	}
	return PathSignIn
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleGuest,
		RoleHost,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
