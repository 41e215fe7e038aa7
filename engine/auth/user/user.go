package user

import (
	"time"
)

// Role is the access tier derived from the configured email allow-lists.
// There is no per-request role mutation; the role is fixed at token
// validation time.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) String() string {
	return string(r)
}

// Permission names used by the admin surface.
const (
	PermUseGuidance   = "guidance:use"
	PermViewOwnStats  = "stats:view_own"
	PermViewAllStats  = "stats:view_all"
	PermManageBudgets = "budgets:manage"
	PermManageBlocks  = "blocks:manage"
	PermManageRoles   = "roles:manage"
)

var rolePermissions = map[Role][]string{
	RoleUser: {PermUseGuidance, PermViewOwnStats},
	RoleAdmin: {
		PermUseGuidance, PermViewOwnStats, PermViewAllStats,
		PermManageBudgets, PermManageBlocks,
	},
	RoleSuperAdmin: {
		PermUseGuidance, PermViewOwnStats, PermViewAllStats,
		PermManageBudgets, PermManageBlocks, PermManageRoles,
	},
}

// Permissions returns the fixed bundle for a role.
func (r Role) Permissions() []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether the role's bundle contains the permission.
func (r Role) HasPermission(permission string) bool {
	for _, p := range rolePermissions[r] {
		if p == permission {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role grants the admin surface.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// AtLeast reports whether the role meets or exceeds the minimum tier.
func (r Role) AtLeast(minimum Role) bool {
	return roleRank[r] >= roleRank[minimum]
}

// User is the authenticated principal attached to a request.
type User struct {
	Subject     string    `json:"sub"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	Permissions []string  `json:"permissions"`
	LastLogin   time.Time `json:"last_login"`
	Active      bool      `json:"active"`
}

// HasPermission reports whether the user's bundle contains the permission.
func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
