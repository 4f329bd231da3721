package auth

import "fmt"

// PermFullAccess is the wildcard permission: it satisfies any permission
// check, the same way the super_admin role does.
const PermFullAccess = "admin.full_access"

// Well-known resource permissions, named "<resource>_<action>".
const (
	PermUsersRead     = "users_read"
	PermUsersWrite    = "users_write"
	PermReportsRead   = "reports_read"
	PermReportsWrite  = "reports_write"
	PermSettingsRead  = "settings_read"
	PermSettingsWrite = "settings_write"
	PermBillingRead   = "billing_read"
	PermBillingWrite  = "billing_write"
)

// rolePermissions maps each role to its default granted permissions.
// A user's stored permissions list extends (never replaces) these.
var rolePermissions = map[Role][]string{
	RoleSuperAdmin: {
		PermFullAccess,
	},
	RoleTenantAdmin: {
		PermUsersRead,
		PermUsersWrite,
		PermReportsRead,
		PermReportsWrite,
		PermSettingsRead,
		PermSettingsWrite,
		PermBillingRead,
		PermBillingWrite,
	},
	RoleManager: {
		PermUsersRead,
		PermReportsRead,
		PermReportsWrite,
		PermSettingsRead,
	},
	RoleUser: {
		PermReportsRead,
	},
}

// PermissionName builds the canonical "<resource>_<action>" permission name.
func PermissionName(resource, action string) string {
	return fmt.Sprintf("%s_%s", resource, action)
}

// HasPermission reports whether the principal holds the permission.
// Super admins and holders of the full-access wildcard pass every check.
func (p *Principal) HasPermission(perm string) bool {
	if p.IsSuperAdmin {
		return true
	}
	for _, granted := range rolePermissions[p.Role] {
		if granted == perm || granted == PermFullAccess {
			return true
		}
	}
	for _, granted := range p.Permissions {
		if granted == perm || granted == PermFullAccess {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal holds one of the given roles.
// Super admins satisfy every role check.
func (p *Principal) HasRole(roles ...Role) bool {
	if p.IsSuperAdmin {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// PermissionsForRole returns the default permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []string {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]string, len(perms))
	copy(result, perms)
	return result
}
