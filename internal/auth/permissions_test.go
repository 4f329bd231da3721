package auth

import "testing"

func TestPrincipal_HasPermission(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		perm      string
		want      bool
	}{
		{"manager has role default", Principal{Role: RoleManager}, PermReportsWrite, true},
		{"manager lacks users_write", Principal{Role: RoleManager}, PermUsersWrite, false},
		{"user has reports_read", Principal{Role: RoleUser}, PermReportsRead, true},
		{"user lacks settings_read", Principal{Role: RoleUser}, PermSettingsRead, false},
		{"explicit grant extends role", Principal{Role: RoleUser, Permissions: []string{PermSettingsRead}}, PermSettingsRead, true},
		{"wildcard grant passes everything", Principal{Role: RoleUser, Permissions: []string{PermFullAccess}}, PermBillingWrite, true},
		{"super admin bypasses checks", Principal{Role: RoleSuperAdmin, IsSuperAdmin: true}, "anything_at_all", true},
		{"tenant admin has billing", Principal{Role: RoleTenantAdmin}, PermBillingWrite, true},
		{"unknown role has nothing", Principal{Role: Role("ghost")}, PermReportsRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.principal.HasPermission(tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q) = %v, want %v", tt.perm, got, tt.want)
			}
		})
	}
}

func TestPrincipal_HasRole(t *testing.T) {
	p := &Principal{Role: RoleManager}
	if !p.HasRole(RoleManager, RoleTenantAdmin) {
		t.Error("manager should satisfy a manager-or-admin check")
	}
	if p.HasRole(RoleTenantAdmin) {
		t.Error("manager should not satisfy an admin-only check")
	}

	super := &Principal{Role: RoleSuperAdmin, IsSuperAdmin: true}
	if !super.HasRole(RoleTenantAdmin) {
		t.Error("super admin should satisfy every role check")
	}
}

func TestPermissionName(t *testing.T) {
	if got := PermissionName("invoices", "read"); got != "invoices_read" {
		t.Errorf("PermissionName() = %q, want %q", got, "invoices_read")
	}
}

func TestPermissionsForRole_Copies(t *testing.T) {
	perms := PermissionsForRole(RoleManager)
	if len(perms) == 0 {
		t.Fatal("manager should have default permissions")
	}
	perms[0] = "mutated"
	if PermissionsForRole(RoleManager)[0] == "mutated" {
		t.Error("PermissionsForRole() should return a copy")
	}

	if PermissionsForRole(Role("ghost")) != nil {
		t.Error("unknown role should return nil")
	}
}
