package auth

import (
	"errors"
	"regexp"
	"time"
)

// emailPattern is a pragmatic email shape check, not full RFC 5322.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// maxEmailLength is the maximum allowed email length.
const maxEmailLength = 254

// IsValidEmail checks if an email meets basic format requirements.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleSuperAdmin operates across every tenant and bypasses all
	// permission checks. Platform operators only.
	RoleSuperAdmin Role = "super_admin"

	// RoleTenantAdmin has full control within a single tenant: users,
	// settings, billing, reports.
	RoleTenantAdmin Role = "tenant_admin"

	// RoleManager runs day-to-day operations within a tenant but cannot
	// manage users or tenant settings.
	RoleManager Role = "manager"

	// RoleUser is a regular tenant member with read-mostly access.
	RoleUser Role = "user"
)

// ValidRoles is the set of assignable user roles.
var ValidRoles = []Role{RoleSuperAdmin, RoleTenantAdmin, RoleManager, RoleUser}

// IsValidRole returns true if the role is a valid role for a user account.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an authenticated account.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	CPF          string     `json:"cpf,omitempty"`
	PasswordHash string     `json:"-"` // never serialised
	Role         Role       `json:"role"`
	Permissions  []string   `json:"permissions,omitempty"`
	IsActive     bool       `json:"is_active"`
	TenantID     string     `json:"tenant_id,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	LoginCount   int        `json:"login_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Tenant represents an isolated customer organisation.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantStatusActive is the only status under which a tenant's users may
// authenticate.
const TenantStatusActive = "active"

// Principal is the effective identity attached to an authenticated
// request. It is re-derived from the store on every verification, so it
// reflects the account as it is now, not as it was at issuance.
type Principal struct {
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id,omitempty"`
	Role         Role     `json:"role"`
	Permissions  []string `json:"permissions,omitempty"`
	IsSuperAdmin bool     `json:"is_super_admin"`
}

// CredentialPair is an access/refresh token pair issued as a unit.
type CredentialPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session records a live credential pair bound to a principal, with the
// client metadata captured at issuance.
type Session struct {
	TokenHash        string    `json:"-"` // never serialised
	UserID           string    `json:"user_id"`
	RefreshHash      string    `json:"-"` // never serialised
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrCredentialMissing   = errors.New("credential missing")
	ErrCredentialMalformed = errors.New("credential malformed")
	ErrCredentialExpired   = errors.New("credential has expired")
	ErrCredentialRevoked   = errors.New("credential has been revoked")
	ErrRefreshInvalid      = errors.New("invalid refresh credential")
	ErrPrincipalNotFound   = errors.New("principal not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrForbidden           = errors.New("insufficient permissions")
	ErrTenantInactive      = errors.New("tenant is not active")
	ErrEmailExists         = errors.New("email already exists")
)
