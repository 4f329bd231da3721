package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByCPF(ctx context.Context, cpf string) (*User, error)
	LoadPrincipal(ctx context.Context, userID string) (*Principal, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	RecordLogin(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// TenantRepository defines the interface for tenant persistence.
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
}

const userColumns = `id, name, email, cpf, password_hash, role, permissions, is_active, tenant_id, last_login, login_count, created_at, updated_at`

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a new user account. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CPF = NormalizeCPF(user.CPF)

	now := time.Now().UTC().Format(time.RFC3339)
	user.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	user.UpdatedAt = user.CreatedAt

	perms, err := marshalPermissions(user.Permissions)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, cpf, password_hash, role, permissions, is_active, tenant_id, last_login, login_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0, ?, ?)`,
		user.ID, user.Name, user.Email, nullString(user.CPF),
		user.PasswordHash, string(user.Role), perms, boolToInt(user.IsActive),
		nullString(user.TenantID), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email)))
}

// GetByCPF retrieves a user by CPF with punctuation stripped.
func (r *SQLiteUserRepository) GetByCPF(ctx context.Context, cpf string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE cpf = ?", NormalizeCPF(cpf))
}

// LoadPrincipal re-derives the effective principal for a user ID.
// Inactive users and users of non-active tenants resolve to
// ErrPrincipalNotFound, so a deactivation takes effect on the next
// request regardless of outstanding credentials.
func (r *SQLiteUserRepository) LoadPrincipal(ctx context.Context, userID string) (*Principal, error) {
	var (
		role         string
		permsJSON    sql.NullString
		isActive     int
		tenantID     sql.NullString
		tenantStatus sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT u.role, u.permissions, u.is_active, u.tenant_id, t.status
		 FROM users u LEFT JOIN tenants t ON t.id = u.tenant_id
		 WHERE u.id = ?`, userID,
	).Scan(&role, &permsJSON, &isActive, &tenantID, &tenantStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("loading principal: %w", err)
	}

	if isActive == 0 {
		return nil, ErrPrincipalNotFound
	}
	if tenantID.Valid && tenantStatus.String != TenantStatusActive {
		return nil, ErrPrincipalNotFound
	}

	p := &Principal{
		UserID:       userID,
		Role:         Role(role),
		IsSuperAdmin: Role(role) == RoleSuperAdmin,
	}
	if tenantID.Valid {
		p.TenantID = tenantID.String
	}
	if permsJSON.Valid && permsJSON.String != "" {
		if err := json.Unmarshal([]byte(permsJSON.String), &p.Permissions); err != nil {
			return nil, fmt.Errorf("decoding permissions: %w", err)
		}
	}
	return p, nil
}

// Update modifies a user's mutable fields (name, role, permissions, is_active, tenant_id).
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	now := time.Now().UTC().Format(time.RFC3339)
	user.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	perms, err := marshalPermissions(user.Permissions)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, role = ?, permissions = ?, is_active = ?, tenant_id = ?, updated_at = ? WHERE id = ?`,
		user.Name, string(user.Role), perms, boolToInt(user.IsActive),
		nullString(user.TenantID), now, user.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// UpdatePassword changes a user's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// RecordLogin stamps last_login and bumps login_count.
func (r *SQLiteUserRepository) RecordLogin(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, login_count = login_count + 1, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// Delete removes a user account by ID.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// getUser executes a query and scans a single user result.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
}

// NormalizeCPF strips punctuation from a CPF identifier, keeping digits only.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var cpf, permsJSON, tenantID, lastLogin sql.NullString
	var role string
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Name, &u.Email, &cpf,
		&u.PasswordHash, &role, &permsJSON, &isActive, &tenantID,
		&lastLogin, &u.LoginCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.IsActive = isActive != 0
	if cpf.Valid {
		u.CPF = cpf.String
	}
	if tenantID.Valid {
		u.TenantID = tenantID.String
	}
	if permsJSON.Valid && permsJSON.String != "" {
		if err := json.Unmarshal([]byte(permsJSON.String), &u.Permissions); err != nil {
			return nil, fmt.Errorf("decoding permissions: %w", err)
		}
	}
	if lastLogin.Valid {
		t, _ := time.Parse(time.RFC3339, lastLogin.String) //nolint:errcheck // format is controlled
		u.LastLogin = &t
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

// marshalPermissions encodes the explicit permission grants as JSON,
// returning NULL for an empty list.
func marshalPermissions(perms []string) (sql.NullString, error) {
	if len(perms) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding permissions: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if an error is a SQLite unique constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
