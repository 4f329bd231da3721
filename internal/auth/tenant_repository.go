package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteTenantRepository implements TenantRepository using SQLite.
type SQLiteTenantRepository struct {
	db *sql.DB
}

// NewTenantRepository creates a new SQLite-backed tenant repository.
func NewTenantRepository(db *sql.DB) *SQLiteTenantRepository {
	return &SQLiteTenantRepository{db: db}
}

// Create inserts a new tenant. The ID is generated if empty and the
// status defaults to active.
func (r *SQLiteTenantRepository) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = "tnt-" + uuid.NewString()[:8]
	}
	if tenant.Status == "" {
		tenant.Status = TenantStatusActive
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tenant.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	tenant.UpdatedAt = tenant.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Status, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant slug %q already exists", tenant.Slug)
		}
		return fmt.Errorf("creating tenant: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant by its unique ID.
func (r *SQLiteTenantRepository) GetByID(ctx context.Context, id string) (*Tenant, error) {
	return r.getTenant(ctx, "SELECT id, name, slug, status, created_at, updated_at FROM tenants WHERE id = ?", id)
}

// GetBySlug retrieves a tenant by its URL slug.
func (r *SQLiteTenantRepository) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return r.getTenant(ctx, "SELECT id, name, slug, status, created_at, updated_at FROM tenants WHERE slug = ?", slug)
}

func (r *SQLiteTenantRepository) getTenant(ctx context.Context, query string, args ...any) (*Tenant, error) {
	var t Tenant
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.Name, &t.Slug, &t.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}

	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &t, nil
}
