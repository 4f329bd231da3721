package auth

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			cpf TEXT UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			permissions TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			tenant_id TEXT,
			last_login TEXT,
			login_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE SET NULL
		) STRICT;

		CREATE INDEX idx_users_tenant ON users(tenant_id);
		CREATE INDEX idx_users_role ON users(role);

		CREATE TABLE sessions (
			token_hash TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			refresh_hash TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			expires_at TEXT NOT NULL,
			refresh_expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_sessions_user ON sessions(user_id);
		CREATE INDEX idx_sessions_refresh ON sessions(refresh_hash);
		CREATE INDEX idx_sessions_expires ON sessions(refresh_expires_at);

		CREATE TABLE revoked_tokens (
			token_hash TEXT PRIMARY KEY,
			user_id TEXT,
			expires_at TEXT NOT NULL,
			reason TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE INDEX idx_revoked_tokens_expires ON revoked_tokens(expires_at);
		CREATE INDEX idx_revoked_tokens_user ON revoked_tokens(user_id);

		CREATE TABLE activities (
			id TEXT PRIMARY KEY,
			tenant_id TEXT,
			user_id TEXT,
			action TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE INDEX idx_activities_tenant ON activities(tenant_id);
		CREATE INDEX idx_activities_user ON activities(user_id);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying auth schema: %v", err)
	}

	return db
}

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// seedTestTenant inserts a tenant and returns it.
func seedTestTenant(t *testing.T, db *sql.DB, slug, status string) *Tenant {
	t.Helper()

	repo := NewTenantRepository(db)
	tenant := &Tenant{
		Name:   slug,
		Slug:   slug,
		Status: status,
	}
	if err := repo.Create(context.Background(), tenant); err != nil {
		t.Fatalf("creating test tenant %s: %v", slug, err)
	}
	return tenant
}

// seedTestUser inserts a test user with password "test-password" and returns it.
func seedTestUser(t *testing.T, db *sql.DB, email string, role Role, tenantID string) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewUserRepository(db)
	user := &User{
		Name:         email,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		TenantID:     tenantID,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}

// testCodec returns a codec with short-lived but real TTLs.
func testCodec(t *testing.T) *Codec {
	t.Helper()

	codec, err := NewCodec(
		"test-access-secret-0123456789abcdef",
		"test-refresh-secret-0123456789abcdef",
		time.Hour, 7*24*time.Hour,
	)
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}
	return codec
}

// testService wires a full service stack on a fresh database.
func testService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()

	db := testDB(t)
	logger := testLogger()
	registry := NewRegistry(NewRevocationRepository(db), nil, logger)
	tracker := NewTracker(NewSessionRepository(db), registry, logger)
	svc := NewService(testCodec(t), NewUserRepository(db), NewTenantRepository(db), tracker, registry, logger)
	return svc, db
}
