package audit

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the activity schema.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	schema := `
		CREATE TABLE activities (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT,
			user_id    TEXT,
			action     TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			details    TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return db
}

func TestRecord(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	entry := &Entry{
		TenantID:  "tnt-1",
		UserID:    "usr-1",
		Action:    ActionLogin,
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
		Details:   map[string]any{"note": "first"},
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if entry.ID == "" {
		t.Error("Record() should generate an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Record() should set CreatedAt")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}

	got := result.Entries[0]
	if got.Action != ActionLogin {
		t.Errorf("Action = %q, want %q", got.Action, ActionLogin)
	}
	if got.TenantID != "tnt-1" || got.UserID != "usr-1" {
		t.Errorf("scoping = %q/%q, want tnt-1/usr-1", got.TenantID, got.UserID)
	}
	if got.IPAddress != "10.0.0.1" || got.UserAgent != "test-agent" {
		t.Errorf("request meta = %q/%q, want 10.0.0.1/test-agent", got.IPAddress, got.UserAgent)
	}
	if got.Details["note"] != "first" {
		t.Errorf("Details = %v, want note=first", got.Details)
	}
}

func TestRecord_MinimalEntry(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	// No tenant, no user, no meta: a super admin action.
	if err := repo.Record(ctx, &Entry{Action: ActionLogoutAll}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(result.Entries))
	}
	if result.Entries[0].TenantID != "" {
		t.Errorf("TenantID = %q, want empty", result.Entries[0].TenantID)
	}
	if result.Entries[0].Details != nil {
		t.Errorf("Details = %v, want nil", result.Entries[0].Details)
	}
}

func TestList_Filtering(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	seed := []Entry{
		{TenantID: "tnt-a", UserID: "usr-1", Action: ActionLogin},
		{TenantID: "tnt-a", UserID: "usr-1", Action: ActionLogout},
		{TenantID: "tnt-a", UserID: "usr-2", Action: ActionLogin},
		{TenantID: "tnt-b", UserID: "usr-3", Action: ActionLogin},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("seeding entry %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by tenant", Filter{TenantID: "tnt-a"}, 3},
		{"by user", Filter{UserID: "usr-1"}, 2},
		{"by action", Filter{Action: ActionLogin}, 3},
		{"tenant and action", Filter{TenantID: "tnt-a", Action: ActionLogin}, 2},
		{"other tenant isolated", Filter{TenantID: "tnt-b"}, 1},
		{"no match", Filter{TenantID: "tnt-c"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("Total = %d, want %d", result.Total, tt.want)
			}
			if len(result.Entries) != tt.want {
				t.Errorf("entries = %d, want %d", len(result.Entries), tt.want)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		entry := &Entry{
			ID:        fmt.Sprintf("act-%d", i),
			UserID:    "usr-1",
			Action:    ActionLogin,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, entry); err != nil {
			t.Fatalf("seeding entry %d: %v", i, err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(result.Entries))
	}
	// Most recent first.
	if result.Entries[0].ID != "act-4" || result.Entries[1].ID != "act-3" {
		t.Errorf("first page = %s, %s, want act-4, act-3", result.Entries[0].ID, result.Entries[1].ID)
	}

	result, err = repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("last page entries = %d, want 1", len(result.Entries))
	}
	if result.Entries[0].ID != "act-0" {
		t.Errorf("last page = %s, want act-0", result.Entries[0].ID)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := NewRepository(testDB(t))

	result, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want clamped to 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want clamped to 0", result.Offset)
	}
}
