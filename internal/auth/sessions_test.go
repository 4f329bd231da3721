package auth

import (
	"context"
	"testing"
	"time"
)

func testPair(t *testing.T, codec *Codec, userID string) *CredentialPair {
	t.Helper()

	pair, err := codec.Issue(&Principal{UserID: userID, Role: RoleUser})
	if err != nil {
		t.Fatalf("issuing test pair: %v", err)
	}
	return pair
}

func TestTracker_RegisterAndList(t *testing.T) {
	db := testDB(t)
	registry := NewRegistry(NewRevocationRepository(db), nil, testLogger())
	tracker := NewTracker(NewSessionRepository(db), registry, testLogger())
	codec := testCodec(t)
	ctx := context.Background()

	user := seedTestUser(t, db, "track@example.com", RoleUser, "")
	pair := testPair(t, codec, user.ID)

	meta := SessionMeta{IPAddress: "203.0.113.9", UserAgent: "Firefox"}
	if err := tracker.Register(ctx, user.ID, pair, meta); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	sessions, err := tracker.ActiveSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("ActiveSessions() = %d sessions, want 1", len(sessions))
	}
	if sessions[0].TokenHash != HashToken(pair.AccessToken) {
		t.Error("session should be keyed by the access credential hash")
	}
	if sessions[0].IPAddress != "203.0.113.9" {
		t.Errorf("IPAddress = %q, want %q", sessions[0].IPAddress, "203.0.113.9")
	}
}

func TestTracker_RevokeAll(t *testing.T) {
	db := testDB(t)
	registry := NewRegistry(NewRevocationRepository(db), nil, testLogger())
	tracker := NewTracker(NewSessionRepository(db), registry, testLogger())
	codec := testCodec(t)
	ctx := context.Background()

	user := seedTestUser(t, db, "everywhere@example.com", RoleUser, "")
	other := seedTestUser(t, db, "bystander@example.com", RoleUser, "")

	pairs := make([]*CredentialPair, 3)
	for i := range pairs {
		pairs[i] = testPair(t, codec, user.ID)
		if err := tracker.Register(ctx, user.ID, pairs[i], SessionMeta{}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	otherPair := testPair(t, codec, other.ID)
	if err := tracker.Register(ctx, other.ID, otherPair, SessionMeta{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	n, err := tracker.RevokeAll(ctx, user.ID, ReasonLogoutAll)
	if err != nil {
		t.Fatalf("RevokeAll() error = %v", err)
	}
	if n != 3 {
		t.Errorf("RevokeAll() = %d, want 3", n)
	}

	for i, pair := range pairs {
		if !registry.IsBlocked(ctx, pair.AccessToken) {
			t.Errorf("pair %d access credential should be blocked", i)
		}
		if !registry.IsBlocked(ctx, pair.RefreshToken) {
			t.Errorf("pair %d refresh credential should be blocked", i)
		}
	}

	sessions, _ := tracker.ActiveSessions(ctx, user.ID) //nolint:errcheck // checked above
	if len(sessions) != 0 {
		t.Errorf("all sessions should be cleared, got %d", len(sessions))
	}

	// The bystander is untouched.
	if registry.IsBlocked(ctx, otherPair.AccessToken) {
		t.Error("other principal's credentials should not be blocked")
	}
	otherSessions, _ := tracker.ActiveSessions(ctx, other.ID) //nolint:errcheck // checked above
	if len(otherSessions) != 1 {
		t.Errorf("other principal should keep their session, got %d", len(otherSessions))
	}
}

func TestTracker_DeleteExpired(t *testing.T) {
	db := testDB(t)
	registry := NewRegistry(NewRevocationRepository(db), nil, testLogger())
	repo := NewSessionRepository(db)
	tracker := NewTracker(repo, registry, testLogger())
	ctx := context.Background()

	user := seedTestUser(t, db, "sweep@example.com", RoleUser, "")

	// A session whose refresh credential is long gone.
	if err := repo.Create(ctx, &Session{
		TokenHash:        HashToken("dead-access"),
		UserID:           user.ID,
		RefreshHash:      HashToken("dead-refresh"),
		ExpiresAt:        time.Now().Add(-8 * 24 * time.Hour),
		RefreshExpiresAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// A session with an expired access credential but a live refresh
	// credential must survive the sweep.
	if err := repo.Create(ctx, &Session{
		TokenHash:        HashToken("stale-access"),
		UserID:           user.ID,
		RefreshHash:      HashToken("live-refresh"),
		ExpiresAt:        time.Now().Add(-time.Hour),
		RefreshExpiresAt: time.Now().Add(6 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	n, err := tracker.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}

	sessions, err := tracker.ActiveSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions remaining = %d, want 1", len(sessions))
	}
	if sessions[0].RefreshHash != HashToken("live-refresh") {
		t.Error("the refreshable session should be the survivor")
	}
}
