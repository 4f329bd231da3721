package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// HashToken computes the SHA-256 hex digest of a raw credential for
// storage and lookup. Raw credentials are never stored, logged, or
// compared — only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// RevocationEntry is a durable record of a revoked credential.
type RevocationEntry struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	Reason    string
	CreatedAt time.Time
}

// RevocationRepository defines the durable tier of the revocation
// registry.
type RevocationRepository interface {
	Insert(ctx context.Context, entry *RevocationEntry) error
	Get(ctx context.Context, tokenHash string) (*RevocationEntry, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteRevocationRepository implements RevocationRepository using SQLite.
type SQLiteRevocationRepository struct {
	db *sql.DB
}

// NewRevocationRepository creates a new SQLite-backed revocation repository.
func NewRevocationRepository(db *sql.DB) *SQLiteRevocationRepository {
	return &SQLiteRevocationRepository{db: db}
}

// Insert records a revoked credential hash. Re-revoking the same
// credential is a no-op, not an error.
func (r *SQLiteRevocationRepository) Insert(ctx context.Context, entry *RevocationEntry) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (token_hash, user_id, expires_at, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(token_hash) DO NOTHING`,
		entry.TokenHash, nullString(entry.UserID),
		entry.ExpiresAt.UTC().Format(time.RFC3339),
		nullString(entry.Reason), now,
	)
	if err != nil {
		return fmt.Errorf("inserting revocation: %w", err)
	}
	return nil
}

// Get loads the revocation record for a credential hash. A hash that
// was never revoked returns nil, not an error.
func (r *SQLiteRevocationRepository) Get(ctx context.Context, tokenHash string) (*RevocationEntry, error) {
	var (
		userID, reason       sql.NullString
		expiresAt, createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at, reason, created_at FROM revoked_tokens WHERE token_hash = ?",
		tokenHash).Scan(&userID, &expiresAt, &reason, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading revocation: %w", err)
	}

	entry := &RevocationEntry{
		TokenHash: tokenHash,
		UserID:    userID.String,
		Reason:    reason.String,
	}
	entry.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return entry, nil
}

// DeleteExpired removes revocation records whose credential has passed
// its natural expiry. Entries are never removed earlier: a revoked
// credential stays blocked for its whole remaining lifetime.
func (r *SQLiteRevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at < ?", now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("sweeping revocations: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
