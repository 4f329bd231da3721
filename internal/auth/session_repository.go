package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRepository defines the interface for session persistence.
// Sessions are keyed by the access credential's hash.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	GetByRefreshHash(ctx context.Context, refreshHash string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

const sessionColumns = `token_hash, user_id, refresh_hash, ip_address, user_agent, expires_at, refresh_expires_at, created_at`

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

// Create registers a session. Re-registering the same access credential
// overwrites the previous row.
func (r *SQLiteSessionRepository) Create(ctx context.Context, session *Session) error {
	now := time.Now().UTC().Format(time.RFC3339)
	session.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, refresh_hash, ip_address, user_agent, expires_at, refresh_expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(token_hash) DO UPDATE SET
		   refresh_hash = excluded.refresh_hash,
		   ip_address = excluded.ip_address,
		   user_agent = excluded.user_agent,
		   expires_at = excluded.expires_at,
		   refresh_expires_at = excluded.refresh_expires_at`,
		session.TokenHash, session.UserID, session.RefreshHash,
		nullString(session.IPAddress), nullString(session.UserAgent),
		session.ExpiresAt.UTC().Format(time.RFC3339),
		session.RefreshExpiresAt.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its access credential hash.
func (r *SQLiteSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE token_hash = ?", tokenHash)

	s, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByRefreshHash retrieves a session by its refresh credential hash.
// The refresh flow uses this to find and supersede the old pair.
func (r *SQLiteSessionRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE refresh_hash = ?", refreshHash)

	s, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListByUser returns all sessions registered for a user, newest first.
func (r *SQLiteSessionRepository) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// Delete removes a single session by its access credential hash.
func (r *SQLiteSessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteByUser removes all sessions for a user, returning the count.
func (r *SQLiteSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("deleting user sessions: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// DeleteExpired removes sessions whose refresh credential has expired.
// A session with a dead access credential but a live refresh credential
// stays on file: it can still be refreshed, and bulk revocation must
// still be able to find it.
func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE refresh_expires_at < ?", now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// scanSession scans a session from any scanner (Row or Rows).
func scanSession(s scanner) (*Session, error) {
	var sess Session
	var ip, ua sql.NullString
	var expiresAt, refreshExpiresAt, createdAt string

	err := s.Scan(&sess.TokenHash, &sess.UserID, &sess.RefreshHash,
		&ip, &ua, &expiresAt, &refreshExpiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if ip.Valid {
		sess.IPAddress = ip.String
	}
	if ua.Valid {
		sess.UserAgent = ua.String
	}
	sess.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)               //nolint:errcheck // format is controlled
	sess.RefreshExpiresAt, _ = time.Parse(time.RFC3339, refreshExpiresAt) //nolint:errcheck // format is controlled
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)               //nolint:errcheck // format is controlled

	return &sess, nil
}
