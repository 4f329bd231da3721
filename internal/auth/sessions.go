package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionMeta is the client metadata captured when a pair is issued.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

// Tracker maintains the durable record of live credential pairs per
// principal. It is what makes "log out everywhere" possible: without a
// per-principal session index, individual access credentials could not
// be found and revoked in bulk.
type Tracker struct {
	sessions SessionRepository
	registry *Registry
	logger   *slog.Logger
}

// NewTracker creates a session tracker backed by the given repository
// and revocation registry.
func NewTracker(sessions SessionRepository, registry *Registry, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{sessions: sessions, registry: registry, logger: logger}
}

// Register records a freshly issued pair for a principal. Called before
// the pair is released to the client, so every live credential is on
// file from the moment it exists.
func (t *Tracker) Register(ctx context.Context, userID string, pair *CredentialPair, meta SessionMeta) error {
	session := &Session{
		TokenHash:        HashToken(pair.AccessToken),
		UserID:           userID,
		RefreshHash:      HashToken(pair.RefreshToken),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
	if err := t.sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("registering session: %w", err)
	}
	return nil
}

// ActiveSessions returns the sessions currently on file for a principal.
func (t *Tracker) ActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	return t.sessions.ListByUser(ctx, userID)
}

// Remove drops the session for a single access credential. The
// credential itself is revoked separately by the caller.
func (t *Tracker) Remove(ctx context.Context, rawAccessToken string) error {
	return t.sessions.Delete(ctx, HashToken(rawAccessToken))
}

// RevokeAll blocks every live credential of a principal, access and
// refresh alike, and clears its session records. Returns the number of
// sessions revoked. Sessions whose revocation fails are left on file so
// a retry can pick them up.
func (t *Tracker) RevokeAll(ctx context.Context, userID, reason string) (int, error) {
	sessions, err := t.sessions.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing sessions for revocation: %w", err)
	}

	revoked := 0
	for i := range sessions {
		s := &sessions[i]
		if err := t.registry.BlockHash(ctx, s.TokenHash, userID, s.ExpiresAt, reason); err != nil {
			t.logger.Error("blocking session credential failed", "user_id", userID, "error", err)
			continue
		}
		if err := t.registry.BlockHash(ctx, s.RefreshHash, userID, s.RefreshExpiresAt, reason); err != nil {
			t.logger.Error("blocking refresh credential failed", "user_id", userID, "error", err)
			continue
		}
		if err := t.sessions.Delete(ctx, s.TokenHash); err != nil {
			t.logger.Error("deleting revoked session failed", "user_id", userID, "error", err)
			continue
		}
		revoked++
	}

	if revoked < len(sessions) {
		return revoked, fmt.Errorf("revoked %d of %d sessions", revoked, len(sessions))
	}
	return revoked, nil
}

// DeleteExpired drops sessions whose refresh credential has expired.
func (t *Tracker) DeleteExpired(ctx context.Context) (int64, error) {
	return t.sessions.DeleteExpired(ctx, time.Now())
}

// Run sweeps expired sessions on the given interval until the context
// is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := t.DeleteExpired(ctx)
			if err != nil {
				t.logger.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				t.logger.Debug("session sweep completed", "removed", n)
			}
		}
	}
}
