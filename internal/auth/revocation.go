package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokedKeyPrefix namespaces revocation entries in Redis.
const revokedKeyPrefix = "revoked:"

// Registry is the revocation authority for issued credentials. Lookups
// walk three tiers: an in-process cache, an optional shared Redis tier,
// then the durable store. A hit in a slower tier populates the faster
// ones, so the steady-state cost of a revoked-credential check is a map
// read under RLock.
//
// If a backing tier is unreachable the registry fails open: an
// unverifiable credential is treated as not revoked, and the error is
// logged. Availability is preferred over strict revocation here because
// access credentials are short-lived.
type Registry struct {
	mu    sync.RWMutex
	cache map[string]time.Time // token hash -> credential expiry

	store  RevocationRepository
	shared *redis.Client // optional, nil when not configured
	logger *slog.Logger
}

// NewRegistry creates a revocation registry. The Redis client is
// optional; pass nil to run with the in-process cache and durable store
// only.
func NewRegistry(store RevocationRepository, shared *redis.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cache:  make(map[string]time.Time),
		store:  store,
		shared: shared,
		logger: logger,
	}
}

// Block revokes a raw credential until its natural expiry. The durable
// store is written through first; the cache and shared tiers are only
// updated after the store accepts the entry, so a crash never loses a
// revocation that a caller saw succeed.
func (r *Registry) Block(ctx context.Context, rawToken, userID string, expiresAt time.Time, reason string) error {
	return r.BlockHash(ctx, HashToken(rawToken), userID, expiresAt, reason)
}

// BlockHash records a revocation for an already-hashed credential. The
// bulk revocation path works from session records, which hold only
// hashes.
func (r *Registry) BlockHash(ctx context.Context, tokenHash, userID string, expiresAt time.Time, reason string) error {
	if time.Now().After(expiresAt) {
		return nil // already expired, nothing to block
	}

	entry := &RevocationEntry{
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
	}
	if err := r.store.Insert(ctx, entry); err != nil {
		return err
	}

	r.mu.Lock()
	r.cache[tokenHash] = expiresAt
	r.mu.Unlock()

	if r.shared != nil {
		if err := r.shared.Set(ctx, revokedKeyPrefix+tokenHash, reason, time.Until(expiresAt)).Err(); err != nil {
			r.logger.Warn("shared revocation tier write failed", "error", err)
		}
	}

	return nil
}

// IsBlocked reports whether a raw credential has been revoked.
func (r *Registry) IsBlocked(ctx context.Context, rawToken string) bool {
	return r.IsBlockedHash(ctx, HashToken(rawToken))
}

// IsBlockedHash reports whether a credential hash has been revoked.
// Tier order: in-process cache, shared Redis, durable store. Tier
// errors are logged and skipped.
func (r *Registry) IsBlockedHash(ctx context.Context, tokenHash string) bool {
	r.mu.RLock()
	expiry, hit := r.cache[tokenHash]
	r.mu.RUnlock()
	if hit {
		if time.Now().Before(expiry) {
			return true
		}
		// The cached expiry has passed but a slower tier may still hold
		// a live entry (the cache only reflects what this process has
		// seen). Evict and fall through.
		r.mu.Lock()
		delete(r.cache, tokenHash)
		r.mu.Unlock()
	}

	if r.shared != nil {
		ttl, err := r.shared.TTL(ctx, revokedKeyPrefix+tokenHash).Result()
		if err != nil {
			r.logger.Warn("shared revocation tier read failed", "error", err)
		} else if ttl > 0 {
			r.populate(tokenHash, time.Now().Add(ttl))
			return true
		}
	}

	entry, err := r.store.Get(ctx, tokenHash)
	if err != nil {
		r.logger.Error("durable revocation lookup failed, failing open", "error", err)
		return false
	}
	if entry == nil || time.Now().After(entry.ExpiresAt) {
		return false
	}
	r.populate(tokenHash, entry.ExpiresAt)
	return true
}

// populate warms the in-process cache after a slower-tier hit with the
// entry's real expiry, so the credential stays cached as revoked for
// its whole remaining lifetime.
func (r *Registry) populate(tokenHash string, expiresAt time.Time) {
	r.mu.Lock()
	r.cache[tokenHash] = expiresAt
	r.mu.Unlock()
}

// Sweep removes expired entries from the cache and the durable store.
// An entry is only removed once the credential it blocks has passed its
// natural expiry, never earlier.
func (r *Registry) Sweep(ctx context.Context) (int64, error) {
	now := time.Now()

	r.mu.Lock()
	for hash, expiry := range r.cache {
		if now.After(expiry) {
			delete(r.cache, hash)
		}
	}
	r.mu.Unlock()

	// Redis entries expire on their own via TTL.
	return r.store.DeleteExpired(ctx, now)
}

// Run sweeps on the given interval until the context is cancelled.
// Intended to be started as a goroutine at service startup.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
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
			n, err := r.Sweep(ctx)
			if err != nil {
				r.logger.Error("revocation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("revocation sweep completed", "removed", n)
			}
		}
	}
}

// CacheSize returns the number of entries in the in-process tier.
func (r *Registry) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
