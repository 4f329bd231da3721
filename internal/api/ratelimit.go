package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter is a fixed-window per-client counter used to slow down
// credential stuffing on the login endpoint. Entries are kept per
// client IP and reset when their window rolls over.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket

	max    int
	window time.Duration
}

type rateBucket struct {
	count       int
	windowStart time.Time
}

func newRateLimiter(maxAttempts int, window time.Duration) *rateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &rateLimiter{
		buckets: make(map[string]*rateBucket),
		max:     maxAttempts,
		window:  window,
	}
}

// allow records an attempt for the key and reports whether it is within
// the window's budget.
func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		rl.buckets[key] = &rateBucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= rl.max
}

// run evicts stale buckets until the context is cancelled.
func (rl *rateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.window)
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if b.windowStart.Before(cutoff) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// loginRateLimitMiddleware rejects login attempts beyond the per-IP
// budget with 429. Inactive when rate limiting is disabled in config.
func (s *Server) loginRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.loginRate != nil && !s.loginRate.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests,
				"too many login attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, honouring X-Forwarded-For from
// a fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
