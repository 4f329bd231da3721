package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/toitnexus/nexus-core/internal/auth"
)

// Credential transport names. Credentials travel either as a bearer
// header (API clients) or as httpOnly cookies (browsers); the header
// wins when both are present.
const (
	accessCookieName  = "nexus_access"
	refreshCookieName = "nexus_refresh"

	headerRefreshToken    = "X-Refresh-Token"
	headerNewAccessToken  = "X-New-Access-Token"
	headerNewRefreshToken = "X-New-Refresh-Token"
)

// PrincipalFromContext returns the authenticated principal attached by
// the auth gateway, or nil on unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*auth.Principal)
	return p
}

// authMiddleware is the gateway for protected routes. It authenticates
// the access credential and, when the credential has merely expired and
// auto-refresh is enabled, transparently rotates the pair: the request
// proceeds under the new credential and the replacements are handed
// back via response headers and cookies.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawAccess := accessCredential(r)

		principal, err := s.auth.Authenticate(r.Context(), rawAccess)
		if err == nil {
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
			return
		}

		if errors.Is(err, auth.ErrCredentialExpired) && s.cfg.Auth.AutoRefresh {
			if p, ok := s.tryRefresh(w, r); ok {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
				return
			}
		}

		writeAuthError(w, err)
	})
}

// optionalAuthMiddleware attaches a principal when a valid credential is
// presented but lets anonymous requests through.
func (s *Server) optionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal, err := s.auth.Authenticate(r.Context(), accessCredential(r)); err == nil {
			r = r.WithContext(withPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole guards a route subtree to the given roles. Super admins
// always pass.
func (s *Server) requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				writeUnauthorized(w, ErrCodeCredentialMissing, "authentication required")
				return
			}
			if !principal.HasRole(roles...) {
				writeForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requirePermission guards a route subtree to holders of a permission.
func (s *Server) requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				writeUnauthorized(w, ErrCodeCredentialMissing, "authentication required")
				return
			}
			if !principal.HasPermission(perm) {
				writeForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireTenant guards a route subtree to principals scoped to a
// tenant. Super admins pass regardless.
func (s *Server) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			writeUnauthorized(w, ErrCodeCredentialMissing, "authentication required")
			return
		}
		if !principal.IsSuperAdmin && principal.TenantID == "" {
			writeForbidden(w, "no tenant scope")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tryRefresh exchanges the request's refresh credential for a new pair.
// On success the replacements are set as cookies and exposed via the
// X-New-* headers, and the fresh principal is returned.
func (s *Server) tryRefresh(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	rawRefresh := refreshCredential(r)
	if rawRefresh == "" {
		return nil, false
	}

	pair, principal, err := s.auth.Refresh(r.Context(), rawRefresh, sessionMeta(r))
	if err != nil {
		s.logger.Debug("transparent refresh failed", "error", err)
		return nil, false
	}

	w.Header().Set(headerNewAccessToken, pair.AccessToken)
	w.Header().Set(headerNewRefreshToken, pair.RefreshToken)
	s.setAuthCookies(w, pair)

	return principal, true
}

// accessCredential extracts the access credential from the request.
func accessCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return "" // malformed scheme is treated as absent
	}
	if c, err := r.Cookie(accessCookieName); err == nil {
		return c.Value
	}
	return ""
}

// refreshCredential extracts the refresh credential from the request.
func refreshCredential(r *http.Request) string {
	if h := r.Header.Get(headerRefreshToken); h != "" {
		return h
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}

// sessionMeta captures the client metadata recorded with a session.
func sessionMeta(r *http.Request) auth.SessionMeta {
	return auth.SessionMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// setAuthCookies installs the pair as httpOnly, SameSite=Strict cookies.
func (s *Server) setAuthCookies(w http.ResponseWriter, pair *auth.CredentialPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(s.auth.AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(s.auth.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuthCookies expires both auth cookies.
func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.cfg.Auth.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func withPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}
