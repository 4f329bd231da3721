package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/toitnexus/nexus-core/internal/audit"
	"github.com/toitnexus/nexus-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required; authenticated super admins
		// get extended detail)
		r.With(s.optionalAuthMiddleware).Get("/health", s.handleHealth)

		// Credential lifecycle entry points (no auth required)
		r.Group(func(r chi.Router) {
			r.Use(s.loginRateLimitMiddleware)
			r.Post("/auth/login", s.handleLogin)
		})
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Get("/auth/sessions", s.handleSessions)
			r.Post("/auth/logout-all", s.handleLogoutAll)

			// Administrative surface: kick every session of a given
			// user, review the credential activity trail.
			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(auth.RoleTenantAdmin))
				r.Use(s.requireTenant)
				r.Post("/users/{id}/logout-all", s.handleAdminLogoutAll)
				r.Get("/audit", s.handleAuditList)
			})

			// Session visibility needs only the users_read permission,
			// so managers can review sessions without admin rights.
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUsersRead))
				r.Use(s.requireTenant)
				r.Get("/users/{id}/sessions", s.handleAdminSessions)
			})
		})
	})

	return r
}

// handleHealth returns the server health status. Super admins with a
// valid credential additionally see database details.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			status = "degraded"
		}
	}
	body := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if principal := PrincipalFromContext(r.Context()); principal != nil && principal.IsSuperAdmin && s.db != nil {
		body["database"] = map[string]any{
			"path":             s.db.Path(),
			"open_connections": s.db.Stats().OpenConnections,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleAdminLogoutAll revokes every session of the user named in the
// path. Tenant admins may only act within their own tenant.
func (s *Server) handleAdminLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	userID := chi.URLParam(r, "id")

	target, err := s.auth.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	if !principal.IsSuperAdmin && target.TenantID != principal.TenantID {
		writeForbidden(w, "user belongs to another tenant")
		return
	}

	n, err := s.auth.LogoutAll(r.Context(), userID)
	if err != nil {
		s.logger.Error("admin logout-all failed", "user_id", userID, "error", err)
		writeInternalError(w, "logout failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "logged_out",
		"sessions_revoked": n,
	})
}

// handleAdminSessions lists the live sessions of the user named in the
// path. Callers may only look inside their own tenant unless they are
// a super admin.
func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	userID := chi.URLParam(r, "id")

	target, err := s.auth.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	if !principal.IsSuperAdmin && target.TenantID != principal.TenantID {
		writeForbidden(w, "user belongs to another tenant")
		return
	}

	sessions, err := s.auth.Sessions(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing sessions failed", "user_id", userID, "error", err)
		writeInternalError(w, "listing sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleAuditList returns the credential activity trail. Tenant admins
// see their own tenant only; super admins see everything and may scope
// with the tenant_id query parameter.
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "activity trail not configured")
		return
	}
	principal := PrincipalFromContext(r.Context())

	q := r.URL.Query()
	filter := audit.Filter{
		UserID: q.Get("user_id"),
		Action: q.Get("action"),
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v) //nolint:errcheck // zero falls back to default
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v) //nolint:errcheck // zero falls back to default
	}

	// requireTenant guarantees non-super-admins carry a tenant.
	if principal.IsSuperAdmin {
		filter.TenantID = q.Get("tenant_id")
	} else {
		filter.TenantID = principal.TenantID
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing activities failed", "error", err)
		writeInternalError(w, "listing activities failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
