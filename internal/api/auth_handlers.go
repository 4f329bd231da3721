package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/toitnexus/nexus-core/internal/auth"
)

// loginRequest is the request body for POST /auth/login. The identifier
// may be an email address or a CPF.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// credentialResponse is the response body for login and refresh.
type credentialResponse struct {
	AccessToken      string            `json:"access_token"`
	RefreshToken     string            `json:"refresh_token"`
	TokenType        string            `json:"token_type"`
	AccessExpiresAt  time.Time         `json:"access_expires_at"`
	RefreshExpiresAt time.Time         `json:"refresh_expires_at"`
	Principal        principalResponse `json:"principal"`
}

type principalResponse struct {
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Role         auth.Role `json:"role"`
	Permissions  []string  `json:"permissions,omitempty"`
	IsSuperAdmin bool      `json:"is_super_admin"`
}

// refreshRequest is the optional request body for POST /auth/refresh.
// The refresh credential may also arrive via header or cookie.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin authenticates a user and issues a credential pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeBadRequest(w, "identifier and password are required")
		return
	}

	pair, principal, err := s.auth.Login(r.Context(), req.Identifier, req.Password, sessionMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	s.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, newCredentialResponse(pair, principal))
}

// handleRefresh exchanges a refresh credential for a fresh pair. The
// credential is taken from the JSON body, the X-Refresh-Token header,
// or the refresh cookie, in that order.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rawRefresh := ""
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		rawRefresh = req.RefreshToken
	}
	if rawRefresh == "" {
		rawRefresh = refreshCredential(r)
	}
	if rawRefresh == "" {
		writeUnauthorized(w, ErrCodeCredentialMissing, "refresh credential required")
		return
	}

	pair, principal, err := s.auth.Refresh(r.Context(), rawRefresh, sessionMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	w.Header().Set(headerNewAccessToken, pair.AccessToken)
	w.Header().Set(headerNewRefreshToken, pair.RefreshToken)
	s.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, newCredentialResponse(pair, principal))
}

// handleLogout revokes the presented pair. Safe to call with expired or
// already-revoked credentials.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), accessCredential(r), refreshCredential(r)); err != nil {
		s.logger.Error("logout failed", "error", err)
		writeInternalError(w, "logout failed")
		return
	}

	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleLogoutAll revokes every live session of the calling principal.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	n, err := s.auth.LogoutAll(r.Context(), principal.UserID)
	if err != nil {
		s.logger.Error("logout-all failed", "user_id", principal.UserID, "error", err)
		writeInternalError(w, "logout failed")
		return
	}

	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "logged_out",
		"sessions_revoked": n,
	})
}

// handleMe returns the calling principal's account record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	user, err := s.auth.GetUser(r.Context(), principal.UserID)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleSessions lists the calling principal's live sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	sessions, err := s.auth.Sessions(r.Context(), principal.UserID)
	if err != nil {
		s.logger.Error("listing sessions failed", "user_id", principal.UserID, "error", err)
		writeInternalError(w, "listing sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func newCredentialResponse(pair *auth.CredentialPair, principal *auth.Principal) credentialResponse {
	return credentialResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Principal: principalResponse{
			UserID:       principal.UserID,
			TenantID:     principal.TenantID,
			Role:         principal.Role,
			Permissions:  principal.Permissions,
			IsSuperAdmin: principal.IsSuperAdmin,
		},
	}
}
