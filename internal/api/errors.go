package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/toitnexus/nexus-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeForbidden         = "forbidden"
	ErrCodeInternal          = "internal_error"
	ErrCodeTooManyRequests   = "too_many_requests"
	ErrCodeCredentialMissing = "credential_missing"
	ErrCodeCredentialInvalid = "credential_invalid"
	ErrCodeCredentialExpired = "credential_expired"
	ErrCodeCredentialRevoked = "credential_revoked"
	ErrCodeTenantInactive    = "tenant_inactive"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, code, message string) {
	writeError(w, http.StatusUnauthorized, code, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps a credential lifecycle error onto the HTTP surface.
// Claims-shape failures and expiry get distinct machine codes so clients
// know whether a refresh is worth attempting.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrCredentialMissing):
		writeUnauthorized(w, ErrCodeCredentialMissing, "authentication required")
	case errors.Is(err, auth.ErrCredentialExpired):
		writeUnauthorized(w, ErrCodeCredentialExpired, "credential has expired")
	case errors.Is(err, auth.ErrCredentialRevoked):
		writeUnauthorized(w, ErrCodeCredentialRevoked, "credential has been revoked")
	case errors.Is(err, auth.ErrCredentialMalformed), errors.Is(err, auth.ErrRefreshInvalid):
		writeUnauthorized(w, ErrCodeCredentialInvalid, "invalid credential")
	case errors.Is(err, auth.ErrPrincipalNotFound):
		writeUnauthorized(w, ErrCodeCredentialInvalid, "account is no longer valid")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, ErrCodeUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrTenantInactive):
		writeError(w, http.StatusForbidden, ErrCodeTenantInactive, "tenant is not active")
	case errors.Is(err, auth.ErrForbidden):
		writeForbidden(w, "insufficient permissions")
	default:
		writeInternalError(w, "internal server error")
	}
}
