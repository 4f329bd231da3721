// Package auth implements the credential lifecycle and session-revocation
// authority for Nexus Core.
//
// It provides:
//   - A stateless credential codec: paired access (1h) and refresh (7d)
//     JWTs signed with independent secrets
//   - A two-tier revocation registry (in-process cache + durable store,
//     with an optional shared Redis tier) swept hourly
//   - Durable per-principal session tracking for "log out everywhere"
//   - Single-flight credential refresh: at most one in-flight refresh
//     per principal, shared by all concurrent callers
//   - Argon2id password hashing
//
// Principals are always re-derived from the store at verification time;
// the credential payload is trusted only for identity. A role change or
// account deactivation therefore takes effect on the very next request,
// not at the credential's natural expiry.
package auth
