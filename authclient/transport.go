package authclient

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Transport is an http.RoundTripper that authenticates outgoing
// requests with the client's access credential.
//
// Besides attaching the bearer header it handles two lifecycle events:
//   - When a response carries rotated credentials in the X-New-* headers
//     (the server refreshed transparently), the new pair is adopted.
//   - When a response is 401, the pair is refreshed and the request is
//     retried exactly once. A second 401 is returned to the caller.
type Transport struct {
	client *Client
	base   http.RoundTripper
}

// Transport returns a RoundTripper wrapping base (http.DefaultTransport
// when nil) that authenticates requests through this client.
func (c *Client) Transport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{client: c, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(t.authed(req))
	if err != nil {
		return nil, err
	}

	t.adoptRotated(resp)

	if resp.StatusCode != http.StatusUnauthorized || !replayable(req) {
		return resp, nil
	}
	resp.Body.Close()

	// The access credential was rejected mid-flight (revoked, or it
	// expired between issuance and arrival). Refresh once and retry.
	if err := t.client.Refresh(req.Context()); err != nil {
		return nil, err
	}

	retry, err := t.base.RoundTrip(t.authed(req))
	if err != nil {
		return nil, err
	}
	t.adoptRotated(retry)
	return retry, nil
}

// authed clones the request with the current access credential attached.
func (t *Transport) authed(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if token := t.client.AccessToken(); token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			out.Body = body
		}
	}
	return out
}

// adoptRotated installs credentials the server rotated under us.
func (t *Transport) adoptRotated(resp *http.Response) {
	access := resp.Header.Get("X-New-Access-Token")
	refresh := resp.Header.Get("X-New-Refresh-Token")
	if access == "" || refresh == "" {
		return
	}

	t.client.mu.Lock()
	if t.client.creds == nil {
		t.client.mu.Unlock()
		return
	}
	creds := *t.client.creds
	creds.AccessToken = access
	creds.RefreshToken = refresh
	if exp, ok := tokenExpiry(access); ok {
		creds.AccessExpiresAt = exp
	}
	if exp, ok := tokenExpiry(refresh); ok {
		creds.RefreshExpiresAt = exp
	}
	t.client.adoptLocked(&creds)
	t.client.mu.Unlock()

	// The server blacklisted the superseded pair during rotation, so
	// the store must follow or a restart resurrects dead credentials.
	if err := t.client.store.Save(&creds); err != nil {
		t.client.logger.Warn("persisting rotated credentials failed", "error", err)
	}
}

// tokenExpiry reads the exp claim without verifying the signature. The
// client only needs it to time renewals; the server remains the
// authority on validity.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// replayable reports whether the request can be safely retried: either
// it has no body, or the body can be reproduced via GetBody.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
