package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// renewMargin is how far ahead of access expiry the background renewal
// fires. Pairs shorter than twice the margin renew at half their life.
const renewMargin = 5 * time.Minute

// ErrLoggedOut is passed to the OnLogout callback (and returned by
// calls made afterwards) when the session cannot be recovered: the
// refresh credential was rejected and re-authentication is required.
var ErrLoggedOut = errors.New("session ended, login required")

// Options configures a Client. The zero value is usable.
type Options struct {
	// HTTPClient is the underlying client for lifecycle calls.
	// Defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Store persists credentials across restarts. Defaults to an
	// in-memory store.
	Store Store

	// OnLogout is invoked once when the session becomes irrecoverable:
	// the refresh credential was revoked, expired, or rejected. The
	// callback runs on the renewal goroutine; it must not block.
	OnLogout func(err error)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client keeps a credential pair fresh against a Nexus Core server.
//
// A background timer renews the pair ahead of access expiry, so a
// long-lived process never presents an expired credential in the happy
// path. All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	httpc    *http.Client
	store    Store
	onLogout func(err error)
	logger   *slog.Logger

	mu        sync.Mutex
	creds     *Credentials
	timer     *time.Timer
	loggedOut bool
	closed    bool

	// refreshing collapses concurrent renewal attempts: the timer, the
	// transport's 401 retry, and explicit Refresh calls share one
	// round trip.
	refreshing  bool
	refreshDone chan struct{}
	refreshErr  error
}

// New creates a client for the given server base URL. If the store
// holds credentials from a previous run they are adopted and renewal is
// scheduled.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	c := &Client{
		baseURL:  baseURL,
		httpc:    opts.HTTPClient,
		store:    opts.Store,
		onLogout: opts.OnLogout,
		logger:   opts.Logger,
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if c.store == nil {
		c.store = &memoryStore{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	creds, err := c.store.Load()
	if err == nil {
		c.mu.Lock()
		c.adoptLocked(creds)
		c.mu.Unlock()
	} else if !errors.Is(err, ErrNoCredentials) {
		return nil, fmt.Errorf("loading stored credentials: %w", err)
	}

	return c, nil
}

// Login authenticates with an email or CPF plus password and starts the
// renewal cycle.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	creds, err := c.credentialCall(ctx, "/api/v1/auth/login", body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.loggedOut = false
	c.adoptLocked(creds)
	c.mu.Unlock()

	if err := c.store.Save(creds); err != nil {
		c.logger.Warn("persisting credentials failed", "error", err)
	}
	return nil
}

// AccessToken returns the current access credential, or empty when not
// logged in.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return ""
	}
	return c.creds.AccessToken
}

// Credentials returns a copy of the current pair, or nil.
func (c *Client) Credentials() *Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	dup := *c.creds
	return &dup
}

// Refresh exchanges the refresh credential for a fresh pair now.
// Concurrent callers share a single round trip. If the server rejects
// the refresh credential the session is ended and ErrLoggedOut is
// returned.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.loggedOut {
		c.mu.Unlock()
		return ErrLoggedOut
	}
	if c.creds == nil {
		c.mu.Unlock()
		return ErrLoggedOut
	}

	// Join an in-flight renewal instead of racing it.
	if c.refreshing {
		done := c.refreshDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		err := c.refreshErr
		c.mu.Unlock()
		return err
	}

	c.refreshing = true
	c.refreshDone = make(chan struct{})
	refreshToken := c.creds.RefreshToken
	c.mu.Unlock()

	err := c.doRefresh(ctx, refreshToken)

	c.mu.Lock()
	c.refreshing = false
	c.refreshErr = err
	close(c.refreshDone)
	c.mu.Unlock()

	return err
}

// Logout revokes the pair server-side and drops local state. Local
// state is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	creds := c.creds
	c.dropLocked()
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("clearing stored credentials failed", "error", err)
	}

	if creds == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("building logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("X-Refresh-Token", creds.RefreshToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout rejected: status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the renewal timer. It does not revoke credentials; use
// Logout for that.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// adoptLocked installs a pair and schedules its renewal. Caller holds mu.
func (c *Client) adoptLocked(creds *Credentials) {
	c.creds = creds
	c.scheduleLocked()
}

// dropLocked clears the pair and cancels renewal. Caller holds mu.
func (c *Client) dropLocked() {
	c.creds = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// scheduleLocked arms the renewal timer for the current pair. Renewal
// fires renewMargin before access expiry, or at half the remaining
// life for very short pairs. Caller holds mu.
func (c *Client) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.closed || c.creds == nil {
		return
	}

	remaining := time.Until(c.creds.AccessExpiresAt)
	delay := remaining - renewMargin
	if delay <= 0 {
		delay = remaining / 2
	}
	if delay < 0 {
		delay = 0
	}

	c.timer = time.AfterFunc(delay, c.renewNow)
}

// renewNow is the timer callback: refresh, and on transient failure
// retry shortly, leaving the current (still valid) pair in place.
func (c *Client) renewNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := c.Refresh(ctx)
	if err == nil || errors.Is(err, ErrLoggedOut) {
		return
	}

	c.logger.Warn("background credential renewal failed, retrying", "error", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.creds == nil {
		return
	}
	c.timer = time.AfterFunc(30*time.Second, c.renewNow)
}

// doRefresh performs the refresh round trip and installs the result.
func (c *Client) doRefresh(ctx context.Context, refreshToken string) error {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return fmt.Errorf("encoding refresh request: %w", err)
	}

	creds, err := c.credentialCall(ctx, "/api/v1/auth/refresh", body)
	if err != nil {
		var httpErr *httpError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusUnauthorized {
			// The refresh credential is dead. Nothing can recover the
			// session; surface the logout signal exactly once.
			c.endSession()
			return ErrLoggedOut
		}
		return err
	}

	c.mu.Lock()
	c.adoptLocked(creds)
	c.mu.Unlock()

	if err := c.store.Save(creds); err != nil {
		c.logger.Warn("persisting credentials failed", "error", err)
	}
	return nil
}

// endSession drops state and fires the logout callback once.
func (c *Client) endSession() {
	c.mu.Lock()
	alreadyOut := c.loggedOut
	c.loggedOut = true
	c.dropLocked()
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("clearing stored credentials failed", "error", err)
	}

	if !alreadyOut && c.onLogout != nil {
		c.onLogout(ErrLoggedOut)
	}
}

// httpError carries a non-2xx lifecycle response.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.status, e.body)
}

// credentialCall POSTs a lifecycle request and decodes the issued pair.
func (c *Client) credentialCall(ctx context.Context, path string, body []byte) (*Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best-effort error body
		return nil, &httpError{status: resp.StatusCode, body: string(bytes.TrimSpace(b))}
	}

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decoding credential response: %w", err)
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("server returned an incomplete credential pair")
	}
	return &creds, nil
}
