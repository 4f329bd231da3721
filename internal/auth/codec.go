package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer is stamped into every credential and required on verification.
	Issuer = "toit-nexus"

	// Audience is stamped into every credential and required on verification.
	Audience = "toit-users"

	// tokenKindAccess and tokenKindRefresh tag a credential with its role
	// in the pair so one cannot be presented as the other.
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

// Claims is the JWT payload carried by both credentials in a pair.
// Role and tenant are informational only: the effective principal is
// always re-derived from the store.
type Claims struct {
	jwt.RegisteredClaims
	Role     Role   `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	Kind     string `json:"kind"`
}

// Codec issues and verifies credential pairs. Access and refresh
// credentials are signed with independent secrets: a leak of one signing
// key never compromises the other credential class.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewCodec creates a credential codec. Secrets must be distinct and
// non-empty; TTLs fall back to 1h access / 7d refresh when zero.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("codec: signing secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("codec: access and refresh secrets must differ")
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL returns the configured access credential lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh credential lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue creates a matched access/refresh pair for the principal. Both
// credentials carry the same identity; they differ only in kind, expiry
// and signing key.
func (c *Codec) Issue(p *Principal) (*CredentialPair, error) {
	now := time.Now()
	accessExp := now.Add(c.accessTTL)
	refreshExp := now.Add(c.refreshTTL)

	access, err := c.sign(p, tokenKindAccess, now, accessExp, c.accessSecret)
	if err != nil {
		return nil, fmt.Errorf("issuing access credential: %w", err)
	}
	refresh, err := c.sign(p, tokenKindRefresh, now, refreshExp, c.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh credential: %w", err)
	}

	return &CredentialPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (c *Codec) sign(p *Principal, kind string, now, exp time.Time, secret []byte) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Role:     p.Role,
		TenantID: p.TenantID,
		Kind:     kind,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess validates an access credential. On expiry it returns the
// parsed claims alongside ErrCredentialExpired so callers can still read
// the identity and expiry of the stale credential.
func (c *Codec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(token, tokenKindAccess, c.accessSecret)
}

// VerifyRefresh validates a refresh credential. Expired or otherwise
// invalid refresh credentials are reported as ErrRefreshInvalid.
func (c *Codec) VerifyRefresh(token string) (*Claims, error) {
	claims, err := c.verify(token, tokenKindRefresh, c.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	}
	return claims, nil
}

// verify checks signature first, then issuer, audience, kind, and
// finally expiry. Claims validation is deferred so an expired credential
// still yields its claims: the refresh path needs the stale identity to
// key single-flight deduplication and to blacklist the superseded
// access credential for its remaining lifetime.
func (c *Codec) verify(token, kind string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrCredentialMalformed
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrCredentialMalformed)
	}
	if claims.Issuer != Issuer {
		return nil, fmt.Errorf("%w: wrong issuer", ErrCredentialMalformed)
	}
	if !hasAudience(claims.Audience, Audience) {
		return nil, fmt.Errorf("%w: wrong audience", ErrCredentialMalformed)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: wrong credential kind", ErrCredentialMalformed)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrCredentialMalformed)
	}
	if time.Now().After(claims.ExpiresAt.Time) {
		return claims, ErrCredentialExpired
	}
	return claims, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
