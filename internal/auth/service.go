package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/toitnexus/nexus-core/internal/audit"
)

// Revocation reasons recorded alongside blocked credentials.
const (
	ReasonLogout     = "logout"
	ReasonLogoutAll  = "logout_all"
	ReasonSuperseded = "superseded"
)

// Service orchestrates the credential lifecycle: login, per-request
// authentication, refresh, and the two logout flavours. It owns the
// invariant that a credential pair is never released to a client before
// its session is on file.
type Service struct {
	codec    *Codec
	users    UserRepository
	tenants  TenantRepository
	tracker  *Tracker
	registry *Registry
	logger   *slog.Logger
	audit    audit.Recorder

	// refreshes collapses concurrent refresh attempts with the same
	// refresh credential into a single issuance.
	refreshes singleflight.Group
}

// NewService creates the credential lifecycle service.
func NewService(codec *Codec, users UserRepository, tenants TenantRepository, tracker *Tracker, registry *Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		codec:    codec,
		users:    users,
		tenants:  tenants,
		tracker:  tracker,
		registry: registry,
		logger:   logger,
	}
}

// SetAudit attaches an activity recorder. Recording is best-effort:
// a recorder failure is logged, never surfaced to the caller.
func (s *Service) SetAudit(rec audit.Recorder) {
	s.audit = rec
}

// recordActivity appends to the activity trail when a recorder is attached.
func (s *Service) recordActivity(ctx context.Context, entry *audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("recording activity failed", "action", entry.Action, "error", err)
	}
}

// Login authenticates by email or CPF plus password and issues a
// credential pair. The session is registered before the pair is
// returned; a registration failure aborts the login.
func (s *Service) Login(ctx context.Context, identifier, password string, meta SessionMeta) (*CredentialPair, *Principal, error) {
	user, err := s.lookupUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			// Burn comparable time so a missing account is not
			// distinguishable from a wrong password.
			_, _ = VerifyPassword(password, dummyHash) //nolint:errcheck // timing equalisation only
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		s.recordActivity(ctx, &audit.Entry{
			TenantID:  user.TenantID,
			UserID:    user.ID,
			Action:    audit.ActionLoginFailed,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}

	// Transparent hash upgrade when the stored parameters lag behind
	// the current ones. The plaintext is only available here.
	if NeedsRehash(user.PasswordHash) {
		if rehashed, err := HashPassword(password); err == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, rehashed); err != nil {
				s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
			}
		}
	}

	if user.TenantID != "" {
		tenant, err := s.tenants.GetByID(ctx, user.TenantID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading tenant: %w", err)
		}
		if tenant.Status != TenantStatusActive {
			return nil, nil, ErrTenantInactive
		}
	}

	principal := principalFromUser(user)
	pair, err := s.issue(ctx, principal, meta)
	if err != nil {
		return nil, nil, err
	}

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		s.logger.Warn("recording login failed", "user_id", user.ID, "error", err)
	}

	s.recordActivity(ctx, &audit.Entry{
		TenantID:  user.TenantID,
		UserID:    user.ID,
		Action:    audit.ActionLogin,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	s.logger.Info("login", "user_id", user.ID, "tenant_id", user.TenantID, "ip", meta.IPAddress)
	return pair, principal, nil
}

// Authenticate verifies an access credential and re-derives the
// effective principal from the store. The checks run in a fixed order:
// presence, revocation, signature and claims, then principal lookup.
// Revocation comes first so a credential that is both revoked and
// expired reports revoked, not a refresh hint.
func (s *Service) Authenticate(ctx context.Context, rawAccess string) (*Principal, error) {
	if rawAccess == "" {
		return nil, ErrCredentialMissing
	}

	if s.registry.IsBlocked(ctx, rawAccess) {
		return nil, ErrCredentialRevoked
	}

	claims, err := s.codec.VerifyAccess(rawAccess)
	if err != nil {
		return nil, err
	}

	return s.users.LoadPrincipal(ctx, claims.Subject)
}

// Refresh exchanges a valid refresh credential for a fresh pair.
// Concurrent calls presenting the same refresh credential share one
// issuance: only the first caller does the work, the rest receive the
// same pair. The superseded pair is revoked for its remaining lifetime
// so a replayed old credential fails even inside clock skew.
func (s *Service) Refresh(ctx context.Context, rawRefresh string, meta SessionMeta) (*CredentialPair, *Principal, error) {
	if rawRefresh == "" {
		return nil, nil, ErrRefreshInvalid
	}

	key := HashToken(rawRefresh)
	v, err, _ := s.refreshes.Do(key, func() (any, error) {
		return s.refreshOnce(ctx, rawRefresh, key, meta)
	})
	if err != nil {
		return nil, nil, err
	}

	res := v.(*refreshResult)
	return res.pair, res.principal, nil
}

type refreshResult struct {
	pair      *CredentialPair
	principal *Principal
}

func (s *Service) refreshOnce(ctx context.Context, rawRefresh, refreshHash string, meta SessionMeta) (*refreshResult, error) {
	claims, err := s.codec.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil, err
	}

	if s.registry.IsBlockedHash(ctx, refreshHash) {
		return nil, ErrCredentialRevoked
	}

	principal, err := s.users.LoadPrincipal(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	pair, err := s.issue(ctx, principal, meta)
	if err != nil {
		return nil, err
	}

	// Retire the superseded pair. The used refresh credential is
	// blocked outright; the matching access credential is found via
	// the session record and blocked for its remaining lifetime.
	if err := s.registry.BlockHash(ctx, refreshHash, principal.UserID, claims.ExpiresAt.Time, ReasonSuperseded); err != nil {
		s.logger.Error("blocking superseded refresh credential failed", "user_id", principal.UserID, "error", err)
	}
	old, err := s.tracker.sessions.GetByRefreshHash(ctx, refreshHash)
	if err == nil {
		if err := s.registry.BlockHash(ctx, old.TokenHash, principal.UserID, old.ExpiresAt, ReasonSuperseded); err != nil {
			s.logger.Error("blocking superseded access credential failed", "user_id", principal.UserID, "error", err)
		}
		if err := s.tracker.sessions.Delete(ctx, old.TokenHash); err != nil {
			s.logger.Error("removing superseded session failed", "user_id", principal.UserID, "error", err)
		}
	} else if !errors.Is(err, ErrSessionNotFound) {
		s.logger.Error("looking up superseded session failed", "user_id", principal.UserID, "error", err)
	}

	s.logger.Info("credentials refreshed", "user_id", principal.UserID)
	return &refreshResult{pair: pair, principal: principal}, nil
}

// Logout revokes the presented pair and drops its session. An expired
// or unparseable credential is simply skipped: logout is idempotent and
// never fails for credential reasons.
func (s *Service) Logout(ctx context.Context, rawAccess, rawRefresh string) error {
	if rawAccess != "" {
		claims, err := s.codec.VerifyAccess(rawAccess)
		if claims != nil && (err == nil || errors.Is(err, ErrCredentialExpired)) {
			if err := s.registry.Block(ctx, rawAccess, claims.Subject, claims.ExpiresAt.Time, ReasonLogout); err != nil {
				return fmt.Errorf("revoking access credential: %w", err)
			}
			s.recordActivity(ctx, &audit.Entry{
				TenantID: claims.TenantID,
				UserID:   claims.Subject,
				Action:   audit.ActionLogout,
			})
		}
		if err := s.tracker.Remove(ctx, rawAccess); err != nil {
			return fmt.Errorf("removing session: %w", err)
		}
	}

	if rawRefresh != "" {
		claims, err := s.codec.VerifyRefresh(rawRefresh)
		if err == nil {
			if err := s.registry.Block(ctx, rawRefresh, claims.Subject, claims.ExpiresAt.Time, ReasonLogout); err != nil {
				return fmt.Errorf("revoking refresh credential: %w", err)
			}
		}
	}

	return nil
}

// LogoutAll revokes every live session of a principal. Returns the
// number of sessions revoked.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := s.tracker.RevokeAll(ctx, userID, ReasonLogoutAll)
	if err != nil {
		return n, err
	}

	entry := &audit.Entry{
		UserID:  userID,
		Action:  audit.ActionLogoutAll,
		Details: map[string]any{"sessions_revoked": n},
	}
	if user, userErr := s.users.GetByID(ctx, userID); userErr == nil {
		entry.TenantID = user.TenantID
	}
	s.recordActivity(ctx, entry)

	s.logger.Info("all sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// Sessions returns the live sessions of a principal.
func (s *Service) Sessions(ctx context.Context, userID string) ([]Session, error) {
	return s.tracker.ActiveSessions(ctx, userID)
}

// GetUser returns the full account record for a principal.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

// AccessTTL exposes the codec's access credential lifetime, used by the
// HTTP layer for cookie Max-Age.
func (s *Service) AccessTTL() time.Duration { return s.codec.AccessTTL() }

// RefreshTTL exposes the codec's refresh credential lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.codec.RefreshTTL() }

// issue creates a pair and registers its session, in that order. The
// pair only reaches the caller once the session row exists.
func (s *Service) issue(ctx context.Context, principal *Principal, meta SessionMeta) (*CredentialPair, error) {
	pair, err := s.codec.Issue(principal)
	if err != nil {
		return nil, err
	}
	if err := s.tracker.Register(ctx, principal.UserID, pair, meta); err != nil {
		return nil, err
	}
	return pair, nil
}

// lookupUser resolves a login identifier: anything with an @ is an
// email, anything else is treated as a CPF.
func (s *Service) lookupUser(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrPrincipalNotFound
	}
	if strings.Contains(identifier, "@") {
		return s.users.GetByEmail(ctx, identifier)
	}
	return s.users.GetByCPF(ctx, identifier)
}

// principalFromUser builds the effective principal from a loaded account.
func principalFromUser(u *User) *Principal {
	return &Principal{
		UserID:       u.ID,
		TenantID:     u.TenantID,
		Role:         u.Role,
		Permissions:  u.Permissions,
		IsSuperAdmin: u.Role == RoleSuperAdmin,
	}
}

// dummyHash is a throwaway Argon2id hash used to equalise login timing
// when the identifier does not resolve to an account.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
