package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
)

// Token custody parameters, fixed by the remote API's issuance policy.
const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
	LockTimeout     = 180 * time.Second
)

// ErrLockWaitExpired is returned by Locker implementations when the bounded
// wait elapses before the lock is held.
var ErrLockWaitExpired = errors.New("token: lock wait expired")

// Cache is the shared, site-scoped key-value store token pairs live in.
// Get returns "" for absent keys.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker provides named mutual exclusion across server processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (release func(), err error)
}

// Refresher mints a new token pair from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Pair, error)
}

// Store holds one integration's OAuth token pair, scoped per site and
// integration id, with expiry and mutual-exclusion guarantees.
type Store struct {
	cache    Cache
	locks    Locker
	endpoint Refresher
	logger   *zap.Logger
}

// NewStore wires the token store.
func NewStore(cache Cache, locks Locker, endpoint Refresher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.L()
	}
	return &Store{cache: cache, locks: locks, endpoint: endpoint, logger: logger}
}

// AccessToken returns the cached access token, refreshing first when the
// cache has none. Bounded by the refresh lock timeout.
func (s *Store) AccessToken(ctx context.Context, integ domain.Integration) (string, error) {
	current, err := s.cache.Get(ctx, accessKey(integ))
	if err != nil {
		return "", err
	}
	if current != "" {
		return current, nil
	}
	return s.Refresh(ctx, integ, "")
}

// RefreshToken returns the cached refresh token. An absent refresh token is
// a fatal configuration error: the integration was never authorized, or its
// 30-day window lapsed.
func (s *Store) RefreshToken(ctx context.Context, integ domain.Integration) (string, error) {
	current, err := s.cache.Get(ctx, refreshKey(integ))
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", domainbadgr.ErrMissingRefreshToken
	}
	return current, nil
}

// Refresh serializes token refresh per integration behind a named lock.
// After acquiring, the cached access token is re-read: if another holder
// already refreshed it (cached value differs from oldAccess and is
// non-empty), that value is returned without a remote call, collapsing
// concurrent refreshes into one network round-trip.
func (s *Store) Refresh(ctx context.Context, integ domain.Integration, oldAccess string) (string, error) {
	release, err := s.locks.Acquire(ctx, lockKey(integ), LockTimeout, LockTimeout)
	if err != nil {
		if errors.Is(err, ErrLockWaitExpired) {
			return "", domainbadgr.ErrLockTimeout
		}
		return "", fmt.Errorf("acquire refresh lock: %w", err)
	}
	defer release()

	current, err := s.cache.Get(ctx, accessKey(integ))
	if err != nil {
		return "", err
	}
	if current != "" && current != oldAccess {
		return current, nil
	}

	refreshToken, err := s.RefreshToken(ctx, integ)
	if err != nil {
		return "", err
	}

	pair, err := s.endpoint.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	if err := s.storeLocked(ctx, integ, pair.AccessToken, pair.RefreshToken); err != nil {
		return "", err
	}

	s.logger.Debug("access token refreshed",
		zap.String("site", integ.SiteName),
		zap.Int64("integration_id", integ.ID))
	return pair.AccessToken, nil
}

// Store unconditionally overwrites the cached pair with fresh expirations.
// Callers either hold the refresh lock or are the single writer right after
// the OAuth handshake.
func (s *Store) Store(ctx context.Context, integ domain.Integration, access, refresh string) error {
	return s.storeLocked(ctx, integ, access, refresh)
}

// Clear drops the cached pair, used when the integration is disconnected.
func (s *Store) Clear(ctx context.Context, integ domain.Integration) error {
	if err := s.cache.Delete(ctx, accessKey(integ)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, refreshKey(integ))
}

func (s *Store) storeLocked(ctx context.Context, integ domain.Integration, access, refresh string) error {
	if err := s.cache.SetEx(ctx, accessKey(integ), access, AccessTokenTTL); err != nil {
		return err
	}
	return s.cache.SetEx(ctx, refreshKey(integ), refresh, RefreshTokenTTL)
}

func accessKey(integ domain.Integration) string {
	return fmt.Sprintf("badgr:token:%s:%d:access", integ.SiteName, integ.ID)
}

func refreshKey(integ domain.Integration) string {
	return fmt.Sprintf("badgr:token:%s:%d:refresh", integ.SiteName, integ.ID)
}

func lockKey(integ domain.Integration) string {
	return fmt.Sprintf("badgr:lock:%s:%d", integ.SiteName, integ.ID)
}
