package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/tokens"
)

const (
	blacklistPrefix = "blacklist:"
	// markerTTL bounds how long a revocation found in the store is cached.
	markerTTL = 10 * time.Minute
)

type BlacklistStore interface {
	Add(ctx context.Context, entry *models.BlacklistedToken) error
	Exists(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenBlacklist is the refresh-token revocation list. The store is the
// source of truth; the cache only ever holds positive "revoked" markers, so a
// lost or stale cache can never un-revoke a token.
type TokenBlacklist struct {
	store  BlacklistStore
	cache  cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

func NewTokenBlacklist(store BlacklistStore, c cache.Cache, logger *slog.Logger) *TokenBlacklist {
	return &TokenBlacklist{store: store, cache: c, logger: logger, now: time.Now}
}

func blacklistKey(jti string) string {
	return blacklistPrefix + jti
}

// Revoke blacklists the token named by claims. Revoking an already revoked
// token returns ErrTokenRevoked.
func (b *TokenBlacklist) Revoke(ctx context.Context, claims *tokens.Claims) error {
	userID, err := claims.UserID()
	if err != nil {
		return ErrTokenInvalid
	}

	expiresAt := claims.ExpiresAtTime()
	err = b.store.Add(ctx, &models.BlacklistedToken{
		JTI:       claims.ID,
		UserID:    userID,
		ExpiresAt: expiresAt,
	})
	if errors.Is(err, repositories.ErrAlreadyRevoked) {
		return ErrTokenRevoked
	}
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	if ttl := expiresAt.Sub(b.now()); ttl > 0 {
		b.mark(ctx, claims.ID, ttl)
	}
	return nil
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	cached, err := b.cache.Exists(ctx, blacklistKey(jti))
	if err != nil {
		b.logger.Warn("blacklist cache lookup failed", "error", err)
	}
	if cached {
		return true, nil
	}

	revoked, err := b.store.Exists(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if revoked {
		b.mark(ctx, jti, markerTTL)
	}
	return revoked, nil
}

func (b *TokenBlacklist) mark(ctx context.Context, jti string, ttl time.Duration) {
	if err := b.cache.Set(ctx, blacklistKey(jti), true, ttl); err != nil {
		b.logger.Warn("blacklist cache store failed", "error", err)
	}
}

// PurgeExpired drops entries for tokens that would be rejected as expired anyway.
func (b *TokenBlacklist) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := b.store.DeleteExpired(ctx, b.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist: %w", err)
	}
	return n, nil
}
