package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"taskify/backend/internal/cache"

	"github.com/gofrs/uuid"
)

const authCachePrefix = "user_auth:"

type authEntry struct {
	UserID uuid.UUID `json:"user_id"`
	Digest string    `json:"digest"`
}

// AuthCache remembers recent successful logins so a repeated login can skip
// bcrypt. An entry only vouches for the exact password that was verified,
// against the exact stored hash it was verified with: the digest is an HMAC
// over email, stored hash and password. Cache failures degrade to a miss.
type AuthCache struct {
	store  cache.Cache
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
}

func NewAuthCache(store cache.Cache, secret []byte, ttl time.Duration, logger *slog.Logger) *AuthCache {
	return &AuthCache{store: store, secret: secret, ttl: ttl, logger: logger}
}

func authCacheKey(email string) string {
	return authCachePrefix + email
}

func (a *AuthCache) digest(email, storedHash, password string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(email))
	mac.Write([]byte{0})
	mac.Write([]byte(storedHash))
	mac.Write([]byte{0})
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// Lookup returns the cached user id for email, if any. The caller must still
// confirm the entry with Matches against the user's current hash.
func (a *AuthCache) Lookup(ctx context.Context, email string) (authEntry, bool) {
	var entry authEntry
	if err := a.store.Get(ctx, authCacheKey(email), &entry); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			a.logger.Warn("auth cache lookup failed", "error", err)
		}
		return authEntry{}, false
	}
	return entry, true
}

func (a *AuthCache) Matches(entry authEntry, email, storedHash, password string) bool {
	want := a.digest(email, storedHash, password)
	return hmac.Equal([]byte(entry.Digest), []byte(want))
}

func (a *AuthCache) Remember(ctx context.Context, email string, userID uuid.UUID, storedHash, password string) {
	entry := authEntry{UserID: userID, Digest: a.digest(email, storedHash, password)}
	if err := a.store.Set(ctx, authCacheKey(email), entry, a.ttl); err != nil {
		a.logger.Warn("auth cache store failed", "error", err)
	}
}

func (a *AuthCache) Forget(ctx context.Context, email string) {
	if err := a.store.Delete(ctx, authCacheKey(email)); err != nil {
		a.logger.Warn("auth cache invalidation failed", "email", email, "error", err)
	}
}
