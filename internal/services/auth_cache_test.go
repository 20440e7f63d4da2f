package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"taskify/backend/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCache_RememberLookupForget(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	ac := NewAuthCache(store, []byte("k"), 5*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	id := uuid.Must(uuid.NewV4())
	ac.Remember(ctx, "a@x.com", id, "$2a$hash", "Secret123")
	assert.True(t, mr.Exists("user_auth:a@x.com"))
	assert.Equal(t, 5*time.Minute, mr.TTL("user_auth:a@x.com"))

	entry, ok := ac.Lookup(ctx, "a@x.com")
	require.True(t, ok)
	assert.Equal(t, id, entry.UserID)
	assert.NotContains(t, entry.Digest, "Secret123")

	assert.True(t, ac.Matches(entry, "a@x.com", "$2a$hash", "Secret123"))
	assert.False(t, ac.Matches(entry, "a@x.com", "$2a$hash", "Secret124"))
	assert.False(t, ac.Matches(entry, "a@x.com", "$2a$other", "Secret123"))
	assert.False(t, ac.Matches(entry, "b@x.com", "$2a$hash", "Secret123"))

	other := NewAuthCache(store, []byte("other-key"), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.False(t, other.Matches(entry, "a@x.com", "$2a$hash", "Secret123"))

	ac.Forget(ctx, "a@x.com")
	_, ok = ac.Lookup(ctx, "a@x.com")
	assert.False(t, ok)
}

func TestAuthCache_BackendFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	ac := NewAuthCache(store, []byte("k"), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mr.SetError("ERR redis unavailable")
	ac.Remember(ctx, "a@x.com", uuid.Must(uuid.NewV4()), "h", "p")
	_, ok := ac.Lookup(ctx, "a@x.com")
	assert.False(t, ok)
	ac.Forget(ctx, "a@x.com")
}
