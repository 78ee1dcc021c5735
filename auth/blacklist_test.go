package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testBlacklist(t *testing.T) (*Blacklist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBlacklist(client), mr
}

func TestBlacklistRevoke(t *testing.T) {
	b, _ := testBlacklist(t)
	ctx := context.Background()

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, b.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))

	revoked, err = b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestBlacklistEntryExpiresWithToken(t *testing.T) {
	b, mr := testBlacklist(t)
	ctx := context.Background()

	require.NoError(t, b.Revoke(ctx, "jti-2", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	revoked, err := b.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestBlacklistSkipsAlreadyExpiredTokens(t *testing.T) {
	b, mr := testBlacklist(t)

	require.NoError(t, b.Revoke(context.Background(), "jti-3", time.Now().Add(-time.Minute)))
	require.False(t, mr.Exists(blacklistKeyPrefix+"jti-3"))
}
