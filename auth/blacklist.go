package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "token_blacklist:"

// Blacklist records revoked access token ids in redis. Entries expire
// together with the token they revoke, so the set stays small on its own.
type Blacklist struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewBlacklist(client redis.Cmdable) *Blacklist {
	return &Blacklist{client: client, now: time.Now}
}

// Revoke marks a jti revoked until the token's expiry. An already expired
// token needs no entry.
func (b *Blacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if !expiresAt.After(b.now()) {
		return nil
	}
	err := b.client.SetArgs(ctx, blacklistKeyPrefix+jti, "1", redis.SetArgs{ExpireAt: expiresAt}).Err()
	if err != nil {
		return fmt.Errorf("blacklisting token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a jti has been blacklisted.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("checking token blacklist: %w", err)
	}
	return n > 0, nil
}
