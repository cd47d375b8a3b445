package authcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationRegistry is the fast-lookup blacklist for revoked-but-unexpired
// access tokens. Entries carry the token's remaining lifetime as TTL, so
// they self-expire exactly when the token would have died anyway and the
// blacklist stays bounded. Tokens are stored hashed; the registry never
// holds a usable credential.
type RevocationRegistry struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRevocationRegistry creates a registry over the given Redis client.
func NewRevocationRegistry(client redis.UniversalClient, prefix string) *RevocationRegistry {
	if prefix == "" {
		prefix = "ac"
	}
	return &RevocationRegistry{redis: client, prefix: prefix}
}

func (r *RevocationRegistry) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + ":bl:" + hex.EncodeToString(sum[:])
}

// BlacklistAccessToken records a revoked access token for its remaining
// lifetime. Tokens already past expiry are not recorded.
func (r *RevocationRegistry) BlacklistAccessToken(ctx context.Context, token string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	if err := r.redis.Set(ctx, r.key(token), "1", remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the access token was revoked before expiry.
func (r *RevocationRegistry) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n > 0, nil
}
