package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cbelmas/authcore/internal"
)

var errChallengeMismatch = errors.New("challenge mismatch")

// consumeChallengeLua compares the stored challenge code against the
// provided one and deletes it only on a match, so GET-compare-DEL cannot
// race with a concurrent verification of the same code.
// KEYS[1] = challenge key, ARGV[1] = provided code.
var consumeChallengeLua = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// challengeStore keeps the ephemeral single-use 2FA email codes. These are
// disjoint from the durable TOTP secret: short TTL, one key per user,
// deleted on successful verification.
type challengeStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	length int
}

func newChallengeStore(client redis.UniversalClient, prefix string, cfg TwoFactorConfig) *challengeStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &challengeStore{
		redis:  client,
		prefix: prefix,
		ttl:    cfg.EmailCodeTTL,
		length: cfg.EmailCodeLength,
	}
}

func (s *challengeStore) key(userID int64) string {
	return s.prefix + ":2fa:email:" + strconv.FormatInt(userID, 10)
}

// Issue generates and stores a fresh challenge code, replacing any pending
// one for the user.
func (s *challengeStore) Issue(ctx context.Context, userID int64) (string, error) {
	code, err := internal.NewCode(s.length)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(userID), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return code, nil
}

// Consume verifies and atomically deletes the pending challenge. A missing,
// expired, or mismatched code fails with errChallengeMismatch; the caller
// maps every failure to the uniform two-factor error.
func (s *challengeStore) Consume(ctx context.Context, userID int64, code string) error {
	normalized := internal.NormalizeCode(code)
	if normalized == "" {
		return errChallengeMismatch
	}

	ok, err := consumeChallengeLua.Run(ctx, s.redis, []string{s.key(userID)}, normalized).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if ok != 1 {
		return errChallengeMismatch
	}
	return nil
}
