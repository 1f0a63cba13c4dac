package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "shovel:lock:"

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
  return 0
end
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// RedisLocker implements Locker with SET NX PX and token-checked Lua
// scripts for refresh and release.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
}

// Make sure we conform to Locker interface
var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (r *RedisLocker) key(key string) string {
	return r.prefix + strings.TrimSpace(key)
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, errors.New("lease ttl must be positive")
	}
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, r.key(key), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (r *RedisLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, r.rdb, []string{r.key(key)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	// PEXPIRE returns 1 if timeout was set, 0 otherwise.
	if n != 1 {
		return ErrNotHeld
	}
	return nil
}

func (r *RedisLocker) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, r.rdb, []string{r.key(key)}, token).Int64()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNotHeld
	}
	return nil
}
