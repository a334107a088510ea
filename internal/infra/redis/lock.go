package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quintaserp/webhook-service/internal/service"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLockTTL = 25 * time.Second

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ service.TickLock = (*TickLock)(nil)

// TickLock serializes dispatcher ticks across service instances. The lock is
// token-fenced: only the holder that acquired it can release it, and the TTL
// keeps a crashed holder from blocking ticks forever.
type TickLock struct {
	client   *goredis.Client
	key      string
	ttl      time.Duration
	newToken func() string
}

func NewTickLock(client *goredis.Client, key string, ttl time.Duration) (*TickLock, error) {
	return newTickLock(client, key, ttl, uuid.NewString)
}

func newTickLock(client *goredis.Client, key string, ttl time.Duration, tokenFn func() string) (*TickLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if tokenFn == nil {
		tokenFn = uuid.NewString
	}

	return &TickLock{
		client:   client,
		key:      key,
		ttl:      ttl,
		newToken: tokenFn,
	}, nil
}

// TryAcquire attempts to take the lock without blocking. When acquired it
// returns a release func bound to this holder's token.
func (l *TickLock) TryAcquire(ctx context.Context) (service.ReleaseFunc, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, fmt.Errorf("tick lock is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token := l.newToken()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire tick lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("failed to release tick lock: %w", err)
		}
		return nil
	}

	return release, true, nil
}
