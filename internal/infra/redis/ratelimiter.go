package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "campaign-engine:ratelimit"
	rateWindow         = time.Second
)

// Counts the call and sets the window expiry on the first one.
var rateWindowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter admits at most limit calls per scope in each one-second
// window, counted across every replica.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int
	now    func() time.Time
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = 1
	}
	return &RedisRateLimiter{client: client, limit: limitPerSec, now: time.Now}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return false, fmt.Errorf("scope is required")
	}

	window := r.now().UTC().Truncate(rateWindow).Unix()
	key := fmt.Sprintf("%s:%s:%d", rateLimitKeyPrefix, scope, window)

	admitted, err := rateWindowScript.Run(ctx, r.client, []string{key}, r.limit, rateWindow.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	return admitted == 1, nil
}
