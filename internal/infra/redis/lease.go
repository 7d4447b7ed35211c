package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 60 * time.Second

var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease keeps at most one dispatcher worker per campaign across replicas.
// A lease is owned by the process that created it; an expired lease can be
// taken over by any replica.
type Lease struct {
	client *goredis.Client
	owner  string
	ttl    time.Duration
}

func NewLease(client *goredis.Client, owner string, ttl time.Duration) (*Lease, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if owner == "" {
		return nil, fmt.Errorf("lease owner is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &Lease{client: client, owner: owner, ttl: ttl}, nil
}

func leaseKey(campaignID string) string {
	return "campaign:lease:" + campaignID
}

func (l *Lease) Acquire(ctx context.Context, campaignID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaseKey(campaignID), l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}

	// Held by this instance already, e.g. a Start racing the recovery scan.
	return l.Renew(ctx, campaignID)
}

// Renew extends the lease and reports false when it is held by another owner.
func (l *Lease) Renew(ctx context.Context, campaignID string) (bool, error) {
	result, err := renewScript.Run(ctx, l.client, []string{leaseKey(campaignID)}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", err)
	}
	return result == 1, nil
}

func (l *Lease) Release(ctx context.Context, campaignID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{leaseKey(campaignID)}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
