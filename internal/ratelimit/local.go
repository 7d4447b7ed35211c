package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

var _ RateLimiter = (*LocalLimiter)(nil)

// LocalLimiter is the in-process fallback used when Redis is not configured.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

func NewLocalLimiter(limitPerSec int) *LocalLimiter {
	if limitPerSec <= 0 {
		limitPerSec = 1
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(limitPerSec),
		burst:    limitPerSec,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, scope string) (bool, error) {
	limiter, err := l.limiter(scope)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalLimiter) limiter(scope string) (*rate.Limiter, error) {
	normalized := strings.ToLower(strings.TrimSpace(scope))
	if normalized == "" {
		return nil, fmt.Errorf("scope is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[normalized]
	if !ok {
		limiter = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[normalized] = limiter
	}
	return limiter, nil
}
