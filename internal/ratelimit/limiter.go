// Package ratelimit throttles ad-hoc sends that bypass campaign pacing.
package ratelimit

import "context"

// ScopeTestMessage is the limiter scope of POST /test-message.
const ScopeTestMessage = "test-message"

// RateLimiter controls message throughput per scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
}
