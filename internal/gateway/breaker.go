package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/observability"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig tunes outage detection.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// BreakerGateway stops calling the provider after consecutive systemic
// failures. While open, Send fails fast with ReasonUnreachable.
// Per-recipient rejections never trip it.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker[*Result]
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewBreakerGateway(next Gateway, cfg BreakerConfig, logger *zap.Logger, metrics *observability.Metrics) *BreakerGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	g := &BreakerGateway{
		next:    next,
		logger:  logger,
		metrics: metrics,
	}

	g.breaker = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "whatsgate",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return !IsSystemic(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("gateway breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			g.metrics.SetGatewayBreakerState(stateValue(to))
		},
	})

	return g
}

func (g *BreakerGateway) Send(ctx context.Context, msg Message) (*Result, error) {
	result, err := g.breaker.Execute(func() (*Result, error) {
		return g.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &GatewayError{Reason: ReasonUnreachable, Message: "gateway circuit open", Cause: err}
	}
	return result, err
}

// State exposes the breaker state for readiness reporting.
func (g *BreakerGateway) State() string {
	return g.breaker.State().String()
}

func stateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
