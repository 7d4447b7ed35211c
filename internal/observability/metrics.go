package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and dispatcher flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	messagesSentTotal     *prometheus.CounterVec
	messagesFailedTotal   *prometheus.CounterVec
	messageSendDuration   *prometheus.HistogramVec
	activeCampaigns       prometheus.Gauge
	campaignsCompleted    *prometheus.CounterVec
	gatewayBreakerState   prometheus.Gauge
	testMessagesThrottled prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "campaign_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "campaign_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		messagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "campaign_engine",
				Name:      "messages_sent_total",
				Help:      "Total number of messages accepted by the gateway.",
			},
			[]string{"source"},
		),
		messagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "campaign_engine",
				Name:      "messages_failed_total",
				Help:      "Total number of messages the gateway did not accept, by reason.",
			},
			[]string{"source", "reason"},
		),
		messageSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "campaign_engine",
				Name:      "message_send_duration_seconds",
				Help:      "Gateway send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"source"},
		),
		activeCampaigns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "campaign_engine",
				Name:      "active_campaigns",
				Help:      "Number of campaigns with a running dispatcher worker in this process.",
			},
		),
		campaignsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "campaign_engine",
				Name:      "campaigns_completed_total",
				Help:      "Total number of campaigns that reached a terminal status.",
			},
			[]string{"status"},
		),
		gatewayBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "campaign_engine",
				Name:      "gateway_breaker_state",
				Help:      "Gateway circuit breaker state: 0 closed, 1 half-open, 2 open.",
			},
		),
		testMessagesThrottled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "campaign_engine",
				Name:      "test_messages_throttled_total",
				Help:      "Total number of ad-hoc test messages rejected by the rate limiter.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.messagesSentTotal,
		m.messagesFailedTotal,
		m.messageSendDuration,
		m.activeCampaigns,
		m.campaignsCompleted,
		m.gatewayBreakerState,
		m.testMessagesThrottled,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncMessageSent(source string) {
	if m == nil {
		return
	}
	m.messagesSentTotal.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *Metrics) IncMessageFailed(source string, reason string) {
	if m == nil {
		return
	}
	m.messagesFailedTotal.WithLabelValues(normalizeLabel(source), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveMessageSendDuration(source string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.messageSendDuration.WithLabelValues(normalizeLabel(source)).Observe(seconds)
}

func (m *Metrics) IncActiveCampaigns() {
	if m == nil {
		return
	}
	m.activeCampaigns.Inc()
}

func (m *Metrics) DecActiveCampaigns() {
	if m == nil {
		return
	}
	m.activeCampaigns.Dec()
}

func (m *Metrics) IncCampaignCompleted(status string) {
	if m == nil {
		return
	}
	m.campaignsCompleted.WithLabelValues(normalizeLabel(status)).Inc()
}

// SetGatewayBreakerState records 0 closed, 1 half-open, 2 open.
func (m *Metrics) SetGatewayBreakerState(state int) {
	if m == nil {
		return
	}
	m.gatewayBreakerState.Set(float64(state))
}

func (m *Metrics) IncTestMessageThrottled() {
	if m == nil {
		return
	}
	m.testMessagesThrottled.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
