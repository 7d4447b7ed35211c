package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatcherCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncMessageSent("Campaign")
	metrics.IncMessageFailed("campaign", "invalid_recipient")
	metrics.ObserveMessageSendDuration("campaign", 120*time.Millisecond)
	metrics.IncActiveCampaigns()
	metrics.IncActiveCampaigns()
	metrics.DecActiveCampaigns()
	metrics.IncCampaignCompleted("finished")
	metrics.SetGatewayBreakerState(2)
	metrics.IncTestMessageThrottled()

	if got := testutil.ToFloat64(metrics.messagesSentTotal.WithLabelValues("campaign")); got != 1 {
		t.Fatalf("messages_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesFailedTotal.WithLabelValues("campaign", "invalid_recipient")); got != 1 {
		t.Fatalf("messages_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.activeCampaigns); got != 1 {
		t.Fatalf("active_campaigns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.campaignsCompleted.WithLabelValues("finished")); got != 1 {
		t.Fatalf("campaigns_completed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.gatewayBreakerState); got != 2 {
		t.Fatalf("gateway_breaker_state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.testMessagesThrottled); got != 1 {
		t.Fatalf("test_messages_throttled_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncMessageSent("campaign")
	metrics.IncMessageFailed("campaign", "timeout")
	metrics.IncActiveCampaigns()
	metrics.SetGatewayBreakerState(1)
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
