package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/gateway"
	"github.com/kursadbilgin/campaign-engine/internal/service"
)

type stubMessagingService struct {
	sendTestFn func(ctx context.Context, in service.TestMessageInput) (*gateway.Result, error)
}

func (s *stubMessagingService) SendTest(ctx context.Context, in service.TestMessageInput) (*gateway.Result, error) {
	return s.sendTestFn(ctx, in)
}

type stubSettingsService struct {
	getFn    func(ctx context.Context) (*domain.GatewaySettings, error)
	updateFn func(ctx context.Context, in domain.GatewaySettings) (*domain.GatewaySettings, error)
	testFn   func(ctx context.Context, in service.ConnectionTestInput) (bool, error)
}

func (s *stubSettingsService) GatewaySettings(ctx context.Context) (*domain.GatewaySettings, error) {
	return s.getFn(ctx)
}

func (s *stubSettingsService) Update(ctx context.Context, in domain.GatewaySettings) (*domain.GatewaySettings, error) {
	return s.updateFn(ctx, in)
}

func (s *stubSettingsService) TestConnection(ctx context.Context, in service.ConnectionTestInput) (bool, error) {
	return s.testFn(ctx, in)
}

func TestMessagingIntegration_SendTestMessage(t *testing.T) {
	t.Parallel()

	svc := &stubMessagingService{
		sendTestFn: func(ctx context.Context, in service.TestMessageInput) (*gateway.Result, error) {
			switch in.PhoneNumber {
			case "79990000001":
				if in.Message != "ping" {
					t.Errorf("message = %q, want ping", in.Message)
				}
				return &gateway.Result{StatusCode: 200, MessageID: "m1"}, nil
			case "79990000002":
				if in.Media == nil || in.Media.Filename != "doc.pdf" {
					t.Errorf("media = %+v", in.Media)
				}
				return &gateway.Result{StatusCode: 200, MessageID: "m2"}, nil
			case "79990000003":
				return nil, domain.ErrRateLimited
			case "79990000004":
				return nil, domain.ErrUnreachableGateway
			case "79990000005":
				return nil, &gateway.GatewayError{Reason: gateway.ReasonRejected, StatusCode: 400}
			default:
				return nil, domain.ErrValidation
			}
		},
	}
	app := newTestApp(t, func(app *fiber.App) error { return RegisterMessagingRoutes(app, svc) })

	resp, body := performRequest(t, app, http.MethodPost, "/test-message", `{"phone_number":"79990000001","message":"ping"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if decode(t, body)["message_id"] != "m1" {
		t.Fatalf("body = %s", string(body))
	}

	resp, body = performMultipart(t, app, "/test-message",
		map[string]string{"phone_number": "79990000002"},
		formFileSpec{field: "media_file", filename: "doc.pdf", mimeType: "application/pdf", data: []byte("%PDF")},
	)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("multipart status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	tests := []struct {
		phone string
		want  int
	}{
		{phone: "79990000003", want: fiber.StatusTooManyRequests},
		{phone: "79990000004", want: fiber.StatusServiceUnavailable},
		{phone: "79990000005", want: fiber.StatusBadGateway},
		{phone: "123", want: fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, _ := performRequest(t, app, http.MethodPost, "/test-message", `{"phone_number":"`+tt.phone+`","message":"ping"}`)
		if resp.StatusCode != tt.want {
			t.Fatalf("phone %s status = %d, want %d", tt.phone, resp.StatusCode, tt.want)
		}
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/test-message", `{not json`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", resp.StatusCode)
	}
}

func TestSettingsIntegration_GatewaySettings(t *testing.T) {
	t.Parallel()

	updatedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var tested service.ConnectionTestInput
	svc := &stubSettingsService{
		getFn: func(ctx context.Context) (*domain.GatewaySettings, error) {
			return &domain.GatewaySettings{BaseURL: "https://whatsgate.ru/api/v1", WhatsappID: "wa", APIKey: "secret-key"}, nil
		},
		updateFn: func(ctx context.Context, in domain.GatewaySettings) (*domain.GatewaySettings, error) {
			if in.APIKey == "" {
				return nil, domain.ErrValidation
			}
			in.UpdatedAt = updatedAt
			return &in, nil
		},
		testFn: func(ctx context.Context, in service.ConnectionTestInput) (bool, error) {
			tested = in
			return true, nil
		},
	}
	app := newTestApp(t, func(app *fiber.App) error { return RegisterSettingsRoutes(app, svc) })

	resp, body := performRequest(t, app, http.MethodGet, "/settings/gateway", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	got := decode(t, body)
	if got["api_key"] != "******-key" {
		t.Fatalf("api_key = %v, want masked", got["api_key"])
	}
	if got["updated_at"] != nil {
		t.Fatalf("updated_at = %v, want null for defaults", got["updated_at"])
	}

	resp, body = performRequest(t, app, http.MethodPut, "/settings/gateway", `{"base_url":"https://gw.example.com","whatsapp_id":"wa","api_key":"new-secret"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if decode(t, body)["updated_at"] != "2026-03-01T10:00:00Z" {
		t.Fatalf("update body = %s", string(body))
	}

	resp, _ = performRequest(t, app, http.MethodPut, "/settings/gateway", `{"base_url":"https://gw.example.com","whatsapp_id":"wa"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/settings/gateway/test", `{"phone_number":"79990000001"}`)
	if resp.StatusCode != fiber.StatusOK || decode(t, body)["connected"] != true {
		t.Fatalf("test status = %d, body=%s", resp.StatusCode, string(body))
	}
	if tested.Settings != nil {
		t.Fatal("stored settings should be used when the form is empty")
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/settings/gateway/test", `{"phone_number":"79990000001","base_url":"https://gw.example.com","whatsapp_id":"wa","api_key":"k"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if tested.Settings == nil || tested.Settings.BaseURL != "https://gw.example.com" {
		t.Fatalf("tested settings = %+v", tested.Settings)
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, func(app *fiber.App) error {
			RegisterHealthRoutes(app, sql.OpenDB(stubConnector{}), nil, nil)
			return nil
		})

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 200 when dependencies healthy", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := newTestApp(t, func(app *fiber.App) error {
			RegisterHealthRoutes(app, sqlDB, rdb, func() string { return "closed" })
			return nil
		})

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
		checks := decode(t, body)["checks"].(map[string]any)
		if checks["gateway"] != "closed" || checks["redis"] != "ok" {
			t.Fatalf("checks = %v", checks)
		}
	})

	t.Run("readyz skips redis when not configured", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		app := newTestApp(t, func(app *fiber.App) error {
			RegisterHealthRoutes(app, sqlDB, nil, nil)
			return nil
		})

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
		if decode(t, body)["checks"].(map[string]any)["redis"] != "disabled" {
			t.Fatalf("body = %s", string(body))
		}
	})

	t.Run("readyz returns 503 when dependencies down", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{pingErr: errors.New("postgres down")})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(errors.New("redis down"))
		t.Cleanup(func() { _ = rdb.Close() })

		app := newTestApp(t, func(app *fiber.App) error {
			RegisterHealthRoutes(app, sqlDB, rdb, nil)
			return nil
		})

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}
	})
}
