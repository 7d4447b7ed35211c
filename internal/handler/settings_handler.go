package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/service"
)

type SettingsService interface {
	GatewaySettings(ctx context.Context) (*domain.GatewaySettings, error)
	Update(ctx context.Context, in domain.GatewaySettings) (*domain.GatewaySettings, error)
	TestConnection(ctx context.Context, in service.ConnectionTestInput) (bool, error)
}

type SettingsHandler struct {
	service SettingsService
}

func RegisterSettingsRoutes(router fiber.Router, service SettingsService) error {
	if service == nil {
		return fmt.Errorf("settings service is required")
	}

	h := &SettingsHandler{service: service}
	settings := router.Group("/settings")
	settings.Get("/gateway", h.GetGatewaySettings)
	settings.Put("/gateway", h.UpdateGatewaySettings)
	settings.Post("/gateway/test", h.TestGatewayConnection)
	return nil
}

type gatewaySettingsRequest struct {
	BaseURL    string `json:"base_url"`
	WhatsappID string `json:"whatsapp_id"`
	APIKey     string `json:"api_key"`
}

type gatewayTestRequest struct {
	gatewaySettingsRequest
	PhoneNumber string `json:"phone_number"`
}

type gatewaySettingsResponse struct {
	BaseURL    string     `json:"base_url"`
	WhatsappID string     `json:"whatsapp_id"`
	APIKey     string     `json:"api_key"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

func (h *SettingsHandler) GetGatewaySettings(c *fiber.Ctx) error {
	settings, err := h.service.GatewaySettings(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toGatewaySettingsResponse(settings))
}

func (h *SettingsHandler) UpdateGatewaySettings(c *fiber.Ctx) error {
	var req gatewaySettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.service.Update(c.UserContext(), domain.GatewaySettings{
		BaseURL:    req.BaseURL,
		WhatsappID: req.WhatsappID,
		APIKey:     req.APIKey,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toGatewaySettingsResponse(updated))
}

func (h *SettingsHandler) TestGatewayConnection(c *fiber.Ctx) error {
	var req gatewayTestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	in := service.ConnectionTestInput{PhoneNumber: req.PhoneNumber}
	if strings.TrimSpace(req.BaseURL+req.WhatsappID+req.APIKey) != "" {
		in.Settings = &domain.GatewaySettings{
			BaseURL:    strings.TrimSpace(req.BaseURL),
			WhatsappID: strings.TrimSpace(req.WhatsappID),
			APIKey:     strings.TrimSpace(req.APIKey),
		}
	}

	connected, err := h.service.TestConnection(c.UserContext(), in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"connected": connected})
}

func toGatewaySettingsResponse(s *domain.GatewaySettings) gatewaySettingsResponse {
	resp := gatewaySettingsResponse{
		BaseURL:    s.BaseURL,
		WhatsappID: s.WhatsappID,
		APIKey:     s.MaskedAPIKey(),
	}
	if !s.UpdatedAt.IsZero() {
		updatedAt := s.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}
