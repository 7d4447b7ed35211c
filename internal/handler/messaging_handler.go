package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-engine/internal/gateway"
	"github.com/kursadbilgin/campaign-engine/internal/service"
)

type MessagingService interface {
	SendTest(ctx context.Context, in service.TestMessageInput) (*gateway.Result, error)
}

type MessagingHandler struct {
	service MessagingService
}

func RegisterMessagingRoutes(router fiber.Router, service MessagingService) error {
	if service == nil {
		return fmt.Errorf("messaging service is required")
	}

	h := &MessagingHandler{service: service}
	router.Post("/test-message", h.SendTestMessage)
	return nil
}

type testMessageRequest struct {
	PhoneNumber string `json:"phone_number" form:"phone_number"`
	Message     string `json:"message" form:"message"`
}

// SendTestMessage accepts JSON, or multipart when a media_file is attached.
func (h *MessagingHandler) SendTestMessage(c *fiber.Ctx) error {
	var in service.TestMessageInput

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid multipart body")
		}
		media, err := readUpload(formFile(form, "media_file"))
		if err != nil {
			return toHTTPError(err)
		}
		in = service.TestMessageInput{
			PhoneNumber: formValue(form, "phone_number"),
			Message:     formValue(form, "message"),
			Media:       media,
		}
	} else {
		var req testMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		in = service.TestMessageInput{PhoneNumber: req.PhoneNumber, Message: req.Message}
	}

	result, err := h.service.SendTest(c.UserContext(), in)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":     "sent",
		"message_id": result.MessageID,
	})
}
