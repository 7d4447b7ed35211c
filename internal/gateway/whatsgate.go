package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

const defaultWhatsGateTimeout = 30 * time.Second

// SettingsSource supplies the provider credentials for each call, so saved
// settings take effect without a restart.
type SettingsSource interface {
	GatewaySettings(ctx context.Context) (*domain.GatewaySettings, error)
}

type whatsGateSendRequest struct {
	WhatsappID string             `json:"WhatsappID"`
	Async      bool               `json:"async"`
	Recipient  whatsGateRecipient `json:"recipient"`
	Message    whatsGateMessage   `json:"message"`
}

type whatsGateRecipient struct {
	Number string `json:"number"`
}

type whatsGateMessage struct {
	Type  string          `json:"type"`
	Body  string          `json:"body"`
	Media *whatsGateMedia `json:"media,omitempty"`
}

type whatsGateMedia struct {
	MimeType string `json:"mimetype"`
	Data     string `json:"data"`
	Filename string `json:"filename"`
}

type whatsGateSendResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type whatsGateCheckRequest struct {
	WhatsappID string `json:"WhatsappID"`
	Number     string `json:"number"`
}

type whatsGateCheckResponse struct {
	Result string `json:"result"`
	Data   bool   `json:"data"`
}

// WhatsGateClient sends messages through the WhatsGate HTTP API.
type WhatsGateClient struct {
	client   *resty.Client
	settings SettingsSource
}

func NewWhatsGateClient(settings SettingsSource, timeout time.Duration) (*WhatsGateClient, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultWhatsGateTimeout
	}
	client.SetTimeout(timeout)

	return NewWhatsGateClientWithClient(settings, client)
}

func NewWhatsGateClientWithClient(settings SettingsSource, client *resty.Client) (*WhatsGateClient, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings source is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWhatsGateTimeout)
	}
	client.SetRetryCount(0)

	return &WhatsGateClient{
		client:   client,
		settings: settings,
	}, nil
}

func (c *WhatsGateClient) Send(ctx context.Context, msg Message) (*Result, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("gateway client is not initialized")
	}
	if !domain.IsValidPhone(msg.PhoneNumber) {
		return nil, &GatewayError{
			Reason:  ReasonInvalidRecipient,
			Message: fmt.Sprintf("invalid phone number %q", msg.PhoneNumber),
		}
	}
	if strings.TrimSpace(msg.Text) == "" && msg.Media == nil {
		return nil, &GatewayError{Reason: ReasonRejected, Message: "message has neither text nor media"}
	}

	settings, err := c.settings.GatewaySettings(ctx)
	if err != nil {
		return nil, &GatewayError{Reason: ReasonProviderUnavailable, Message: "gateway settings unavailable", Cause: err}
	}

	body := whatsGateSendRequest{
		WhatsappID: settings.WhatsappID,
		Recipient:  whatsGateRecipient{Number: msg.PhoneNumber},
		Message: whatsGateMessage{
			Type: domain.MessageTypeText.String(),
			Body: msg.Text,
		},
	}
	if msg.Media != nil {
		body.Message.Type = msg.Media.MessageType.String()
		body.Message.Media = &whatsGateMedia{
			MimeType: msg.Media.MimeType,
			Data:     base64.StdEncoding.EncodeToString(msg.Media.Data),
			Filename: msg.Media.Filename,
		}
	}

	var decoded whatsGateSendResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", settings.APIKey).
		SetBody(body).
		SetResult(&decoded).
		Post(endpoint(settings.BaseURL, "send"))
	if err != nil {
		return nil, transportError(err)
	}
	if response == nil {
		return nil, &GatewayError{Reason: ReasonProviderUnavailable, Message: "provider returned empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Result{
			StatusCode: statusCode,
			MessageID:  strings.TrimSpace(decoded.ID),
		}, nil
	}

	return nil, statusError(statusCode, strings.TrimSpace(response.String()))
}

// CheckConnection asks the provider whether number is reachable with the given settings.
func (c *WhatsGateClient) CheckConnection(ctx context.Context, settings domain.GatewaySettings, number string) (bool, error) {
	if err := settings.Validate(); err != nil {
		return false, err
	}

	var decoded whatsGateCheckResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", settings.APIKey).
		SetBody(whatsGateCheckRequest{WhatsappID: settings.WhatsappID, Number: number}).
		SetResult(&decoded).
		Post(endpoint(settings.BaseURL, "check"))
	if err != nil {
		return false, transportError(err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return false, statusError(statusCode, strings.TrimSpace(response.String()))
	}
	return decoded.Result == "success" && decoded.Data, nil
}

func endpoint(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + path
}

func transportError(err error) *GatewayError {
	reason := ReasonTransport
	if ReasonOf(err) == ReasonTimeout {
		reason = ReasonTimeout
	}
	return &GatewayError{Reason: reason, Message: "provider request failed", Cause: err}
}

func statusError(statusCode int, body string) *GatewayError {
	reason := ReasonRejected
	switch {
	case statusCode == http.StatusTooManyRequests:
		reason = ReasonRateLimited
	case statusCode == http.StatusNotFound || statusCode == http.StatusUnprocessableEntity:
		reason = ReasonInvalidRecipient
	case statusCode >= http.StatusInternalServerError:
		reason = ReasonProviderUnavailable
	}

	message := fmt.Sprintf("provider returned status %d", statusCode)
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		message = "unauthorized: invalid credentials"
	} else if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &GatewayError{Reason: reason, StatusCode: statusCode, Message: message}
}
