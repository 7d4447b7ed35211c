package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// GatewaySettings holds the credentials used to reach the messaging provider.
type GatewaySettings struct {
	BaseURL    string
	WhatsappID string
	APIKey     string
	UpdatedAt  time.Time
}

func (s *GatewaySettings) Validate() error {
	base := strings.TrimSpace(s.BaseURL)
	if base == "" {
		return fmt.Errorf("%w: base url is required", ErrValidation)
	}
	if u, err := url.ParseRequestURI(base); err != nil || u.Host == "" {
		return fmt.Errorf("%w: invalid base url %q", ErrValidation, s.BaseURL)
	}
	if strings.TrimSpace(s.WhatsappID) == "" {
		return fmt.Errorf("%w: whatsapp id is required", ErrValidation)
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return fmt.Errorf("%w: api key is required", ErrValidation)
	}
	return nil
}

// MaskedAPIKey keeps the last four characters visible.
func (s *GatewaySettings) MaskedAPIKey() string {
	key := strings.TrimSpace(s.APIKey)
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
