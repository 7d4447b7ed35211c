package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

// ConnectionChecker verifies credentials against the provider without sending.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context, settings domain.GatewaySettings, number string) (bool, error)
}

type ConnectionTestInput struct {
	// Settings overrides the stored ones, so a form can be checked before saving.
	Settings    *domain.GatewaySettings
	PhoneNumber string
}

// SettingsService owns the gateway credentials. Stored settings win over the
// environment defaults.
type SettingsService struct {
	settings repository.SettingsRepository
	defaults domain.GatewaySettings
	checker  ConnectionChecker
	logger   *zap.Logger
	now      func() time.Time
}

func NewSettingsService(
	settings repository.SettingsRepository,
	defaults domain.GatewaySettings,
	logger *zap.Logger,
) (*SettingsService, error) {
	if settings == nil {
		return nil, errors.New("settings repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SettingsService{
		settings: settings,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// SetConnectionChecker is separate from the constructor because the gateway
// client itself reads its settings from this service.
func (s *SettingsService) SetConnectionChecker(checker ConnectionChecker) {
	s.checker = checker
}

// GatewaySettings returns the effective settings.
func (s *SettingsService) GatewaySettings(ctx context.Context) (*domain.GatewaySettings, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	stored, err := s.settings.GetGatewaySettings(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		defaults := s.defaults
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway settings: %w", err)
	}
	return stored, nil
}

func (s *SettingsService) Update(ctx context.Context, in domain.GatewaySettings) (*domain.GatewaySettings, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	updated := domain.GatewaySettings{
		BaseURL:    strings.TrimRight(strings.TrimSpace(in.BaseURL), "/"),
		WhatsappID: strings.TrimSpace(in.WhatsappID),
		APIKey:     strings.TrimSpace(in.APIKey),
		UpdatedAt:  s.now().UTC(),
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := s.settings.SaveGatewaySettings(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to save gateway settings: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("gateway settings updated",
		zap.String("baseUrl", updated.BaseURL),
		zap.String("whatsappId", updated.WhatsappID),
		zap.String("apiKey", updated.MaskedAPIKey()),
	)
	return &updated, nil
}

// TestConnection asks the provider whether the number is reachable with the
// given or the effective settings.
func (s *SettingsService) TestConnection(ctx context.Context, in ConnectionTestInput) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.checker == nil {
		return false, errors.New("connection checker is not configured")
	}

	phone := domain.NormalizePhone(in.PhoneNumber)
	if !domain.IsValidPhone(phone) {
		return false, fmt.Errorf("%w: phone number must be 11 digits starting with 7", domain.ErrValidation)
	}

	settings := in.Settings
	if settings == nil {
		effective, err := s.GatewaySettings(ctx)
		if err != nil {
			return false, err
		}
		settings = effective
	}
	if err := settings.Validate(); err != nil {
		return false, err
	}

	ok, err := s.checker.CheckConnection(ctx, *settings, phone)
	if err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("gateway connection check failed", zap.Error(err))
		return false, err
	}
	return ok, nil
}
