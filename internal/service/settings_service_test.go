package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"go.uber.org/zap"
)

var envDefaults = domain.GatewaySettings{
	BaseURL:    "https://whatsgate.ru/api/v1",
	WhatsappID: "env-id",
	APIKey:     "env-key",
}

func TestSettingsServiceFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	svc, err := NewSettingsService(&fakeSettingsRepo{}, envDefaults, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSettingsService() error = %v", err)
	}

	got, err := svc.GatewaySettings(context.Background())
	if err != nil {
		t.Fatalf("GatewaySettings() error = %v", err)
	}
	if *got != envDefaults {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

func TestSettingsServicePrefersStored(t *testing.T) {
	t.Parallel()

	stored := &domain.GatewaySettings{BaseURL: "https://gw.example.com", WhatsappID: "db-id", APIKey: "db-key"}
	repo := &fakeSettingsRepo{
		getFn: func(ctx context.Context) (*domain.GatewaySettings, error) { return stored, nil },
	}
	svc, err := NewSettingsService(repo, envDefaults, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSettingsService() error = %v", err)
	}

	got, err := svc.GatewaySettings(context.Background())
	if err != nil {
		t.Fatalf("GatewaySettings() error = %v", err)
	}
	if got.WhatsappID != "db-id" {
		t.Fatalf("whatsapp id = %q, want db-id", got.WhatsappID)
	}

	repo.getFn = func(ctx context.Context) (*domain.GatewaySettings, error) { return nil, errors.New("db down") }
	if _, err := svc.GatewaySettings(context.Background()); err == nil {
		t.Fatal("GatewaySettings() should surface store errors")
	}
}

func TestSettingsServiceUpdate(t *testing.T) {
	t.Parallel()

	var saved *domain.GatewaySettings
	repo := &fakeSettingsRepo{
		saveFn: func(ctx context.Context, s *domain.GatewaySettings) error {
			saved = s
			return nil
		},
	}
	svc, err := NewSettingsService(repo, envDefaults, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSettingsService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	got, err := svc.Update(context.Background(), domain.GatewaySettings{
		BaseURL:    " https://gw.example.com/api/ ",
		WhatsappID: " id ",
		APIKey:     "key",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if saved == nil || saved.BaseURL != "https://gw.example.com/api" || saved.WhatsappID != "id" {
		t.Fatalf("saved = %+v", saved)
	}
	if !got.UpdatedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("updatedAt = %v", got.UpdatedAt)
	}

	saved = nil
	if _, err := svc.Update(context.Background(), domain.GatewaySettings{BaseURL: "not a url", WhatsappID: "id", APIKey: "key"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation", err)
	}
	if saved != nil {
		t.Fatal("invalid settings must not be saved")
	}
}

func TestSettingsServiceTestConnection(t *testing.T) {
	t.Parallel()

	var checked domain.GatewaySettings
	var checkedNumber string
	checker := &fakeChecker{
		checkFn: func(ctx context.Context, settings domain.GatewaySettings, number string) (bool, error) {
			checked = settings
			checkedNumber = number
			return true, nil
		},
	}
	svc, err := NewSettingsService(&fakeSettingsRepo{}, envDefaults, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSettingsService() error = %v", err)
	}

	if _, err := svc.TestConnection(context.Background(), ConnectionTestInput{PhoneNumber: "79991234567"}); err == nil {
		t.Fatal("TestConnection() without checker should fail")
	}
	svc.SetConnectionChecker(checker)

	ok, err := svc.TestConnection(context.Background(), ConnectionTestInput{PhoneNumber: "8 999 123 45 67"})
	if !errors.Is(err, domain.ErrValidation) || ok {
		t.Fatalf("TestConnection() = %v, %v, want ErrValidation", ok, err)
	}

	ok, err = svc.TestConnection(context.Background(), ConnectionTestInput{PhoneNumber: "+7 999 123 45 67"})
	if err != nil || !ok {
		t.Fatalf("TestConnection() = %v, %v", ok, err)
	}
	if checked != envDefaults || checkedNumber != "79991234567" {
		t.Fatalf("checked %+v with %q", checked, checkedNumber)
	}

	form := &domain.GatewaySettings{BaseURL: "https://gw.example.com", WhatsappID: "form-id", APIKey: "form-key"}
	if _, err := svc.TestConnection(context.Background(), ConnectionTestInput{Settings: form, PhoneNumber: "79991234567"}); err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	if checked.WhatsappID != "form-id" {
		t.Fatalf("checked whatsapp id = %q, want form-id", checked.WhatsappID)
	}
}
