package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository interface {
	GetGatewaySettings(ctx context.Context) (*domain.GatewaySettings, error)
	SaveGatewaySettings(ctx context.Context, s *domain.GatewaySettings) error
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) GetGatewaySettings(ctx context.Context) (*domain.GatewaySettings, error) {
	var model GatewaySettingsModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", gatewaySettingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return settingsModelToDomain(&model), nil
}

// SaveGatewaySettings upserts the single settings row.
func (r *GormSettingsRepo) SaveGatewaySettings(ctx context.Context, s *domain.GatewaySettings) error {
	model := GatewaySettingsModel{
		ID:         gatewaySettingsRowID,
		BaseURL:    s.BaseURL,
		WhatsappID: s.WhatsappID,
		APIKey:     s.APIKey,
		UpdatedAt:  s.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"base_url", "whatsapp_id", "api_key", "updated_at"}),
		}).
		Create(&model).Error
}
