package repository

import (
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// CampaignModel is the persistence model for the campaigns table.
type CampaignModel struct {
	ID              string                `gorm:"type:uuid;primaryKey"`
	Name            string                `gorm:"type:varchar(100);not null"`
	Message         string                `gorm:"type:text;not null"`
	MessagesPerHour int                   `gorm:"not null"`
	CategoryFilter  *string               `gorm:"type:varchar(255)"`
	Status          domain.CampaignStatus `gorm:"type:varchar(20);not null"`
	TotalCount      int                   `gorm:"not null;default:0"`
	ProcessedCount  int                   `gorm:"not null;default:0"`
	ErrorCount      int                   `gorm:"not null;default:0"`
	FailureReason   *string               `gorm:"type:text"`
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// CampaignNumberModel is one row of the outcome ledger.
type CampaignNumberModel struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	CampaignID  string         `gorm:"type:uuid;not null"`
	Position    int            `gorm:"not null"`
	PhoneNumber string         `gorm:"type:varchar(20);not null"`
	Outcome     domain.Outcome `gorm:"type:varchar(10);not null"`
	Error       *string        `gorm:"type:text"`
	SentAt      *time.Time
}

func (CampaignNumberModel) TableName() string {
	return "campaign_numbers"
}

// CampaignMediaModel stores the attachment bytes next to its descriptor.
type CampaignMediaModel struct {
	CampaignID  string             `gorm:"type:uuid;primaryKey"`
	Filename    string             `gorm:"type:varchar(255);not null"`
	MimeType    string             `gorm:"type:varchar(100);not null"`
	MessageType domain.MessageType `gorm:"type:varchar(10);not null"`
	ByteSize    int64              `gorm:"not null"`
	Data        []byte             `gorm:"type:bytea;not null"`
	CreatedAt   time.Time
}

func (CampaignMediaModel) TableName() string {
	return "campaign_media"
}

// GatewaySettingsModel is the single-row gateway_settings table.
type GatewaySettingsModel struct {
	ID         int    `gorm:"primaryKey"`
	BaseURL    string `gorm:"type:varchar(255);not null"`
	WhatsappID string `gorm:"type:varchar(100);not null"`
	APIKey     string `gorm:"type:varchar(255);not null"`
	UpdatedAt  time.Time
}

func (GatewaySettingsModel) TableName() string {
	return "gateway_settings"
}

const gatewaySettingsRowID = 1

func campaignModelFromDomain(c *domain.Campaign) *CampaignModel {
	if c == nil {
		return nil
	}

	return &CampaignModel{
		ID:              c.ID,
		Name:            c.Name,
		Message:         c.Message,
		MessagesPerHour: c.MessagesPerHour,
		CategoryFilter:  c.CategoryFilter,
		Status:          c.Status,
		TotalCount:      c.TotalCount,
		ProcessedCount:  c.ProcessedCount,
		ErrorCount:      c.ErrorCount,
		FailureReason:   c.FailureReason,
		StartedAt:       c.StartedAt,
		FinishedAt:      c.FinishedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func campaignModelToDomain(m *CampaignModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	return &domain.Campaign{
		ID:              m.ID,
		Name:            m.Name,
		Message:         m.Message,
		MessagesPerHour: m.MessagesPerHour,
		CategoryFilter:  m.CategoryFilter,
		Status:          m.Status,
		TotalCount:      m.TotalCount,
		ProcessedCount:  m.ProcessedCount,
		ErrorCount:      m.ErrorCount,
		FailureReason:   m.FailureReason,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func numberModelsFromDomain(campaignID string, entries []domain.NumberEntry) []CampaignNumberModel {
	models := make([]CampaignNumberModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, CampaignNumberModel{
			CampaignID:  campaignID,
			Position:    e.Position,
			PhoneNumber: e.PhoneNumber,
			Outcome:     e.Outcome,
			Error:       e.Error,
			SentAt:      e.SentAt,
		})
	}
	return models
}

func numberModelToDomain(m *CampaignNumberModel) domain.NumberEntry {
	return domain.NumberEntry{
		Position:    m.Position,
		PhoneNumber: m.PhoneNumber,
		Outcome:     m.Outcome,
		Error:       m.Error,
		SentAt:      m.SentAt,
	}
}

func mediaModelFromDomain(campaignID string, media *domain.Media, createdAt time.Time) *CampaignMediaModel {
	if media == nil {
		return nil
	}

	return &CampaignMediaModel{
		CampaignID:  campaignID,
		Filename:    media.Filename,
		MimeType:    media.MimeType,
		MessageType: media.MessageType,
		ByteSize:    media.ByteSize,
		Data:        media.Data,
		CreatedAt:   createdAt,
	}
}

func mediaModelToDomain(m *CampaignMediaModel) *domain.Media {
	if m == nil {
		return nil
	}

	return &domain.Media{
		Filename:    m.Filename,
		MimeType:    m.MimeType,
		MessageType: m.MessageType,
		ByteSize:    m.ByteSize,
		Data:        m.Data,
	}
}

func settingsModelToDomain(m *GatewaySettingsModel) *domain.GatewaySettings {
	if m == nil {
		return nil
	}

	return &domain.GatewaySettings{
		BaseURL:    m.BaseURL,
		WhatsappID: m.WhatsappID,
		APIKey:     m.APIKey,
		UpdatedAt:  m.UpdatedAt,
	}
}
