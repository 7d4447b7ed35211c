package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"gorm.io/gorm"
)

func createCampaignNumbersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_campaign_numbers",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CampaignNumberModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`ALTER TABLE campaign_numbers ADD CONSTRAINT fk_campaign_numbers_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id) ON DELETE CASCADE`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_campaign_numbers_phone ON campaign_numbers (campaign_id, phone_number)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_campaign_numbers_position ON campaign_numbers (campaign_id, position)`,
				`CREATE INDEX IF NOT EXISTS idx_campaign_numbers_pending ON campaign_numbers (campaign_id, position) WHERE outcome = 'pending'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CampaignNumberModel{})
		},
	}
}
