package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"gorm.io/gorm"
)

func createCampaignMediaTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_campaign_media",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CampaignMediaModel{}); err != nil {
				return err
			}
			return tx.Exec(`ALTER TABLE campaign_media ADD CONSTRAINT fk_campaign_media_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id) ON DELETE CASCADE`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CampaignMediaModel{})
		},
	}
}
