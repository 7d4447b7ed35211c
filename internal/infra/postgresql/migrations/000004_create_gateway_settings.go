package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"gorm.io/gorm"
)

func createGatewaySettingsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_gateway_settings",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.GatewaySettingsModel{}); err != nil {
				return err
			}
			return tx.Exec(`ALTER TABLE gateway_settings ADD CONSTRAINT chk_gateway_settings_single_row CHECK (id = 1)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.GatewaySettingsModel{})
		},
	}
}
