package migrations

import (
	"github.com/contesthub/mailing-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createTeams(),
		createCampaigns(),
		createDeliveryLogs(),
	})

	return m.Migrate()
}

func createTeams() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_teams",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TeamModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_teams_status_created ON teams (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_teams_season_id ON teams (season_id) WHERE season_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TeamModel{})
		},
	}
}

func createCampaigns() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_campaigns",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CampaignModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_campaigns_state_created ON campaigns (state, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_campaigns_scheduled_due ON campaigns (scheduled_at) WHERE state = 'SCHEDULED' AND scheduled_at IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CampaignModel{})
		},
	}
}

func createDeliveryLogs() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_delivery_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_campaign_id ON delivery_logs (campaign_id)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_status_attempted ON delivery_logs (status, attempted_at)`,
				// One terminal outcome per (campaign, recipient); pending
				// rows are excluded so an in-flight attempt never blocks
				// recording its own outcome.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_delivery_logs_terminal_once ON delivery_logs (campaign_id, recipient) WHERE status IN ('SENT', 'FAILED')`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryLogModel{})
		},
	}
}
