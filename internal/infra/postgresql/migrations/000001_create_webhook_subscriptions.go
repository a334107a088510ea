package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/quintaserp/webhook-service/internal/repository"
	"gorm.io/gorm"
)

func createWebhookSubscriptionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_webhook_subscriptions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SubscriptionModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_subscriptions_event_active ON webhook_subscriptions (event_type) WHERE is_active = true`,
				`CREATE INDEX IF NOT EXISTS idx_subscriptions_client_event ON webhook_subscriptions (client_id, event_type)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SubscriptionModel{})
		},
	}
}
