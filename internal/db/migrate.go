package db

import (
	"fmt"

	"github.com/privnode/subscription-station/internal/models"
	"gorm.io/gorm"
)

// Migrate runs platform database migrations for the current dialect.
// The Privnode database is owned by an external system and is never
// migrated here.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
		return migratePlatform(conn)
	default:
		return fmt.Errorf("db: unsupported platform dialect: %s", DialectName(conn))
	}
}

// migratePlatform applies schema updates and indexes shared by both
// platform dialects.
func migratePlatform(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Subscription{},
		&models.Deployment{},
		&models.RedemptionCode{},
		&models.RedemptionRecord{},
		&models.StripeEvent{},
		&models.AuditLog{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_subscriptions_buyer_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_subscriptions_buyer_created_at
				ON subscriptions (buyer_user_id, created_at DESC)
			`,
		},
		{
			name: "idx_subscriptions_expiry_sweep",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_subscriptions_expiry_sweep
				ON subscriptions (current_period_end)
				WHERE expired_at IS NULL AND current_period_end IS NOT NULL
			`,
		},
		{
			name: "idx_deployments_privnode_user",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_deployments_privnode_user
				ON deployments (privnode_user_id)
				WHERE privnode_user_id IS NOT NULL
			`,
		},
		{
			name: "idx_redemption_codes_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_redemption_codes_created_at
				ON redemption_codes (created_at DESC)
			`,
		},
		{
			name: "idx_redemption_records_subscription",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_redemption_records_subscription
				ON redemption_records (subscription_id)
			`,
		},
		{
			name: "idx_audit_logs_action_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_audit_logs_action_created_at
				ON audit_logs (action, created_at DESC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}
