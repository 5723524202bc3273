package models

import "time"

// RedemptionCode is the durable record behind an issued redemption token.
// The signed token carries a copy of these fields; this row is the source
// of truth at redemption time.
type RedemptionCode struct {
	JTI string `gorm:"primaryKey;type:varchar(64)"` // Token identifier (rcd_...).

	CreatedByUserID uint64 `gorm:"not null;index"`                      // Issuing admin user ID.
	PlanID          string `gorm:"type:varchar(32);not null;index"`     // Granted plan ID.
	Plan            Plan   `gorm:"foreignKey:PlanID;references:PlanID"` // Granted plan record.

	DurationDays int `gorm:"not null"`           // Subscription length granted on redemption.
	MaxUses      int `gorm:"not null"`           // Distinct redeemers allowed.
	UsedCount    int `gorm:"not null;default:0"` // Successful redemptions so far.

	ExpiresAt time.Time `gorm:"not null;index"` // Token expiry.

	CustomPlanName        *string `gorm:"type:varchar(255)"`            // Plan name override for granted subscriptions.
	CustomPlanDescription *string `gorm:"type:text"`                    // Description override.
	CustomLimit5hUnits    *int64  `gorm:"column:custom_limit_5h_units"` // 5h units override.
	CustomLimit7dUnits    *int64  `gorm:"column:custom_limit_7d_units"` // 7d units override.

	RevokedAt *time.Time // Set when an admin revokes the code.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// RedemptionRecord stores one successful redemption per (code, redeemer)
// pair. Its existence is the exactly-once guard for repeat submissions.
type RedemptionRecord struct {
	JTI              string `gorm:"primaryKey;type:varchar(64)"` // Redeemed code identifier.
	RedeemedByUserID uint64 `gorm:"primaryKey"`                  // Redeeming user ID.

	SubscriptionID string `gorm:"type:varchar(32);not null"` // Subscription created by this redemption.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Redemption timestamp.
}
