package models

import "time"

// Plan represents a purchasable subscription plan.
type Plan struct {
	PlanID string `gorm:"primaryKey;type:varchar(32)"` // Plan identifier (pln_...).

	Name        string `gorm:"type:varchar(255);not null"` // Plan name.
	Description string `gorm:"type:text"`                  // Plan description.

	Limit5hUnits int64 `gorm:"column:limit_5h_units;not null;default:0"` // 5-hour quota units.
	Limit7dUnits int64 `gorm:"column:limit_7d_units;not null;default:0"` // 7-day quota units.

	StripeProductID string `gorm:"type:text"` // Stripe product reference.
	StripePriceID   string `gorm:"type:text"` // Stripe price reference.

	// No column defaults here: gorm skips zero-valued fields that carry
	// a default tag, which would silently store an inactive plan as active.
	IsActive bool `gorm:"not null"` // Whether the plan can be sold.
	IsHidden bool `gorm:"not null"` // Whether the plan is listed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
