package models

import "time"

// User is a platform account. Authentication happens in a separate layer;
// this record exists to anchor purchases and the Stripe customer mapping.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email string `gorm:"type:text;not null;uniqueIndex"` // Account email.
	Name  string `gorm:"type:text"`                      // Display name.

	StripeCustomerID *string `gorm:"type:text;index"` // Stripe customer reference, set on first checkout.

	IsAdmin bool `gorm:"not null;default:false"` // Whether the user may issue redemption codes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
