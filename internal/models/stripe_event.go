package models

import (
	"time"

	"gorm.io/datatypes"
)

// StripeEvent is an append-only record of a delivered webhook event.
// The primary key on the provider's event ID is the sole de-duplication
// mechanism for redelivered events.
type StripeEvent struct {
	ID string `gorm:"primaryKey;type:varchar(255)"` // Stripe event ID (evt_...).

	Type    string         `gorm:"type:varchar(255);not null;index"` // Stripe event type.
	Payload datatypes.JSON `gorm:"type:jsonb;not null"`              // Raw event payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Receipt timestamp.
}
