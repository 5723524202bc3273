package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records administrative and lifecycle actions for later review.
type AuditLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ActorUserID *uint64 `gorm:"index"`                            // Acting user, when known.
	Action      string  `gorm:"type:varchar(128);not null;index"` // Action name, e.g. redemption_code.create.

	SubjectSubscriptionID *string `gorm:"type:varchar(32);index"` // Related subscription, if any.
	SubjectPlanID         *string `gorm:"type:varchar(32);index"` // Related plan, if any.

	Meta datatypes.JSON `gorm:"type:jsonb"` // Extra action details.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Action timestamp.
}
