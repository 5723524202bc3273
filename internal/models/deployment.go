package models

import "time"

// Deployment status values mirror the lifecycle of a subscription's
// placement in the Privnode system.
const (
	// DeploymentStatusOrdered marks a subscription not yet deployed.
	DeploymentStatusOrdered = "ordered"
	// DeploymentStatusDeploying marks a deploy in progress.
	DeploymentStatusDeploying = "deploying"
	// DeploymentStatusDeployed marks an active Privnode ledger entry.
	DeploymentStatusDeployed = "deployed"
	// DeploymentStatusDeactivated marks a paused entry with quota preserved.
	DeploymentStatusDeactivated = "deactivated"
	// DeploymentStatusDisabled marks an administratively disabled entry.
	DeploymentStatusDisabled = "disabled"
	// DeploymentStatusExpired marks a subscription past its period end.
	DeploymentStatusExpired = "expired"
)

// Deployment tracks where and whether a subscription is placed on Privnode.
// Exactly one row exists per subscription.
type Deployment struct {
	SubscriptionID string       `gorm:"primaryKey;type:varchar(32)"`                         // Owning subscription ID.
	Subscription   Subscription `gorm:"foreignKey:SubscriptionID;references:SubscriptionID"` // Owning subscription record.

	PrivnodeUserID   *uint64 `gorm:"index"`     // Privnode user holding the ledger entry.
	PrivnodeUsername *string `gorm:"type:text"` // Privnode username at deploy time.

	Status string `gorm:"type:varchar(16);not null;default:'ordered';index"` // Current deployment status.

	DeployedAt    *time.Time // First successful deploy time.
	DeactivatedAt *time.Time // Last deactivation time.
	TransferredAt *time.Time // Last transfer time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
