package models

import "time"

// Stripe subscription statuses that make a subscription deployable.
const (
	// StripeStatusActive marks a paid, running Stripe subscription.
	StripeStatusActive = "active"
	// StripeStatusTrialing marks a Stripe subscription in its trial period.
	StripeStatusTrialing = "trialing"
	// StripeStatusIncomplete marks a Stripe subscription awaiting first payment.
	StripeStatusIncomplete = "incomplete"
	// StripeStatusCanceled marks a terminally canceled Stripe subscription.
	StripeStatusCanceled = "canceled"
	// StripeStatusIncompleteExpired marks a never-paid, expired Stripe subscription.
	StripeStatusIncompleteExpired = "incomplete_expired"
)

// Subscription records one purchase or grant of a plan.
type Subscription struct {
	SubscriptionID string `gorm:"primaryKey;type:varchar(32)"` // Subscription identifier (sub_...).

	BuyerUserID uint64 `gorm:"not null;index"`                      // Purchasing user ID.
	PlanID      string `gorm:"type:varchar(32);not null;index"`     // Purchased plan ID.
	Plan        Plan   `gorm:"foreignKey:PlanID;references:PlanID"` // Purchased plan record.

	StripeCustomerID     *string `gorm:"type:text"`                  // Stripe customer reference.
	StripeSubscriptionID *string `gorm:"type:text;index"`            // Stripe subscription reference.
	StripeStatus         *string `gorm:"type:varchar(64)"`           // Last synced Stripe status.
	AutoRenewEnabled     bool    `gorm:"not null;default:false"`     // Renewal flag from Stripe.
	CurrentPeriodEnd     *int64  `gorm:"column:current_period_end"`  // Paid-through time, epoch seconds.

	RedeemedCodeJTI *string `gorm:"column:redeemed_code_jti;type:varchar(64);index"` // Origin redemption code, if granted by one.

	CustomPlanName        *string `gorm:"type:varchar(255)"`              // Per-subscription plan name override.
	CustomPlanDescription *string `gorm:"type:text"`                      // Per-subscription description override.
	CustomLimit5hUnits    *int64  `gorm:"column:custom_limit_5h_units"`   // Per-subscription 5h units override.
	CustomLimit7dUnits    *int64  `gorm:"column:custom_limit_7d_units"`   // Per-subscription 7d units override.

	ExpiredAt *time.Time `gorm:"index"` // Set once when the subscription terminally expires.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Order timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// EffectivePlanName returns the override name when present, else the plan name.
func (s Subscription) EffectivePlanName() string {
	if s.CustomPlanName != nil && *s.CustomPlanName != "" {
		return *s.CustomPlanName
	}
	return s.Plan.Name
}

// EffectiveLimit5hUnits returns the override 5h units when present.
func (s Subscription) EffectiveLimit5hUnits() int64 {
	if s.CustomLimit5hUnits != nil {
		return *s.CustomLimit5hUnits
	}
	return s.Plan.Limit5hUnits
}

// EffectiveLimit7dUnits returns the override 7d units when present.
func (s Subscription) EffectiveLimit7dUnits() int64 {
	if s.CustomLimit7dUnits != nil {
		return *s.CustomLimit7dUnits
	}
	return s.Plan.Limit7dUnits
}
