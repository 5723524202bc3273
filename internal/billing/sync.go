package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/privnode/subscription-station/internal/ledger"
	"github.com/privnode/subscription-station/internal/models"
	log "github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// ErrUnknownStripeSubscription marks an event for a subscription the
// platform never created. The message is the stable code.
var ErrUnknownStripeSubscription = errors.New("stripe_subscription_unknown")

// terminalStripeStatus reports whether a Stripe status ends the
// subscription for good.
func terminalStripeStatus(status string) bool {
	return status == models.StripeStatusCanceled || status == models.StripeStatusIncompleteExpired
}

// Synchronizer mirrors Stripe subscription state into the platform
// store and retracts ledger entries when a subscription terminates.
type Synchronizer struct {
	ledger *ledger.Store
}

// NewSynchronizer constructs a Synchronizer. The ledger store may be
// nil in contexts that never expire subscriptions.
func NewSynchronizer(ledgerStore *ledger.Store) *Synchronizer {
	return &Synchronizer{ledger: ledgerStore}
}

// Apply writes a Stripe subscription's status, renewal flag and period
// end onto the matching platform row. A terminal status additionally
// stamps expired_at once and expires the deployment, retracting any
// ledger entry best-effort.
func (s *Synchronizer) Apply(ctx context.Context, tx *gorm.DB, ss *stripe.Subscription) error {
	var sub models.Subscription
	errFind := tx.WithContext(ctx).Where("stripe_subscription_id = ?", ss.ID).First(&sub).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrUnknownStripeSubscription
		}
		return fmt.Errorf("billing: find subscription: %w", errFind)
	}

	status := string(ss.Status)
	updates := map[string]any{
		"stripe_status":      status,
		"auto_renew_enabled": AutoRenewEnabled(ss),
	}
	if end := CurrentPeriodEnd(ss); end != nil {
		updates["current_period_end"] = *end
	}
	if terminalStripeStatus(status) && sub.ExpiredAt == nil {
		updates["expired_at"] = time.Now()
	}
	if errUpdate := tx.WithContext(ctx).Model(&models.Subscription{}).
		Where("subscription_id = ?", sub.SubscriptionID).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("billing: update subscription: %w", errUpdate)
	}

	if terminalStripeStatus(status) {
		if errExpire := s.expireDeployment(ctx, tx, sub.SubscriptionID); errExpire != nil {
			return errExpire
		}
	}
	return nil
}

// expireDeployment moves the deployment to expired and retracts the
// ledger entry when one is still placed. A failed retraction aborts the
// sync so the event is redelivered and retried.
func (s *Synchronizer) expireDeployment(ctx context.Context, tx *gorm.DB, subscriptionID string) error {
	var dep models.Deployment
	errFind := tx.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&dep).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("billing: find deployment: %w", errFind)
	}
	if dep.Status == models.DeploymentStatusExpired {
		return nil
	}

	// Any row with a recorded owner may still hold a ledger entry,
	// including a deploy interrupted between the ledger commit and the
	// deployed write.
	if dep.PrivnodeUserID != nil && s.ledger != nil {
		errRemove := s.ledger.Remove(ctx, *dep.PrivnodeUserID, subscriptionID)
		if errRemove != nil && !errors.Is(errRemove, ledger.ErrEntryNotFound) && !errors.Is(errRemove, ledger.ErrUserNotFound) {
			log.WithError(errRemove).WithField("subscription_id", subscriptionID).
				Warn("ledger retraction failed")
			return fmt.Errorf("billing: retract ledger entry: %w", errRemove)
		}
	}

	if errUpdate := tx.WithContext(ctx).Model(&models.Deployment{}).
		Where("subscription_id = ?", subscriptionID).
		Update("status", models.DeploymentStatusExpired).Error; errUpdate != nil {
		return fmt.Errorf("billing: expire deployment: %w", errUpdate)
	}
	return nil
}
