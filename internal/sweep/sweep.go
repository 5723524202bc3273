// Package sweep expires subscriptions whose paid or granted period has
// ended and retracts their Privnode ledger entries. The sweep is the
// convergence mechanism for anything a webhook or deploy left half
// done: it is idempotent and safe to re-run at any interval.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/privnode/subscription-station/internal/ledger"
	"github.com/privnode/subscription-station/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sweeper expires overdue subscriptions.
type Sweeper struct {
	db     *gorm.DB
	ledger *ledger.Store
}

// NewSweeper constructs a Sweeper over the platform store and the
// Privnode ledger store.
func NewSweeper(db *gorm.DB, ledgerStore *ledger.Store) *Sweeper {
	return &Sweeper{db: db, ledger: ledgerStore}
}

// Run performs one sweep pass. It returns the number of subscriptions
// expired. The platform rows flip first; retracting the ledger entry
// afterwards is best effort, logged on failure.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	now := time.Now()

	var candidates []models.Subscription
	errList := s.db.WithContext(ctx).
		Joins("JOIN deployments ON deployments.subscription_id = subscriptions.subscription_id").
		Where("subscriptions.expired_at IS NULL").
		Where("subscriptions.current_period_end IS NOT NULL AND subscriptions.current_period_end <= ?", now.Unix()).
		Where("deployments.status NOT IN ?", []string{models.DeploymentStatusExpired, models.DeploymentStatusDisabled}).
		Find(&candidates).Error
	if errList != nil {
		return 0, fmt.Errorf("sweep: list candidates: %w", errList)
	}

	expired := 0
	for i := range candidates {
		sub := &candidates[i]
		if errExpire := s.expireOne(ctx, sub, now); errExpire != nil {
			log.WithError(errExpire).WithField("subscription_id", sub.SubscriptionID).
				Warn("sweep: expire failed, will retry next pass")
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Sweeper) expireOne(ctx context.Context, sub *models.Subscription, now time.Time) error {
	var dep models.Deployment
	errFind := s.db.WithContext(ctx).Where("subscription_id = ?", sub.SubscriptionID).First(&dep).Error
	if errFind != nil {
		return fmt.Errorf("sweep: load deployment: %w", errFind)
	}

	errFlip := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUpdate := tx.Model(&models.Subscription{}).
			Where("subscription_id = ? AND expired_at IS NULL", sub.SubscriptionID).
			Update("expired_at", now).Error; errUpdate != nil {
			return fmt.Errorf("sweep: mark subscription expired: %w", errUpdate)
		}
		if errUpdate := tx.Model(&models.Deployment{}).
			Where("subscription_id = ?", sub.SubscriptionID).
			Update("status", models.DeploymentStatusExpired).Error; errUpdate != nil {
			return fmt.Errorf("sweep: mark deployment expired: %w", errUpdate)
		}
		return nil
	})
	if errFlip != nil {
		return errFlip
	}

	// Best-effort retraction. There is no two-phase commit across the
	// stores; a failure here leaves an entry the next deploy or transfer
	// of that user reconciles against.
	if dep.PrivnodeUserID != nil {
		errRemove := s.ledger.Remove(ctx, *dep.PrivnodeUserID, sub.SubscriptionID)
		if errRemove != nil && !errors.Is(errRemove, ledger.ErrEntryNotFound) && !errors.Is(errRemove, ledger.ErrUserNotFound) {
			log.WithError(errRemove).
				WithField("subscription_id", sub.SubscriptionID).
				Warn("sweep: ledger retraction failed")
		}
	}
	return nil
}

// RunPeriodic runs sweep passes at the interval until the context is
// canceled. A pass runs immediately on start.
func (s *Sweeper) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		expired, errRun := s.Run(ctx)
		if errRun != nil {
			log.WithError(errRun).Error("sweep pass failed")
		} else if expired > 0 {
			log.WithField("expired", expired).Info("sweep pass expired subscriptions")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
