package deployment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/privnode/subscription-station/internal/ledger"
	"github.com/privnode/subscription-station/internal/models"
	"gorm.io/gorm"
)

// Deployment error codes. The message is the stable code.
var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionExpired  = errors.New("subscription_expired")
	ErrNotDeployable        = errors.New("subscription_not_deployable")
	ErrAlreadyDeployed      = errors.New("already_deployed")
	ErrUseTransfer          = errors.New("use_transfer_for_different_target")
	ErrNotDeployed          = errors.New("subscription_not_deployed")
)

// View pairs a subscription with its deployment row and, when one is
// deployed, the live ledger entry read from Privnode.
type View struct {
	Subscription *models.Subscription
	Deployment   *models.Deployment
	Entry        *ledger.Entry
	CanDeploy    bool
}

// Service drives the deployment lifecycle. Ledger mutations commit on
// the Privnode side first; the platform deployment row is updated
// afterwards, so a crash between the two leaves a state the next deploy
// or the expiry sweep converges.
type Service struct {
	db     *gorm.DB
	ledger *ledger.Store
}

// NewService constructs a Service over the platform store and the
// Privnode ledger store.
func NewService(db *gorm.DB, ledgerStore *ledger.Store) *Service {
	return &Service{db: db, ledger: ledgerStore}
}

// load fetches a subscription owned by userID together with its
// deployment row.
func (s *Service) load(ctx context.Context, userID uint64, subscriptionID string) (*models.Subscription, *models.Deployment, error) {
	var sub models.Subscription
	errSub := s.db.WithContext(ctx).Preload("Plan").
		Where("subscription_id = ? AND buyer_user_id = ?", subscriptionID, userID).
		First(&sub).Error
	if errSub != nil {
		if errors.Is(errSub, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSubscriptionNotFound
		}
		return nil, nil, fmt.Errorf("deployment: load subscription: %w", errSub)
	}

	var dep models.Deployment
	if errDep := s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).
		First(&dep).Error; errDep != nil {
		if errors.Is(errDep, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSubscriptionNotFound
		}
		return nil, nil, fmt.Errorf("deployment: load deployment: %w", errDep)
	}
	return &sub, &dep, nil
}

// Deployable reports whether a subscription may be (re)deployed right
// now: it has a future period end, is not expired, its deployment sits
// in a state a deploy can start from, and, for Stripe-backed
// subscriptions, payment has been confirmed. Manual grants have no
// Stripe reference and are usable whenever unexpired.
func Deployable(sub *models.Subscription, dep *models.Deployment, now time.Time) bool {
	if sub.ExpiredAt != nil {
		return false
	}
	if sub.CurrentPeriodEnd == nil || *sub.CurrentPeriodEnd <= now.Unix() {
		return false
	}
	if !billingConfirmed(sub) {
		return false
	}
	switch dep.Status {
	case models.DeploymentStatusOrdered, models.DeploymentStatusDeploying, models.DeploymentStatusDeactivated:
		return true
	}
	return false
}

// billingConfirmed reports whether the billing side allows access yet.
func billingConfirmed(sub *models.Subscription) bool {
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" {
		return true
	}
	if sub.StripeStatus == nil {
		return false
	}
	switch *sub.StripeStatus {
	case models.StripeStatusActive, models.StripeStatusTrialing:
		return true
	}
	return false
}

// Deploy places a subscription's quota entry on the Privnode user named
// by identifier. Re-running against the current holder is a no-op error;
// pointing at a different user once placed requires Transfer.
func (s *Service) Deploy(ctx context.Context, userID uint64, subscriptionID, identifier string) (*models.Deployment, error) {
	sub, dep, errLoad := s.load(ctx, userID, subscriptionID)
	if errLoad != nil {
		return nil, errLoad
	}
	now := time.Now()

	// A subscription that was ever placed stays bound to its holder,
	// even while deactivated. Pointing a deploy at anyone else would
	// mint a second entry with fresh quota; that is a transfer.
	if dep.PrivnodeUserID != nil {
		target, errFind := s.ledger.FindUserByIdentifier(ctx, identifier)
		if errFind != nil {
			return nil, errFind
		}
		if *dep.PrivnodeUserID != target.ID {
			return nil, ErrUseTransfer
		}
		if dep.Status == models.DeploymentStatusDeployed {
			return nil, ErrAlreadyDeployed
		}
	}
	if !Deployable(sub, dep, now) {
		if sub.ExpiredAt != nil || sub.CurrentPeriodEnd == nil || *sub.CurrentPeriodEnd <= now.Unix() {
			return nil, ErrSubscriptionExpired
		}
		return nil, ErrNotDeployable
	}

	// Mark the deploy in flight before touching the ledger. A crash
	// between the ledger commit and the deployed write below leaves the
	// row here, where a retry or the expiry sweep converges it.
	if errMark := s.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("subscription_id = ?", subscriptionID).
		Update("status", models.DeploymentStatusDeploying).Error; errMark != nil {
		return nil, fmt.Errorf("deployment: mark deploying: %w", errMark)
	}

	endAt := *sub.CurrentPeriodEnd
	user, errDeploy := s.ledger.Deploy(ctx, identifier, subscriptionID, func(owner uint64) ledger.Entry {
		return ledger.NewEntry(ledger.Grant{
			PlanName:         sub.EffectivePlanName(),
			PlanID:           sub.PlanID,
			SubscriptionID:   subscriptionID,
			Owner:            owner,
			Limit5hUnits:     sub.EffectiveLimit5hUnits(),
			Limit7dUnits:     sub.EffectiveLimit7dUnits(),
			Now:              now.Unix(),
			EndAt:            endAt,
			AutoRenewEnabled: sub.AutoRenewEnabled,
		})
	}, now.Unix(), endAt, sub.AutoRenewEnabled)
	if errDeploy != nil {
		// Nothing committed on the ledger side; put the row back.
		if errRestore := s.db.WithContext(ctx).Model(&models.Deployment{}).
			Where("subscription_id = ?", subscriptionID).
			Update("status", dep.Status).Error; errRestore != nil {
			return nil, fmt.Errorf("deployment: restore status after failed deploy: %w", errRestore)
		}
		return nil, errDeploy
	}

	// Ledger side is committed; record the placement on the platform.
	updates := map[string]any{
		"status":            models.DeploymentStatusDeployed,
		"privnode_user_id":  user.ID,
		"privnode_username": user.Username,
		"deployed_at":       gorm.Expr("COALESCE(deployed_at, ?)", now),
	}
	if errMark := s.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("subscription_id = ?", subscriptionID).Updates(updates).Error; errMark != nil {
		return nil, fmt.Errorf("deployment: mark deployed: %w", errMark)
	}
	return s.reload(ctx, subscriptionID)
}

// Transfer moves a deployed subscription's entry to another Privnode
// user, preserving quota.
func (s *Service) Transfer(ctx context.Context, userID uint64, subscriptionID, toIdentifier string) (*models.Deployment, error) {
	sub, dep, errLoad := s.load(ctx, userID, subscriptionID)
	if errLoad != nil {
		return nil, errLoad
	}
	if dep.Status != models.DeploymentStatusDeployed || dep.PrivnodeUserID == nil {
		return nil, ErrNotDeployed
	}
	now := time.Now()
	if sub.ExpiredAt != nil || sub.CurrentPeriodEnd == nil || *sub.CurrentPeriodEnd <= now.Unix() {
		return nil, ErrSubscriptionExpired
	}
	if !billingConfirmed(sub) {
		return nil, ErrNotDeployable
	}

	target, errTransfer := s.ledger.Transfer(ctx, *dep.PrivnodeUserID, toIdentifier, subscriptionID,
		now.Unix(), *sub.CurrentPeriodEnd, sub.AutoRenewEnabled)
	if errTransfer != nil {
		return nil, errTransfer
	}

	updates := map[string]any{
		"privnode_user_id":  target.ID,
		"privnode_username": target.Username,
		"transferred_at":    now,
	}
	if errMark := s.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("subscription_id = ?", subscriptionID).Updates(updates).Error; errMark != nil {
		return nil, fmt.Errorf("deployment: mark transferred: %w", errMark)
	}
	return s.reload(ctx, subscriptionID)
}

// Deactivate pauses a deployed subscription's ledger entry without
// resetting its quota. The entry stays on the user, deactivated, and a
// later Deploy to the same user resumes it.
func (s *Service) Deactivate(ctx context.Context, userID uint64, subscriptionID string) (*models.Deployment, error) {
	_, dep, errLoad := s.load(ctx, userID, subscriptionID)
	if errLoad != nil {
		return nil, errLoad
	}
	if dep.Status != models.DeploymentStatusDeployed || dep.PrivnodeUserID == nil {
		return nil, ErrNotDeployed
	}

	if errDeactivate := s.ledger.Deactivate(ctx, *dep.PrivnodeUserID, subscriptionID); errDeactivate != nil {
		return nil, errDeactivate
	}

	now := time.Now()
	updates := map[string]any{
		"status":         models.DeploymentStatusDeactivated,
		"deactivated_at": now,
	}
	if errMark := s.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("subscription_id = ?", subscriptionID).Updates(updates).Error; errMark != nil {
		return nil, fmt.Errorf("deployment: mark deactivated: %w", errMark)
	}
	return s.reload(ctx, subscriptionID)
}

// ListForUser returns all of a buyer's subscriptions with their
// deployment state, live ledger entries where deployed, and the
// can-deploy flag the frontend renders buttons from.
func (s *Service) ListForUser(ctx context.Context, userID uint64) ([]View, error) {
	var subs []models.Subscription
	if errList := s.db.WithContext(ctx).Preload("Plan").
		Where("buyer_user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; errList != nil {
		return nil, fmt.Errorf("deployment: list subscriptions: %w", errList)
	}

	now := time.Now()
	views := make([]View, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		var dep models.Deployment
		if errDep := s.db.WithContext(ctx).Where("subscription_id = ?", sub.SubscriptionID).
			First(&dep).Error; errDep != nil {
			if errors.Is(errDep, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("deployment: load deployment: %w", errDep)
		}

		view := View{Subscription: sub, Deployment: &dep, CanDeploy: Deployable(sub, &dep, now)}
		if dep.Status == models.DeploymentStatusDeployed && dep.PrivnodeUserID != nil {
			entry, errEntry := s.ledger.Entry(ctx, *dep.PrivnodeUserID, sub.SubscriptionID)
			if errEntry == nil {
				view.Entry = entry
			} else if !errors.Is(errEntry, ledger.ErrEntryNotFound) && !errors.Is(errEntry, ledger.ErrUserNotFound) {
				return nil, errEntry
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) reload(ctx context.Context, subscriptionID string) (*models.Deployment, error) {
	var dep models.Deployment
	if errFind := s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).
		First(&dep).Error; errFind != nil {
		return nil, fmt.Errorf("deployment: reload deployment: %w", errFind)
	}
	return &dep, nil
}
