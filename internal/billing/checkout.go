package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/privnode/subscription-station/internal/ids"
	"github.com/privnode/subscription-station/internal/models"
	"gorm.io/gorm"
)

// Checkout error codes. The message is the stable code.
var (
	ErrPlanNotFound       = errors.New("plan_not_found")
	ErrPlanNotPurchasable = errors.New("plan_not_purchasable")
	ErrUserNotFound       = errors.New("user_not_found")
)

// PaymentIntentResult carries what the frontend needs to collect
// payment for a pending subscription.
type PaymentIntentResult struct {
	SubscriptionID string `json:"subscription_id"`
	ClientSecret   string `json:"client_secret"`
	Reused         bool   `json:"reused"`
}

// Checkout creates pending subscriptions and their Stripe counterparts.
type Checkout struct {
	db     *gorm.DB
	client Client
}

// NewCheckout constructs a Checkout on the platform store.
func NewCheckout(db *gorm.DB, client Client) *Checkout {
	return &Checkout{db: db, client: client}
}

// EnsureCustomer returns the user's Stripe customer ID, creating the
// customer on first use and persisting the reference.
func (c *Checkout) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	customer, errCreate := c.client.CreateCustomer(ctx, user.Email, user.Name)
	if errCreate != nil {
		return "", errCreate
	}
	if errSave := c.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Update("stripe_customer_id", customer.ID).Error; errSave != nil {
		return "", fmt.Errorf("billing: save customer id: %w", errSave)
	}
	user.StripeCustomerID = &customer.ID
	return customer.ID, nil
}

// CreateOrReusePayment starts a purchase of a plan. An existing
// incomplete subscription for the same plan is reused: its payment
// secret is re-fetched instead of opening a second Stripe subscription.
func (c *Checkout) CreateOrReusePayment(ctx context.Context, userID uint64, planID string) (*PaymentIntentResult, error) {
	var user models.User
	if errFind := c.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("billing: load user: %w", errFind)
	}

	var plan models.Plan
	if errFind := c.db.WithContext(ctx).Where("plan_id = ?", planID).First(&plan).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("billing: load plan: %w", errFind)
	}
	if !plan.IsActive || plan.StripePriceID == "" {
		return nil, ErrPlanNotPurchasable
	}

	// Reuse a pending purchase of the same plan when one exists.
	var pending models.Subscription
	errPending := c.db.WithContext(ctx).
		Where("buyer_user_id = ? AND plan_id = ? AND stripe_status = ? AND expired_at IS NULL",
			userID, planID, models.StripeStatusIncomplete).
		First(&pending).Error
	if errPending == nil && pending.StripeSubscriptionID != nil {
		ss, errGet := c.client.RetrieveSubscription(ctx, *pending.StripeSubscriptionID)
		if errGet != nil {
			return nil, errGet
		}
		return &PaymentIntentResult{
			SubscriptionID: pending.SubscriptionID,
			ClientSecret:   ClientSecret(ss),
			Reused:         true,
		}, nil
	}
	if errPending != nil && !errors.Is(errPending, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("billing: find pending subscription: %w", errPending)
	}

	customerID, errCustomer := c.EnsureCustomer(ctx, &user)
	if errCustomer != nil {
		return nil, errCustomer
	}

	sub := models.Subscription{
		SubscriptionID:   ids.NewSubscriptionID(),
		BuyerUserID:      userID,
		PlanID:           plan.PlanID,
		StripeCustomerID: &customerID,
		AutoRenewEnabled: true,
	}
	errTx := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&sub).Error; errCreate != nil {
			return fmt.Errorf("billing: create subscription: %w", errCreate)
		}
		deployment := models.Deployment{
			SubscriptionID: sub.SubscriptionID,
			Status:         models.DeploymentStatusOrdered,
		}
		if errCreate := tx.Create(&deployment).Error; errCreate != nil {
			return fmt.Errorf("billing: create deployment: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	ss, errCreate := c.client.CreateSubscription(ctx, customerID, plan.StripePriceID, sub.SubscriptionID)
	if errCreate != nil {
		return nil, errCreate
	}

	status := string(ss.Status)
	updates := map[string]any{
		"stripe_subscription_id": ss.ID,
		"stripe_status":          status,
		"auto_renew_enabled":     AutoRenewEnabled(ss),
	}
	if end := CurrentPeriodEnd(ss); end != nil {
		updates["current_period_end"] = *end
	}
	if errUpdate := c.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("subscription_id = ?", sub.SubscriptionID).Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("billing: record stripe subscription: %w", errUpdate)
	}

	return &PaymentIntentResult{
		SubscriptionID: sub.SubscriptionID,
		ClientSecret:   ClientSecret(ss),
	}, nil
}
