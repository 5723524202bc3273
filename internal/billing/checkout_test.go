package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/privnode/subscription-station/internal/models"
	stripe "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

type stubCheckoutClient struct {
	customers     int
	subscriptions int
	lastPrice     string
	lastMetaSubID string
}

func (s *stubCheckoutClient) CreateCustomer(_ context.Context, email, _ string) (*stripe.Customer, error) {
	s.customers++
	return &stripe.Customer{ID: "cus_test", Email: email}, nil
}

func (s *stubCheckoutClient) CreateSubscription(_ context.Context, _, priceID, subscriptionID string) (*stripe.Subscription, error) {
	s.subscriptions++
	s.lastPrice = priceID
	s.lastMetaSubID = subscriptionID
	return s.incompleteSubscription("cs_fresh"), nil
}

func (s *stubCheckoutClient) RetrieveSubscription(context.Context, string) (*stripe.Subscription, error) {
	return s.incompleteSubscription("cs_reused"), nil
}

func (s *stubCheckoutClient) incompleteSubscription(secret string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:     "sub_stripe_pending",
		Status: stripe.SubscriptionStatusIncomplete,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{CurrentPeriodEnd: 8888}},
		},
		LatestInvoice: &stripe.Invoice{
			ConfirmationSecret: &stripe.InvoiceConfirmationSecret{ClientSecret: secret},
		},
	}
}

func seedBuyer(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := models.User{Email: "buyer@example.com", Name: "Buyer"}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return &user
}

func seedPurchasablePlan(t *testing.T, db *gorm.DB) *models.Plan {
	t.Helper()
	plan := models.Plan{
		PlanID: "pln_0123456789abcdef", Name: "Pro",
		Limit5hUnits: 5, Limit7dUnits: 25,
		StripePriceID: "price_test", IsActive: true,
	}
	if errCreate := db.Create(&plan).Error; errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	return &plan
}

func TestCreateOrReusePayment(t *testing.T) {
	db := openPlatformDB(t)
	user := seedBuyer(t, db)
	plan := seedPurchasablePlan(t, db)
	client := &stubCheckoutClient{}
	checkout := NewCheckout(db, client)
	ctx := context.Background()

	result, errCreate := checkout.CreateOrReusePayment(ctx, user.ID, plan.PlanID)
	if errCreate != nil {
		t.Fatalf("create payment: %v", errCreate)
	}
	if result.ClientSecret != "cs_fresh" || result.Reused {
		t.Fatalf("unexpected result: %+v", result)
	}
	if client.customers != 1 {
		t.Fatalf("expected one customer created, got %d", client.customers)
	}
	if client.lastPrice != "price_test" || client.lastMetaSubID != result.SubscriptionID {
		t.Fatalf("stripe call wired wrong: %+v", client)
	}

	var sub models.Subscription
	if errFind := db.Where("subscription_id = ?", result.SubscriptionID).First(&sub).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != "sub_stripe_pending" {
		t.Fatalf("stripe reference missing: %+v", sub)
	}
	if sub.StripeStatus == nil || *sub.StripeStatus != models.StripeStatusIncomplete {
		t.Fatalf("expected incomplete status, got %v", sub.StripeStatus)
	}
	if sub.CurrentPeriodEnd == nil || *sub.CurrentPeriodEnd != 8888 {
		t.Fatalf("expected synced period end, got %v", sub.CurrentPeriodEnd)
	}
	var dep models.Deployment
	if errFind := db.Where("subscription_id = ?", result.SubscriptionID).First(&dep).Error; errFind != nil {
		t.Fatalf("deployment row: %v", errFind)
	}
	if dep.Status != models.DeploymentStatusOrdered {
		t.Fatalf("expected ordered deployment, got %q", dep.Status)
	}

	// Buying the same plan again reuses the pending purchase.
	again, errAgain := checkout.CreateOrReusePayment(ctx, user.ID, plan.PlanID)
	if errAgain != nil {
		t.Fatalf("reuse payment: %v", errAgain)
	}
	if !again.Reused || again.SubscriptionID != result.SubscriptionID || again.ClientSecret != "cs_reused" {
		t.Fatalf("expected reuse, got %+v", again)
	}
	if client.subscriptions != 1 {
		t.Fatalf("reuse must not open a second stripe subscription, got %d", client.subscriptions)
	}
	if client.customers != 1 {
		t.Fatalf("customer must be created once, got %d", client.customers)
	}
}

func TestCreateOrReusePayment_Gates(t *testing.T) {
	db := openPlatformDB(t)
	user := seedBuyer(t, db)
	checkout := NewCheckout(db, &stubCheckoutClient{})
	ctx := context.Background()

	if _, errMissing := checkout.CreateOrReusePayment(ctx, user.ID, "pln_missing000000000"); !errors.Is(errMissing, ErrPlanNotFound) {
		t.Fatalf("expected plan_not_found, got %v", errMissing)
	}
	if _, errUser := checkout.CreateOrReusePayment(ctx, 999, "pln_whatever"); !errors.Is(errUser, ErrUserNotFound) {
		t.Fatalf("expected user_not_found, got %v", errUser)
	}

	inactive := models.Plan{
		PlanID: "pln_inactive00000000", Name: "Old",
		Limit5hUnits: 1, Limit7dUnits: 1,
		StripePriceID: "price_old", IsActive: false,
	}
	if errCreate := db.Create(&inactive).Error; errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	if _, errInactive := checkout.CreateOrReusePayment(ctx, user.ID, inactive.PlanID); !errors.Is(errInactive, ErrPlanNotPurchasable) {
		t.Fatalf("expected plan_not_purchasable, got %v", errInactive)
	}

	free := models.Plan{
		PlanID: "pln_nopriceid0000000", Name: "Grant only",
		Limit5hUnits: 1, Limit7dUnits: 1, IsActive: true,
	}
	if errCreate := db.Create(&free).Error; errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	if _, errFree := checkout.CreateOrReusePayment(ctx, user.ID, free.PlanID); !errors.Is(errFree, ErrPlanNotPurchasable) {
		t.Fatalf("expected plan_not_purchasable for priceless plan, got %v", errFree)
	}
}
