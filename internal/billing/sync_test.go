package billing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	internaldb "github.com/privnode/subscription-station/internal/db"
	"github.com/privnode/subscription-station/internal/ledger"
	"github.com/privnode/subscription-station/internal/models"
	stripe "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

func openPlatformDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "platform.db")
	conn, errOpen := internaldb.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := internaldb.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func openLedger(t *testing.T) (*gorm.DB, *ledger.Store) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "privnode.db")
	conn, errOpen := internaldb.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open privnode db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&ledger.User{}); errMigrate != nil {
		t.Fatalf("migrate privnode: %v", errMigrate)
	}
	return conn, ledger.NewStore(conn)
}

func seedStripeSubscription(t *testing.T, db *gorm.DB, stripeSubID string) *models.Subscription {
	t.Helper()
	plan := models.Plan{PlanID: "pln_0123456789abcdef", Name: "Pro", Limit5hUnits: 5, Limit7dUnits: 25, IsActive: true}
	if errCreate := db.Where("plan_id = ?", plan.PlanID).FirstOrCreate(&plan).Error; errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	status := models.StripeStatusIncomplete
	sub := models.Subscription{
		SubscriptionID:       "sub_0123456789abcdef",
		BuyerUserID:          10,
		PlanID:               plan.PlanID,
		StripeSubscriptionID: &stripeSubID,
		StripeStatus:         &status,
	}
	if errCreate := db.Create(&sub).Error; errCreate != nil {
		t.Fatalf("seed subscription: %v", errCreate)
	}
	dep := models.Deployment{SubscriptionID: sub.SubscriptionID, Status: models.DeploymentStatusOrdered}
	if errCreate := db.Create(&dep).Error; errCreate != nil {
		t.Fatalf("seed deployment: %v", errCreate)
	}
	return &sub
}

func TestApply_UpdatesStatusAndPeriod(t *testing.T) {
	db := openPlatformDB(t)
	seedStripeSubscription(t, db, "sub_stripe_live")
	sync := NewSynchronizer(nil)

	ss := &stripe.Subscription{
		ID:     "sub_stripe_live",
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{CurrentPeriodEnd: 4200}},
		},
	}
	if errApply := sync.Apply(context.Background(), db, ss); errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}

	var sub models.Subscription
	if errFind := db.Where("subscription_id = ?", "sub_0123456789abcdef").First(&sub).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if sub.StripeStatus == nil || *sub.StripeStatus != models.StripeStatusActive {
		t.Fatalf("expected active status, got %+v", sub.StripeStatus)
	}
	if sub.CurrentPeriodEnd == nil || *sub.CurrentPeriodEnd != 4200 {
		t.Fatalf("expected period end 4200, got %v", sub.CurrentPeriodEnd)
	}
	if !sub.AutoRenewEnabled {
		t.Fatal("expected auto renew on")
	}
	if sub.ExpiredAt != nil {
		t.Fatal("active status must not expire the subscription")
	}
}

func TestApply_TerminalStatusExpiresAndRetracts(t *testing.T) {
	db := openPlatformDB(t)
	privnode, store := openLedger(t)
	seedStripeSubscription(t, db, "sub_stripe_dead")
	sync := NewSynchronizer(store)
	ctx := context.Background()

	// Place a ledger entry on a privnode user and mark the deployment.
	user := ledger.User{Username: "alice", Group: "default"}
	if errCreate := privnode.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed privnode user: %v", errCreate)
	}
	grant := func(owner uint64) ledger.Entry {
		return ledger.NewEntry(ledger.Grant{
			SubscriptionID: "sub_0123456789abcdef", Owner: owner,
			Limit5hUnits: 1, Limit7dUnits: 1, Now: 100, EndAt: 9000,
		})
	}
	if _, errDeploy := store.Deploy(ctx, "alice", "sub_0123456789abcdef", grant, 100, 9000, true); errDeploy != nil {
		t.Fatalf("seed ledger entry: %v", errDeploy)
	}
	if errMark := db.Model(&models.Deployment{}).
		Where("subscription_id = ?", "sub_0123456789abcdef").
		Updates(map[string]any{
			"status":           models.DeploymentStatusDeployed,
			"privnode_user_id": user.ID,
		}).Error; errMark != nil {
		t.Fatalf("mark deployment: %v", errMark)
	}

	ss := &stripe.Subscription{ID: "sub_stripe_dead", Status: stripe.SubscriptionStatusCanceled}
	if errApply := sync.Apply(ctx, db, ss); errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}

	var sub models.Subscription
	if errFind := db.Where("subscription_id = ?", "sub_0123456789abcdef").First(&sub).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if sub.ExpiredAt == nil {
		t.Fatal("terminal status must set expired_at")
	}
	firstExpiry := *sub.ExpiredAt

	var dep models.Deployment
	if errFind := db.Where("subscription_id = ?", "sub_0123456789abcdef").First(&dep).Error; errFind != nil {
		t.Fatalf("reload deployment: %v", errFind)
	}
	if dep.Status != models.DeploymentStatusExpired {
		t.Fatalf("expected expired deployment, got %q", dep.Status)
	}
	if _, errEntry := store.Entry(ctx, user.ID, "sub_0123456789abcdef"); !errors.Is(errEntry, ledger.ErrEntryNotFound) {
		t.Fatalf("expected ledger entry retracted, got %v", errEntry)
	}

	// Re-applying the terminal event is idempotent.
	time.Sleep(10 * time.Millisecond)
	if errApply := sync.Apply(ctx, db, ss); errApply != nil {
		t.Fatalf("reapply: %v", errApply)
	}
	if errFind := db.Where("subscription_id = ?", "sub_0123456789abcdef").First(&sub).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if !sub.ExpiredAt.Equal(firstExpiry) {
		t.Fatal("expired_at is stamped once")
	}
}

func TestApply_UnknownSubscription(t *testing.T) {
	db := openPlatformDB(t)
	sync := NewSynchronizer(nil)
	ss := &stripe.Subscription{ID: "sub_stripe_stranger", Status: stripe.SubscriptionStatusActive}
	if errApply := sync.Apply(context.Background(), db, ss); !errors.Is(errApply, ErrUnknownStripeSubscription) {
		t.Fatalf("expected stripe_subscription_unknown, got %v", errApply)
	}
}
