package sweep

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	internaldb "github.com/privnode/subscription-station/internal/db"
	"github.com/privnode/subscription-station/internal/ledger"
	"github.com/privnode/subscription-station/internal/models"
	"gorm.io/gorm"
)

type fixture struct {
	platform *gorm.DB
	privnode *gorm.DB
	store    *ledger.Store
	sweeper  *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	platform, errOpen := internaldb.Open("file:" + filepath.Join(dir, "platform.db"))
	if errOpen != nil {
		t.Fatalf("open platform db: %v", errOpen)
	}
	if errMigrate := internaldb.Migrate(platform); errMigrate != nil {
		t.Fatalf("migrate platform: %v", errMigrate)
	}
	privnode, errOpen := internaldb.Open("file:" + filepath.Join(dir, "privnode.db"))
	if errOpen != nil {
		t.Fatalf("open privnode db: %v", errOpen)
	}
	if errMigrate := privnode.AutoMigrate(&ledger.User{}); errMigrate != nil {
		t.Fatalf("migrate privnode: %v", errMigrate)
	}

	store := ledger.NewStore(privnode)
	return &fixture{platform: platform, privnode: privnode, store: store, sweeper: NewSweeper(platform, store)}
}

func (f *fixture) seedSubscription(t *testing.T, subID string, periodEnd int64, depStatus string, privnodeUserID *uint64) {
	t.Helper()
	plan := models.Plan{PlanID: "pln_0123456789abcdef", Name: "Pro", Limit5hUnits: 1, Limit7dUnits: 1, IsActive: true}
	if errCreate := f.platform.Where("plan_id = ?", plan.PlanID).FirstOrCreate(&plan).Error; errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	sub := models.Subscription{
		SubscriptionID:   subID,
		BuyerUserID:      10,
		PlanID:           plan.PlanID,
		CurrentPeriodEnd: &periodEnd,
	}
	if errCreate := f.platform.Create(&sub).Error; errCreate != nil {
		t.Fatalf("seed subscription: %v", errCreate)
	}
	dep := models.Deployment{SubscriptionID: subID, Status: depStatus, PrivnodeUserID: privnodeUserID}
	if errCreate := f.platform.Create(&dep).Error; errCreate != nil {
		t.Fatalf("seed deployment: %v", errCreate)
	}
}

func TestRun_ExpiresAndRetracts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := ledger.User{Username: "alice", Group: "default"}
	if errCreate := f.privnode.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed privnode user: %v", errCreate)
	}
	grant := func(owner uint64) ledger.Entry {
		return ledger.NewEntry(ledger.Grant{
			SubscriptionID: "sub_overdue000000000", Owner: owner,
			Limit5hUnits: 1, Limit7dUnits: 1, Now: 100, EndAt: 200,
		})
	}
	if _, errDeploy := f.store.Deploy(ctx, "alice", "sub_overdue000000000", grant, 100, 200, false); errDeploy != nil {
		t.Fatalf("seed ledger entry: %v", errDeploy)
	}

	past := time.Now().Add(-time.Hour).Unix()
	future := time.Now().Add(time.Hour).Unix()
	f.seedSubscription(t, "sub_overdue000000000", past, models.DeploymentStatusDeployed, &user.ID)
	f.seedSubscription(t, "sub_current000000000", future, models.DeploymentStatusDeployed, &user.ID)
	f.seedSubscription(t, "sub_neverplaced00000", past, models.DeploymentStatusOrdered, nil)

	expired, errRun := f.sweeper.Run(ctx)
	if errRun != nil {
		t.Fatalf("run: %v", errRun)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired, got %d", expired)
	}

	for _, subID := range []string{"sub_overdue000000000", "sub_neverplaced00000"} {
		var sub models.Subscription
		if errFind := f.platform.Where("subscription_id = ?", subID).First(&sub).Error; errFind != nil {
			t.Fatalf("reload %s: %v", subID, errFind)
		}
		if sub.ExpiredAt == nil {
			t.Fatalf("%s must be expired", subID)
		}
		var dep models.Deployment
		if errFind := f.platform.Where("subscription_id = ?", subID).First(&dep).Error; errFind != nil {
			t.Fatalf("reload deployment %s: %v", subID, errFind)
		}
		if dep.Status != models.DeploymentStatusExpired {
			t.Fatalf("%s deployment must be expired, got %q", subID, dep.Status)
		}
	}

	if _, errEntry := f.store.Entry(ctx, user.ID, "sub_overdue000000000"); !errors.Is(errEntry, ledger.ErrEntryNotFound) {
		t.Fatalf("expected ledger entry retracted, got %v", errEntry)
	}

	var current models.Subscription
	if errFind := f.platform.Where("subscription_id = ?", "sub_current000000000").First(&current).Error; errFind != nil {
		t.Fatalf("reload current: %v", errFind)
	}
	if current.ExpiredAt != nil {
		t.Fatal("running subscription must survive the sweep")
	}

	// A second pass finds nothing left to do.
	again, errAgain := f.sweeper.Run(ctx)
	if errAgain != nil {
		t.Fatalf("second run: %v", errAgain)
	}
	if again != 0 {
		t.Fatalf("expected idempotent sweep, got %d", again)
	}
}

func TestRun_DeactivatedEntryAlsoRetracted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := ledger.User{Username: "alice", Group: "default"}
	if errCreate := f.privnode.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed privnode user: %v", errCreate)
	}
	grant := func(owner uint64) ledger.Entry {
		return ledger.NewEntry(ledger.Grant{
			SubscriptionID: "sub_paused0000000000", Owner: owner,
			Limit5hUnits: 1, Limit7dUnits: 1, Now: 100, EndAt: 200,
		})
	}
	if _, errDeploy := f.store.Deploy(ctx, "alice", "sub_paused0000000000", grant, 100, 200, false); errDeploy != nil {
		t.Fatalf("seed ledger entry: %v", errDeploy)
	}
	if errDeactivate := f.store.Deactivate(ctx, user.ID, "sub_paused0000000000"); errDeactivate != nil {
		t.Fatalf("deactivate: %v", errDeactivate)
	}

	past := time.Now().Add(-time.Hour).Unix()
	f.seedSubscription(t, "sub_paused0000000000", past, models.DeploymentStatusDeactivated, &user.ID)

	expired, errRun := f.sweeper.Run(ctx)
	if errRun != nil {
		t.Fatalf("run: %v", errRun)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}
	if _, errEntry := f.store.Entry(ctx, user.ID, "sub_paused0000000000"); !errors.Is(errEntry, ledger.ErrEntryNotFound) {
		t.Fatalf("expected deactivated entry retracted, got %v", errEntry)
	}
}
