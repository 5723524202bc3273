// Package app assembles the service: stores, billing, redemption,
// deployment, the HTTP surface, and the expiry sweep.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/billing"
	"github.com/privnode/subscription-station/internal/config"
	"github.com/privnode/subscription-station/internal/db"
	"github.com/privnode/subscription-station/internal/deployment"
	"github.com/privnode/subscription-station/internal/http/api/admin"
	"github.com/privnode/subscription-station/internal/http/api/front"
	"github.com/privnode/subscription-station/internal/ledger"
	"github.com/privnode/subscription-station/internal/redemption"
	"github.com/privnode/subscription-station/internal/sweep"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate opens the platform database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, errOpen := db.Open(cfg.PlatformDSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunSweep performs a single expiry sweep pass and returns.
func RunSweep(ctx context.Context, cfg config.Config) error {
	platform, privnode, errOpen := openStores(cfg)
	if errOpen != nil {
		return errOpen
	}
	sweeper := sweep.NewSweeper(platform, ledger.NewStore(privnode))
	expired, errRun := sweeper.Run(ctx)
	if errRun != nil {
		return errRun
	}
	log.WithField("expired", expired).Info("sweep completed")
	return nil
}

// RunServer boots the API server and the periodic expiry sweep.
func RunServer(ctx context.Context, cfg config.Config) error {
	platform, privnode, errOpen := openStores(cfg)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(platform); errMigrate != nil {
		return errMigrate
	}

	ledgerStore := ledger.NewStore(privnode)
	deploySvc := deployment.NewService(platform, ledgerStore)
	engine := redemption.NewEngine(platform, cfg.Redemption.JWTSecret)

	var checkout *billing.Checkout
	var webhookHandler *billing.WebhookHandler
	if cfg.Stripe.SecretKey != "" {
		client := billing.NewClient(cfg.Stripe.SecretKey)
		checkout = billing.NewCheckout(platform, client)
		sync := billing.NewSynchronizer(ledgerStore)
		webhookHandler = billing.NewWebhookHandler(platform, client, sync, cfg.Stripe.WebhookSecret)
	} else {
		log.Warn("stripe secret key not configured, checkout and webhook disabled")
	}

	router := buildRouter(platform, deploySvc, engine, checkout, webhookHandler)

	sweeper := sweep.NewSweeper(platform, ledgerStore)
	go sweeper.RunPeriodic(ctx, cfg.Sweep.Interval)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("server shutdown failed")
		}
	}()

	log.WithField("addr", addr).Info("server listening")
	if errServe := server.ListenAndServe(); errServe != nil && errServe != http.ErrServerClosed {
		return errServe
	}
	return nil
}

func openStores(cfg config.Config) (platform, privnode *gorm.DB, err error) {
	platform, err = db.Open(cfg.PlatformDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open platform store: %w", err)
	}
	privnode, err = db.Open(cfg.PrivnodeDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open privnode store: %w", err)
	}
	return platform, privnode, nil
}

func buildRouter(
	platform *gorm.DB,
	deploySvc *deployment.Service,
	engine *redemption.Engine,
	checkout *billing.Checkout,
	webhookHandler *billing.WebhookHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	front.RegisterFrontRoutes(r, platform, deploySvc, engine, checkout)
	admin.RegisterAdminRoutes(r, platform, engine)
	if webhookHandler != nil {
		r.POST("/webhooks/stripe", webhookHandler.Handle)
	}
	return r
}
