package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/models"
	log "github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookHandler verifies and applies Stripe webhook deliveries.
// Events are recorded exactly once; the dedup insert and the state
// sync share one transaction so a failed sync releases the event for
// Stripe's redelivery.
type WebhookHandler struct {
	db     *gorm.DB
	client Client
	sync   *Synchronizer
	secret string
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(db *gorm.DB, client Client, sync *Synchronizer, signingSecret string) *WebhookHandler {
	return &WebhookHandler{db: db, client: client, sync: sync, secret: signingSecret}
}

// Handle is the gin endpoint for POST /webhooks/stripe.
func (h *WebhookHandler) Handle(c *gin.Context) {
	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_signature"})
		return
	}
	payload, errRead := c.GetRawData()
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body_read_failed"})
		return
	}

	event, errVerify := webhook.ConstructEvent(payload, sigHeader, h.secret)
	if errVerify != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
		return
	}

	duplicate := false
	errProcess := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		record := models.StripeEvent{
			ID:      event.ID,
			Type:    string(event.Type),
			Payload: datatypes.JSON(payload),
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if result.Error != nil {
			return fmt.Errorf("billing: record event: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			duplicate = true
			return nil
		}
		return h.dispatch(c.Request.Context(), tx, &event)
	})
	if errProcess != nil {
		log.WithError(errProcess).WithField("event_id", event.ID).Error("stripe event processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event_processing_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": duplicate})
}

// dispatch resolves the Stripe subscription an event concerns, fetches
// its current state from the API, and applies it. Events with no
// subscription linkage are stored and ignored.
func (h *WebhookHandler) dispatch(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	stripeSubID, errExtract := subscriptionIDFromEvent(event)
	if errExtract != nil {
		return errExtract
	}
	if stripeSubID == "" {
		return nil
	}

	ss, errGet := h.client.RetrieveSubscription(ctx, stripeSubID)
	if errGet != nil {
		return errGet
	}
	if errApply := h.sync.Apply(ctx, tx, ss); errApply != nil {
		if errors.Is(errApply, ErrUnknownStripeSubscription) {
			log.WithField("stripe_subscription_id", stripeSubID).
				Warn("event for unknown subscription ignored")
			return nil
		}
		return errApply
	}
	return nil
}

func subscriptionIDFromEvent(event *stripe.Event) (string, error) {
	eventType := string(event.Type)
	switch {
	case strings.HasPrefix(eventType, "customer.subscription."):
		var sub stripe.Subscription
		if errDecode := json.Unmarshal(event.Data.Raw, &sub); errDecode != nil {
			return "", fmt.Errorf("billing: decode subscription event: %w", errDecode)
		}
		return sub.ID, nil
	case eventType == "invoice.paid" || eventType == "invoice.payment_succeeded" ||
		eventType == "invoice.payment_failed" || eventType == "invoice.payment_action_required":
		var invoice stripe.Invoice
		if errDecode := json.Unmarshal(event.Data.Raw, &invoice); errDecode != nil {
			return "", fmt.Errorf("billing: decode invoice event: %w", errDecode)
		}
		if invoice.Parent == nil || invoice.Parent.SubscriptionDetails == nil ||
			invoice.Parent.SubscriptionDetails.Subscription == nil {
			return "", nil
		}
		return invoice.Parent.SubscriptionDetails.Subscription.ID, nil
	}
	return "", nil
}
