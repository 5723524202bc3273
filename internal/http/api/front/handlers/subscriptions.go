package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/deployment"
	"github.com/privnode/subscription-station/internal/models"
)

// SubscriptionFrontHandler serves a user's subscriptions and drives
// their deployment lifecycle.
type SubscriptionFrontHandler struct {
	svc *deployment.Service
}

// NewSubscriptionFrontHandler constructs a SubscriptionFrontHandler.
func NewSubscriptionFrontHandler(svc *deployment.Service) *SubscriptionFrontHandler {
	return &SubscriptionFrontHandler{svc: svc}
}

// List returns the caller's subscriptions with deployment state and,
// where deployed, the live quota entry.
func (h *SubscriptionFrontHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	views, errList := h.svc.ListForUser(c.Request.Context(), userID)
	if errList != nil {
		respondError(c, errList)
		return
	}

	out := make([]gin.H, 0, len(views))
	for _, view := range views {
		out = append(out, subscriptionJSON(view))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func subscriptionJSON(view deployment.View) gin.H {
	sub := view.Subscription
	dep := view.Deployment
	item := gin.H{
		"subscription_id":    sub.SubscriptionID,
		"plan_id":            sub.PlanID,
		"plan_name":          sub.EffectivePlanName(),
		"limit_5h_units":     sub.EffectiveLimit5hUnits(),
		"limit_7d_units":     sub.EffectiveLimit7dUnits(),
		"auto_renew_enabled": sub.AutoRenewEnabled,
		"current_period_end": sub.CurrentPeriodEnd,
		"status":             dep.Status,
		"can_deploy":         view.CanDeploy,
		"created_at":         sub.CreatedAt,
	}
	if sub.StripeStatus != nil {
		item["stripe_status"] = *sub.StripeStatus
	}
	if sub.ExpiredAt != nil {
		item["expired_at"] = sub.ExpiredAt
	}
	if dep.PrivnodeUsername != nil {
		item["privnode_username"] = *dep.PrivnodeUsername
	}
	if view.Entry != nil {
		item["quota"] = view.Entry
	}
	return item
}

// targetRequest is the body for deploy and transfer calls.
type targetRequest struct {
	Identifier string `json:"identifier"`
}

// Deploy places a subscription on a Privnode user.
func (h *SubscriptionFrontHandler) Deploy(c *gin.Context) {
	h.mutate(c, func(userID uint64, subscriptionID, identifier string) (*models.Deployment, error) {
		return h.svc.Deploy(c.Request.Context(), userID, subscriptionID, identifier)
	}, true)
}

// Transfer moves a deployed subscription to another Privnode user.
func (h *SubscriptionFrontHandler) Transfer(c *gin.Context) {
	h.mutate(c, func(userID uint64, subscriptionID, identifier string) (*models.Deployment, error) {
		return h.svc.Transfer(c.Request.Context(), userID, subscriptionID, identifier)
	}, true)
}

// Deactivate pauses a deployed subscription, preserving its quota.
func (h *SubscriptionFrontHandler) Deactivate(c *gin.Context) {
	h.mutate(c, func(userID uint64, subscriptionID, _ string) (*models.Deployment, error) {
		return h.svc.Deactivate(c.Request.Context(), userID, subscriptionID)
	}, false)
}

func (h *SubscriptionFrontHandler) mutate(c *gin.Context, op func(uint64, string, string) (*models.Deployment, error), needsTarget bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	subscriptionID := c.Param("id")

	var body targetRequest
	if needsTarget {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	dep, errOp := op(userID, subscriptionID, body.Identifier)
	if errOp != nil {
		respondError(c, errOp)
		return
	}
	c.JSON(http.StatusOK, deploymentJSON(dep))
}

func deploymentJSON(dep *models.Deployment) gin.H {
	out := gin.H{
		"subscription_id": dep.SubscriptionID,
		"status":          dep.Status,
	}
	if dep.PrivnodeUserID != nil {
		out["privnode_user_id"] = *dep.PrivnodeUserID
	}
	if dep.PrivnodeUsername != nil {
		out["privnode_username"] = *dep.PrivnodeUsername
	}
	for key, ts := range map[string]*time.Time{
		"deployed_at":    dep.DeployedAt,
		"deactivated_at": dep.DeactivatedAt,
		"transferred_at": dep.TransferredAt,
	} {
		if ts != nil {
			out[key] = ts
		}
	}
	return out
}
