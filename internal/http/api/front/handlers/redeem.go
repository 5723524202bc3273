package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/redemption"
)

// RedeemFrontHandler converts redemption codes into subscriptions.
type RedeemFrontHandler struct {
	engine *redemption.Engine
}

// NewRedeemFrontHandler constructs a RedeemFrontHandler.
func NewRedeemFrontHandler(engine *redemption.Engine) *RedeemFrontHandler {
	return &RedeemFrontHandler{engine: engine}
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem consumes one use of a code for the caller. Resubmitting a code
// the caller already redeemed returns the original subscription.
func (h *RedeemFrontHandler) Redeem(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body redeemRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	result, errRedeem := h.engine.Redeem(c.Request.Context(), userID, code)
	if errRedeem != nil {
		respondError(c, errRedeem)
		return
	}

	sub := result.Subscription
	c.JSON(http.StatusOK, gin.H{
		"subscription_id":    sub.SubscriptionID,
		"plan_id":            sub.PlanID,
		"plan_name":          sub.EffectivePlanName(),
		"current_period_end": sub.CurrentPeriodEnd,
		"replayed":           result.Replayed,
	})
}
