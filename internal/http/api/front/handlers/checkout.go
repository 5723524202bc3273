package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/billing"
)

// CheckoutFrontHandler starts Stripe purchases.
type CheckoutFrontHandler struct {
	checkout *billing.Checkout
}

// NewCheckoutFrontHandler constructs a CheckoutFrontHandler.
func NewCheckoutFrontHandler(checkout *billing.Checkout) *CheckoutFrontHandler {
	return &CheckoutFrontHandler{checkout: checkout}
}

type checkoutRequest struct {
	PlanID string `json:"plan_id"`
}

// CreatePayment opens (or reuses) a pending purchase and returns the
// client secret the frontend confirms payment with.
func (h *CheckoutFrontHandler) CreatePayment(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body checkoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PlanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_id is required"})
		return
	}

	result, errCreate := h.checkout.CreateOrReusePayment(c.Request.Context(), userID, body.PlanID)
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	c.JSON(http.StatusOK, result)
}
