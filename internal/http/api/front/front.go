// Package front wires the user-facing API surface: plan browsing,
// checkout, redemption, and subscription deployment control.
package front

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/billing"
	"github.com/privnode/subscription-station/internal/deployment"
	handlers "github.com/privnode/subscription-station/internal/http/api/front/handlers"
	"github.com/privnode/subscription-station/internal/models"
	"github.com/privnode/subscription-station/internal/redemption"
	"gorm.io/gorm"
)

// IdentityHeader names the trusted header the fronting identity layer
// sets with the authenticated platform user ID.
const IdentityHeader = "X-Auth-User-ID"

// RegisterFrontRoutes registers user-facing routes and middleware.
func RegisterFrontRoutes(
	r *gin.Engine,
	db *gorm.DB,
	deploySvc *deployment.Service,
	engine *redemption.Engine,
	checkout *billing.Checkout,
) {
	if r == nil || db == nil {
		return
	}

	group := r.Group("/v0")
	group.Use(identityMiddleware(db))

	planHandler := handlers.NewPlanFrontHandler(db)
	group.GET("/plans", planHandler.List)

	subHandler := handlers.NewSubscriptionFrontHandler(deploySvc)
	group.GET("/subscriptions", subHandler.List)
	group.POST("/subscriptions/:id/deploy", subHandler.Deploy)
	group.POST("/subscriptions/:id/transfer", subHandler.Transfer)
	group.POST("/subscriptions/:id/deactivate", subHandler.Deactivate)

	redeemHandler := handlers.NewRedeemFrontHandler(engine)
	group.POST("/redeem", redeemHandler.Redeem)

	if checkout != nil {
		checkoutHandler := handlers.NewCheckoutFrontHandler(checkout)
		group.POST("/checkout/payment", checkoutHandler.CreatePayment)
	}
}

// identityMiddleware resolves the platform user from the trusted
// identity header and stores the ID in the request context. Requests
// without a resolvable user are rejected.
func identityMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(IdentityHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		userID, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).Where("id = ?", userID).
			First(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(handlers.ContextUserIDKey, user.ID)
		c.Next()
	}
}
