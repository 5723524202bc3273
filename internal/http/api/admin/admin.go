// Package admin wires the operator API: plan catalogue management and
// redemption code issuance.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	handlers "github.com/privnode/subscription-station/internal/http/api/admin/handlers"
	"github.com/privnode/subscription-station/internal/models"
	"github.com/privnode/subscription-station/internal/redemption"
	"gorm.io/gorm"
)

// IdentityHeader names the trusted header the fronting identity layer
// sets with the authenticated platform user ID.
const IdentityHeader = "X-Auth-User-ID"

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, engine *redemption.Engine) {
	if r == nil || db == nil {
		return
	}

	group := r.Group("/v0/admin")
	group.Use(adminIdentityMiddleware(db))

	planHandler := handlers.NewPlanAdminHandler(db)
	group.POST("/plans", planHandler.Create)
	group.GET("/plans", planHandler.List)
	group.PUT("/plans/:id", planHandler.Update)

	codeHandler := handlers.NewRedemptionCodeAdminHandler(db, engine)
	group.POST("/redemption-codes", codeHandler.Issue)
	group.GET("/redemption-codes", codeHandler.List)
	group.DELETE("/redemption-codes/:jti", codeHandler.Revoke)
}

// adminIdentityMiddleware resolves the platform user from the trusted
// identity header and requires the admin flag.
func adminIdentityMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(IdentityHeader))
		userID, errParse := strconv.ParseUint(raw, 10, 64)
		if raw == "" || errParse != nil || userID == 0 {
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
		if !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(handlers.ContextAdminUserIDKey, user.ID)
		c.Next()
	}
}
