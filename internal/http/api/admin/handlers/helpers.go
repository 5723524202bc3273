package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/redemption"
)

// ContextAdminUserIDKey is the gin context key holding the
// authenticated admin user ID.
const ContextAdminUserIDKey = "admin_user_id"

func getAdminUserID(c *gin.Context) uint64 {
	value, ok := c.Get(ContextAdminUserIDKey)
	if !ok {
		return 0
	}
	id, ok := value.(uint64)
	if !ok {
		return 0
	}
	return id
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, redemption.ErrPlanNotFound),
		errors.Is(err, redemption.ErrCodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, redemption.ErrInvalidDuration),
		errors.Is(err, redemption.ErrInvalidMaxUses):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
