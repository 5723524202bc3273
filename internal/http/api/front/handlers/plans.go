package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/models"
	"gorm.io/gorm"
)

// PlanFrontHandler serves plan listing for the storefront.
type PlanFrontHandler struct {
	db *gorm.DB
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(db *gorm.DB) *PlanFrontHandler {
	return &PlanFrontHandler{db: db}
}

// List returns active, publicly visible plans.
func (h *PlanFrontHandler) List(c *gin.Context) {
	var plans []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_active = ? AND is_hidden = ?", true, false).
		Order("created_at ASC").
		Find(&plans).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}

	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		out = append(out, gin.H{
			"plan_id":        plan.PlanID,
			"name":           plan.Name,
			"description":    plan.Description,
			"limit_5h_units": plan.Limit5hUnits,
			"limit_7d_units": plan.Limit7dUnits,
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": out})
}
