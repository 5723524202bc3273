package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/ids"
	"github.com/privnode/subscription-station/internal/models"
	"gorm.io/gorm"
)

// PlanAdminHandler manages the plan catalogue.
type PlanAdminHandler struct {
	db *gorm.DB
}

// NewPlanAdminHandler constructs a PlanAdminHandler.
func NewPlanAdminHandler(db *gorm.DB) *PlanAdminHandler {
	return &PlanAdminHandler{db: db}
}

type planRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Limit5hUnits    int64  `json:"limit_5h_units"`
	Limit7dUnits    int64  `json:"limit_7d_units"`
	StripeProductID string `json:"stripe_product_id"`
	StripePriceID   string `json:"stripe_price_id"`
	IsActive        *bool  `json:"is_active"`
	IsHidden        *bool  `json:"is_hidden"`
}

// Create adds a plan to the catalogue.
func (h *PlanAdminHandler) Create(c *gin.Context) {
	var body planRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if body.Limit5hUnits <= 0 || body.Limit7dUnits <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limits must be positive"})
		return
	}

	plan := models.Plan{
		PlanID:          ids.NewPlanID(),
		Name:            body.Name,
		Description:     body.Description,
		Limit5hUnits:    body.Limit5hUnits,
		Limit7dUnits:    body.Limit7dUnits,
		StripeProductID: body.StripeProductID,
		StripePriceID:   body.StripePriceID,
		IsActive:        true,
	}
	if body.IsActive != nil {
		plan.IsActive = *body.IsActive
	}
	if body.IsHidden != nil {
		plan.IsHidden = *body.IsHidden
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&plan).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create plan failed"})
		return
	}
	c.JSON(http.StatusOK, planJSON(&plan))
}

// List returns every plan, including inactive and hidden ones.
func (h *PlanAdminHandler) List(c *gin.Context) {
	var plans []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("created_at ASC").Find(&plans).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	out := make([]gin.H, 0, len(plans))
	for i := range plans {
		out = append(out, planJSON(&plans[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Update modifies plan fields. Limits on existing subscriptions are not
// retroactively changed; new grants pick up the new values.
func (h *PlanAdminHandler) Update(c *gin.Context) {
	planID := c.Param("id")
	var plan models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("plan_id = ?", planID).First(&plan).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "plan_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query plan failed"})
		return
	}

	var body planRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Name != "" {
		updates["name"] = body.Name
	}
	if body.Description != "" {
		updates["description"] = body.Description
	}
	if body.Limit5hUnits > 0 {
		updates["limit_5h_units"] = body.Limit5hUnits
	}
	if body.Limit7dUnits > 0 {
		updates["limit_7d_units"] = body.Limit7dUnits
	}
	if body.StripeProductID != "" {
		updates["stripe_product_id"] = body.StripeProductID
	}
	if body.StripePriceID != "" {
		updates["stripe_price_id"] = body.StripePriceID
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if body.IsHidden != nil {
		updates["is_hidden"] = *body.IsHidden
	}
	if len(updates) > 0 {
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(&plan).
			Updates(updates).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update plan failed"})
			return
		}
	}
	c.JSON(http.StatusOK, planJSON(&plan))
}

func planJSON(plan *models.Plan) gin.H {
	return gin.H{
		"plan_id":           plan.PlanID,
		"name":              plan.Name,
		"description":       plan.Description,
		"limit_5h_units":    plan.Limit5hUnits,
		"limit_7d_units":    plan.Limit7dUnits,
		"stripe_product_id": plan.StripeProductID,
		"stripe_price_id":   plan.StripePriceID,
		"is_active":         plan.IsActive,
		"is_hidden":         plan.IsHidden,
		"created_at":        plan.CreatedAt,
		"updated_at":        plan.UpdatedAt,
	}
}
