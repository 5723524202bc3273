package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/models"
	"github.com/privnode/subscription-station/internal/redemption"
	"github.com/privnode/subscription-station/internal/token"
	"gorm.io/gorm"
)

// RedemptionCodeAdminHandler manages redemption codes.
type RedemptionCodeAdminHandler struct {
	db     *gorm.DB
	engine *redemption.Engine
}

// NewRedemptionCodeAdminHandler constructs a RedemptionCodeAdminHandler.
func NewRedemptionCodeAdminHandler(db *gorm.DB, engine *redemption.Engine) *RedemptionCodeAdminHandler {
	return &RedemptionCodeAdminHandler{db: db, engine: engine}
}

type issueCodeRequest struct {
	PlanID       string `json:"plan_id"`
	DurationDays int    `json:"duration_days"`
	MaxUses      int    `json:"max_uses"`
	ValidDays    int    `json:"valid_days"`

	CustomPlanName        string `json:"custom_plan_name"`
	CustomPlanDescription string `json:"custom_plan_description"`
	CustomLimit5hUnits    *int64 `json:"custom_limit_5h_units"`
	CustomLimit7dUnits    *int64 `json:"custom_limit_7d_units"`
}

// Issue mints a new redemption code. The signed token is returned once
// and not stored; only its row is.
func (h *RedemptionCodeAdminHandler) Issue(c *gin.Context) {
	actorID := getAdminUserID(c)
	if actorID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body issueCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req := redemption.IssueRequest{
		PlanID:       body.PlanID,
		DurationDays: body.DurationDays,
		MaxUses:      body.MaxUses,
		ValidDays:    body.ValidDays,
	}
	if body.CustomPlanName != "" || body.CustomPlanDescription != "" ||
		body.CustomLimit5hUnits != nil || body.CustomLimit7dUnits != nil {
		req.Custom = &token.Overrides{
			PlanName:        body.CustomPlanName,
			PlanDescription: body.CustomPlanDescription,
			Limit5hUnits:    body.CustomLimit5hUnits,
			Limit7dUnits:    body.CustomLimit7dUnits,
		}
	}

	result, errIssue := h.engine.Issue(c.Request.Context(), actorID, req)
	if errIssue != nil {
		respondError(c, errIssue)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": result.Token,
		"jti":  result.Code.JTI,
	})
}

// List returns issued codes, newest first.
func (h *RedemptionCodeAdminHandler) List(c *gin.Context) {
	var codes []models.RedemptionCode
	if errFind := h.db.WithContext(c.Request.Context()).Preload("Plan").
		Order("created_at DESC").Find(&codes).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list codes failed"})
		return
	}

	out := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		item := gin.H{
			"jti":           code.JTI,
			"plan_id":       code.PlanID,
			"plan_name":     code.Plan.Name,
			"duration_days": code.DurationDays,
			"max_uses":      code.MaxUses,
			"used_count":    code.UsedCount,
			"expires_at":    code.ExpiresAt,
			"created_at":    code.CreatedAt,
			"revoked":       code.RevokedAt != nil,
		}
		if code.RevokedAt != nil {
			item["revoked_at"] = code.RevokedAt
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"codes": out})
}

// Revoke disables a code. Revoking twice is a no-op.
func (h *RedemptionCodeAdminHandler) Revoke(c *gin.Context) {
	actorID := getAdminUserID(c)
	if actorID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	jti := c.Param("jti")
	if errRevoke := h.engine.Revoke(c.Request.Context(), actorID, jti); errRevoke != nil {
		respondError(c, errRevoke)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true, "revoked_at": time.Now()})
}
