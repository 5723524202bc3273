package redemption

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	internaldb "github.com/privnode/subscription-station/internal/db"
	"github.com/privnode/subscription-station/internal/ids"
	"github.com/privnode/subscription-station/internal/models"
	"github.com/privnode/subscription-station/internal/token"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Redemption error codes. The message is the stable code.
var (
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrInvalidDuration = errors.New("invalid_duration_days")
	ErrInvalidMaxUses  = errors.New("invalid_max_uses")
	ErrCodeNotFound    = errors.New("redemption_code_not_found")
	ErrCodeRevoked     = errors.New("redemption_code_revoked")
	ErrCodeExpired     = errors.New("redemption_code_expired")
	ErrCodeMismatch    = errors.New("redemption_code_mismatch")
	ErrNoUsesLeft      = errors.New("redemption_code_no_uses_left")
)

// IssueRequest describes a redemption code to mint.
type IssueRequest struct {
	PlanID       string
	DurationDays int
	MaxUses      int
	ValidDays    int
	Custom       *token.Overrides
}

// IssueResult carries the minted code and its database row.
type IssueResult struct {
	Token string
	Code  *models.RedemptionCode
}

// RedeemResult carries the subscription created by a redeem, or the
// previously created one when the redeem was an idempotent replay.
type RedeemResult struct {
	Subscription *models.Subscription
	Replayed     bool
}

// Engine issues and redeems signed redemption codes. Codes are bearer
// JWTs whose database row is the authority for revocation and use
// counting; the token alone is never sufficient to redeem.
type Engine struct {
	db     *gorm.DB
	secret string
}

// NewEngine constructs an Engine on the platform store.
func NewEngine(db *gorm.DB, secret string) *Engine {
	return &Engine{db: db, secret: secret}
}

func newJTI() (string, error) {
	buf := make([]byte, 24)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("redemption: generate jti: %w", errRead)
	}
	return "rcd_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue mints a new redemption code for a plan and records its row. The
// returned token embeds the plan, duration and use limit; the row
// tracks revocation and consumption.
func (e *Engine) Issue(ctx context.Context, actorUserID uint64, req IssueRequest) (*IssueResult, error) {
	if req.DurationDays <= 0 {
		return nil, ErrInvalidDuration
	}
	if req.MaxUses <= 0 {
		return nil, ErrInvalidMaxUses
	}
	validDays := req.ValidDays
	if validDays <= 0 {
		validDays = req.DurationDays
	}

	var plan models.Plan
	if errFind := e.db.WithContext(ctx).Where("plan_id = ?", req.PlanID).First(&plan).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("redemption: load plan: %w", errFind)
	}

	jti, errJTI := newJTI()
	if errJTI != nil {
		return nil, errJTI
	}

	now := time.Now()
	expiresAt := now.AddDate(0, 0, validDays)
	claims := token.Claims{
		PlanID:       plan.PlanID,
		DurationDays: req.DurationDays,
		MaxUses:      req.MaxUses,
		Custom:       req.Custom,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    token.Issuer,
			Audience:  jwt.ClaimStrings{token.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, errSign := token.Sign(&claims, e.secret)
	if errSign != nil {
		return nil, errSign
	}

	code := models.RedemptionCode{
		JTI:             jti,
		CreatedByUserID: actorUserID,
		PlanID:          plan.PlanID,
		DurationDays:    req.DurationDays,
		MaxUses:         req.MaxUses,
		ExpiresAt:       expiresAt,
	}
	if req.Custom != nil {
		if req.Custom.PlanName != "" {
			code.CustomPlanName = &req.Custom.PlanName
		}
		if req.Custom.PlanDescription != "" {
			code.CustomPlanDescription = &req.Custom.PlanDescription
		}
		code.CustomLimit5hUnits = req.Custom.Limit5hUnits
		code.CustomLimit7dUnits = req.Custom.Limit7dUnits
	}

	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&code).Error; errCreate != nil {
			return fmt.Errorf("redemption: create code: %w", errCreate)
		}
		return writeAudit(tx, &actorUserID, "redemption_code.issue", nil, &plan.PlanID, map[string]any{
			"jti":           jti,
			"duration_days": req.DurationDays,
			"max_uses":      req.MaxUses,
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	return &IssueResult{Token: signed, Code: &code}, nil
}

// Revoke marks a code unusable. Already-revoked codes are left as is.
func (e *Engine) Revoke(ctx context.Context, actorUserID uint64, jti string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, errLoad := lockCode(tx, jti)
		if errLoad != nil {
			return errLoad
		}
		if code.RevokedAt != nil {
			return nil
		}
		now := time.Now()
		if errUpdate := tx.Model(&models.RedemptionCode{}).Where("jti = ?", jti).
			Update("revoked_at", now).Error; errUpdate != nil {
			return fmt.Errorf("redemption: revoke code: %w", errUpdate)
		}
		return writeAudit(tx, &actorUserID, "redemption_code.revoke", nil, &code.PlanID, map[string]any{
			"jti": jti,
		})
	})
}

// Redeem verifies a code token and converts one use into a subscription
// for the caller. A repeat redeem by the same user returns the original
// subscription without consuming another use.
func (e *Engine) Redeem(ctx context.Context, userID uint64, rawToken string) (*RedeemResult, error) {
	claims, errVerify := token.Verify(rawToken, e.secret, time.Now(), token.Issuer, token.Audience)
	if errVerify != nil {
		return nil, errVerify
	}

	var result RedeemResult
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, errLoad := lockCode(tx, claims.ID)
		if errLoad != nil {
			return errLoad
		}
		if code.RevokedAt != nil {
			return ErrCodeRevoked
		}
		if !time.Now().Before(code.ExpiresAt) {
			return ErrCodeExpired
		}
		if !claimsMatchRow(claims, code) {
			return ErrCodeMismatch
		}

		var record models.RedemptionRecord
		errRecord := tx.Where("jti = ? AND redeemed_by_user_id = ?", code.JTI, userID).First(&record).Error
		if errRecord == nil {
			var sub models.Subscription
			if errSub := tx.Preload("Plan").Where("subscription_id = ?", record.SubscriptionID).
				First(&sub).Error; errSub != nil {
				return fmt.Errorf("redemption: load replayed subscription: %w", errSub)
			}
			result = RedeemResult{Subscription: &sub, Replayed: true}
			return nil
		}
		if !errors.Is(errRecord, gorm.ErrRecordNotFound) {
			return fmt.Errorf("redemption: load record: %w", errRecord)
		}

		if code.UsedCount >= code.MaxUses {
			return ErrNoUsesLeft
		}

		now := time.Now()
		periodEnd := now.AddDate(0, 0, code.DurationDays).Unix()
		sub := models.Subscription{
			SubscriptionID:        ids.NewSubscriptionID(),
			BuyerUserID:           userID,
			PlanID:                code.PlanID,
			AutoRenewEnabled:      false,
			CurrentPeriodEnd:      &periodEnd,
			RedeemedCodeJTI:       &code.JTI,
			CustomPlanName:        code.CustomPlanName,
			CustomPlanDescription: code.CustomPlanDescription,
			CustomLimit5hUnits:    code.CustomLimit5hUnits,
			CustomLimit7dUnits:    code.CustomLimit7dUnits,
		}
		if errCreate := tx.Create(&sub).Error; errCreate != nil {
			return fmt.Errorf("redemption: create subscription: %w", errCreate)
		}
		deployment := models.Deployment{
			SubscriptionID: sub.SubscriptionID,
			Status:         models.DeploymentStatusOrdered,
		}
		if errCreate := tx.Create(&deployment).Error; errCreate != nil {
			return fmt.Errorf("redemption: create deployment: %w", errCreate)
		}
		record = models.RedemptionRecord{
			JTI:              code.JTI,
			RedeemedByUserID: userID,
			SubscriptionID:   sub.SubscriptionID,
		}
		if errCreate := tx.Create(&record).Error; errCreate != nil {
			return fmt.Errorf("redemption: create record: %w", errCreate)
		}
		if errUpdate := tx.Model(&models.RedemptionCode{}).Where("jti = ?", code.JTI).
			Update("used_count", gorm.Expr("used_count + 1")).Error; errUpdate != nil {
			return fmt.Errorf("redemption: count use: %w", errUpdate)
		}
		if errAudit := writeAudit(tx, &userID, "redemption_code.redeem", &sub.SubscriptionID, &code.PlanID, map[string]any{
			"jti": code.JTI,
		}); errAudit != nil {
			return errAudit
		}

		if errSub := tx.Preload("Plan").Where("subscription_id = ?", sub.SubscriptionID).
			First(&sub).Error; errSub != nil {
			return fmt.Errorf("redemption: reload subscription: %w", errSub)
		}
		result = RedeemResult{Subscription: &sub}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &result, nil
}

func lockCode(tx *gorm.DB, jti string) (*models.RedemptionCode, error) {
	var code models.RedemptionCode
	if errFind := internaldb.WithRowLock(tx).Where("jti = ?", jti).First(&code).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("redemption: load code: %w", errFind)
	}
	return &code, nil
}

// claimsMatchRow rejects tokens whose payload disagrees with the stored
// code row. A valid signature is not enough when the row was edited or
// the token predates a reissue.
func claimsMatchRow(claims *token.Claims, code *models.RedemptionCode) bool {
	if claims.PlanID != code.PlanID ||
		claims.DurationDays != code.DurationDays ||
		claims.MaxUses != code.MaxUses {
		return false
	}
	var custom token.Overrides
	if claims.Custom != nil {
		custom = *claims.Custom
	}
	return custom.PlanName == derefString(code.CustomPlanName) &&
		custom.PlanDescription == derefString(code.CustomPlanDescription) &&
		equalInt64Ptr(custom.Limit5hUnits, code.CustomLimit5hUnits) &&
		equalInt64Ptr(custom.Limit7dUnits, code.CustomLimit7dUnits)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func writeAudit(tx *gorm.DB, actor *uint64, action string, subjectSub, subjectPlan *string, meta map[string]any) error {
	payload, errMarshal := json.Marshal(meta)
	if errMarshal != nil {
		return fmt.Errorf("redemption: marshal audit meta: %w", errMarshal)
	}
	entry := models.AuditLog{
		ActorUserID:           actor,
		Action:                action,
		SubjectSubscriptionID: subjectSub,
		SubjectPlanID:         subjectPlan,
		Meta:                  datatypes.JSON(payload),
	}
	if errCreate := tx.Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("redemption: write audit: %w", errCreate)
	}
	return nil
}
