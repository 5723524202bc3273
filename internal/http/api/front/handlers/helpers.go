package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/privnode/subscription-station/internal/billing"
	"github.com/privnode/subscription-station/internal/deployment"
	"github.com/privnode/subscription-station/internal/ledger"
	"github.com/privnode/subscription-station/internal/redemption"
	"github.com/privnode/subscription-station/internal/token"
)

// ContextUserIDKey is the gin context key holding the authenticated
// user ID set by the identity middleware.
const ContextUserIDKey = "auth_user_id"

func getUserID(c *gin.Context) uint64 {
	value, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0
	}
	id, ok := value.(uint64)
	if !ok {
		return 0
	}
	return id
}

// statusForError maps service error codes onto HTTP statuses. Unmapped
// errors surface as internal errors with a generic body.
func statusForError(err error) int {
	switch {
	case errors.Is(err, deployment.ErrSubscriptionNotFound),
		errors.Is(err, billing.ErrPlanNotFound),
		errors.Is(err, billing.ErrUserNotFound),
		errors.Is(err, redemption.ErrPlanNotFound),
		errors.Is(err, redemption.ErrCodeNotFound),
		errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, ledger.ErrNotFoundOnSource):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrIdentifierRequired),
		errors.Is(err, redemption.ErrInvalidDuration),
		errors.Is(err, redemption.ErrInvalidMaxUses),
		errors.Is(err, token.ErrFormatInvalid),
		errors.Is(err, token.ErrDecodeFailed),
		errors.Is(err, token.ErrAlgInvalid),
		errors.Is(err, token.ErrSignatureInvalid),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrNotActive),
		errors.Is(err, token.ErrIssuerInvalid),
		errors.Is(err, token.ErrAudienceInvalid):
		return http.StatusBadRequest
	case errors.Is(err, deployment.ErrAlreadyDeployed),
		errors.Is(err, deployment.ErrUseTransfer),
		errors.Is(err, deployment.ErrNotDeployed),
		errors.Is(err, deployment.ErrNotDeployable),
		errors.Is(err, deployment.ErrSubscriptionExpired),
		errors.Is(err, ledger.ErrNotDeactivated),
		errors.Is(err, ledger.ErrAlreadyOnTarget),
		errors.Is(err, redemption.ErrCodeRevoked),
		errors.Is(err, redemption.ErrCodeExpired),
		errors.Is(err, redemption.ErrCodeMismatch),
		errors.Is(err, redemption.ErrNoUsesLeft),
		errors.Is(err, billing.ErrPlanNotPurchasable):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes the error code as the response body when the
// status is a client error, hiding internals behind a generic message
// otherwise.
func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
