// Package token signs and verifies the compact HMAC tokens used as
// redemption code capabilities. Tokens are standard three-segment
// base64url JWTs; every verification failure maps to a stable,
// enumerable error code so callers can present precise diagnostics.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer and audience constants embedded in every token.
const (
	Issuer   = "privnode_subscription_manage"
	Audience = "privnode_subscription_manage"
)

// Verification error codes. The message is the stable code.
var (
	ErrFormatInvalid    = errors.New("jwt_format_invalid")
	ErrDecodeFailed     = errors.New("jwt_decode_failed")
	ErrAlgInvalid       = errors.New("jwt_alg_invalid")
	ErrSignatureInvalid = errors.New("jwt_signature_invalid")
	ErrExpired          = errors.New("jwt_expired")
	ErrNotActive        = errors.New("jwt_not_active")
	ErrIssuerInvalid    = errors.New("jwt_issuer_invalid")
	ErrAudienceInvalid  = errors.New("jwt_audience_invalid")
)

// Overrides carries optional per-code plan overrides inside the token.
type Overrides struct {
	PlanName        string `json:"plan_name,omitempty"`
	PlanDescription string `json:"plan_description,omitempty"`
	Limit5hUnits    *int64 `json:"limit_5h_units,omitempty"`
	Limit7dUnits    *int64 `json:"limit_7d_units,omitempty"`
}

// Claims is the payload of a redemption code token. The redemption
// parameters are a signed copy of the durable RedemptionCode row and are
// re-validated against it at redemption time.
type Claims struct {
	PlanID       string     `json:"plan_id"`
	DurationDays int        `json:"duration_days"`
	MaxUses      int        `json:"max_uses"`
	Custom       *Overrides `json:"custom,omitempty"`

	jwt.RegisteredClaims
}

// Sign produces a signed HS256 token for the claims.
func Sign(claims *Claims, secret string) (string, error) {
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", errSign
	}
	return signed, nil
}

// Verify checks structure, algorithm, signature, and timing claims
// against the supplied clock, plus issuer/audience when expected values
// are non-empty. It returns the claims on success and one of the
// package error codes on failure.
func Verify(tokenString, secret string, now time.Time, expectedIssuer, expectedAudience string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrFormatInvalid
	}
	if errAlg := checkAlg(parts[0]); errAlg != nil {
		return nil, errAlg
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if expectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(expectedIssuer))
	}
	if expectedAudience != "" {
		opts = append(opts, jwt.WithAudience(expectedAudience))
	}

	claims := &Claims{}
	_, errParse := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if errParse != nil {
		return nil, mapParseError(errParse)
	}
	return claims, nil
}

// checkAlg decodes the header segment and rejects unexpected algorithms
// before any signature work.
func checkAlg(headerSegment string) error {
	raw, errDecode := base64.RawURLEncoding.DecodeString(headerSegment)
	if errDecode != nil {
		return ErrDecodeFailed
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if errUnmarshal := json.Unmarshal(raw, &header); errUnmarshal != nil {
		return ErrDecodeFailed
	}
	if header.Alg != jwt.SigningMethodHS256.Alg() {
		return ErrAlgInvalid
	}
	return nil
}

// mapParseError converts jwt/v5 parse errors into the stable codes.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotActive
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerInvalid
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrFormatInvalid
	default:
		return ErrDecodeFailed
	}
}
