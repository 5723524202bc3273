package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func makeClaims(now time.Time) *Claims {
	return &Claims{
		PlanID:       "pln_0123456789abcdef",
		DurationDays: 30,
		MaxUses:      5,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "rcd_test",
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	now := time.Now()
	limit := int64(100)
	claims := makeClaims(now)
	claims.Custom = &Overrides{PlanName: "Custom", Limit5hUnits: &limit}

	signed, errSign := Sign(claims, testSecret)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	out, errVerify := Verify(signed, testSecret, now.Add(time.Minute), Issuer, Audience)
	if errVerify != nil {
		t.Fatalf("verify: %v", errVerify)
	}
	if out.PlanID != claims.PlanID || out.DurationDays != 30 || out.MaxUses != 5 {
		t.Fatalf("claims mismatch: %+v", out)
	}
	if out.ID != "rcd_test" {
		t.Fatalf("expected jti rcd_test, got %q", out.ID)
	}
	if out.Custom == nil || out.Custom.PlanName != "Custom" || out.Custom.Limit5hUnits == nil || *out.Custom.Limit5hUnits != 100 {
		t.Fatalf("custom overrides mismatch: %+v", out.Custom)
	}
}

func TestVerify_ErrorCodes(t *testing.T) {
	now := time.Now()
	signed, errSign := Sign(makeClaims(now), testSecret)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	cases := []struct {
		name     string
		token    string
		at       time.Time
		issuer   string
		audience string
		want     error
	}{
		{name: "two segments", token: "a.b", at: now, issuer: Issuer, audience: Audience, want: ErrFormatInvalid},
		{name: "empty segment", token: "a..c", at: now, issuer: Issuer, audience: Audience, want: ErrFormatInvalid},
		{name: "wrong secret", token: mustSign(t, makeClaims(now), "other"), at: now, issuer: Issuer, audience: Audience, want: ErrSignatureInvalid},
		{name: "tampered payload", token: tamperPayload(t, signed), at: now, issuer: Issuer, audience: Audience, want: ErrSignatureInvalid},
		{name: "expired", token: signed, at: now.Add(25 * time.Hour), issuer: Issuer, audience: Audience, want: ErrExpired},
		{name: "not yet active", token: signed, at: now.Add(-time.Hour), issuer: Issuer, audience: Audience, want: ErrNotActive},
		{name: "wrong issuer", token: signed, at: now, issuer: "someone_else", audience: Audience, want: ErrIssuerInvalid},
		{name: "wrong audience", token: signed, at: now, issuer: Issuer, audience: "someone_else", want: ErrAudienceInvalid},
		{name: "alg none", token: noneToken(t, now), at: now, issuer: Issuer, audience: Audience, want: ErrAlgInvalid},
		{name: "garbage header", token: "!!!.e30.sig", at: now, issuer: Issuer, audience: Audience, want: ErrDecodeFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errVerify := Verify(tc.token, testSecret, tc.at, tc.issuer, tc.audience)
			if !errors.Is(errVerify, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, errVerify)
			}
		})
	}
}

func TestVerify_ExactExpiryBoundary(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	claims := makeClaims(now)
	expiry := now.Add(time.Hour)
	claims.ExpiresAt = jwt.NewNumericDate(expiry)
	signed := mustSign(t, claims, testSecret)

	if _, errVerify := Verify(signed, testSecret, expiry, Issuer, Audience); !errors.Is(errVerify, ErrExpired) {
		t.Fatalf("expected expired at exact boundary, got %v", errVerify)
	}
	if _, errVerify := Verify(signed, testSecret, expiry.Add(-time.Second), Issuer, Audience); errVerify != nil {
		t.Fatalf("expected valid just before expiry, got %v", errVerify)
	}
}

func mustSign(t *testing.T, claims *Claims, secret string) string {
	t.Helper()
	signed, errSign := Sign(claims, secret)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	return signed
}

func tamperPayload(t *testing.T, signed string) string {
	t.Helper()
	parts := strings.Split(signed, ".")
	payload, errDecode := base64.RawURLEncoding.DecodeString(parts[1])
	if errDecode != nil {
		t.Fatalf("decode payload: %v", errDecode)
	}
	var body map[string]any
	if errUnmarshal := json.Unmarshal(payload, &body); errUnmarshal != nil {
		t.Fatalf("unmarshal payload: %v", errUnmarshal)
	}
	body["max_uses"] = 9999
	raw, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		t.Fatalf("marshal payload: %v", errMarshal)
	}
	parts[1] = base64.RawURLEncoding.EncodeToString(raw)
	return strings.Join(parts, ".")
}

func noneToken(t *testing.T, now time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, errMarshal := json.Marshal(makeClaims(now))
	if errMarshal != nil {
		t.Fatalf("marshal claims: %v", errMarshal)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}
