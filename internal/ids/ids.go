// Package ids generates and validates the prefixed identifiers used for
// plans and subscriptions. These are platform identifiers; they are
// deliberately distinct in shape from Stripe's own IDs.
package ids

import (
	"crypto/rand"
	"regexp"
)

const base62 = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randomLen is the number of random characters after the prefix.
const randomLen = 16

var (
	planIDPattern         = regexp.MustCompile(`^pln_[0-9a-zA-Z]{16}$`)
	subscriptionIDPattern = regexp.MustCompile(`^sub_[0-9a-zA-Z]{16}$`)
)

// randomBase62 returns n uniformly-ish distributed base62 characters.
// The mapping is not reversible; only unpredictability matters here.
func randomBase62(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base62[int(b)%len(base62)]
	}
	return string(out)
}

// NewPlanID returns a fresh plan identifier.
func NewPlanID() string {
	return "pln_" + randomBase62(randomLen)
}

// NewSubscriptionID returns a fresh subscription identifier.
func NewSubscriptionID() string {
	return "sub_" + randomBase62(randomLen)
}

// IsPlanID reports whether v is a well-formed plan identifier.
func IsPlanID(v string) bool {
	return planIDPattern.MatchString(v)
}

// IsSubscriptionID reports whether v is a well-formed subscription identifier.
func IsSubscriptionID(v string) bool {
	return subscriptionIDPattern.MatchString(v)
}
