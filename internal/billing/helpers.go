package billing

import (
	stripe "github.com/stripe/stripe-go/v82"
)

// AutoRenewEnabled derives the renewal flag from a Stripe subscription.
// A subscription scheduled to cancel at period end does not renew.
func AutoRenewEnabled(sub *stripe.Subscription) bool {
	return !sub.CancelAtPeriodEnd
}

// CurrentPeriodEnd returns the earliest period end across the
// subscription's items, or nil when no item carries one. Stripe tracks
// the period per item; the most conservative end bounds the grant.
func CurrentPeriodEnd(sub *stripe.Subscription) *int64 {
	if sub.Items == nil {
		return nil
	}
	var min *int64
	for _, item := range sub.Items.Data {
		if item == nil || item.CurrentPeriodEnd == 0 {
			continue
		}
		end := item.CurrentPeriodEnd
		if min == nil || end < *min {
			min = &end
		}
	}
	return min
}

// ClientSecret extracts the confirmation secret the frontend needs to
// collect payment for an incomplete subscription, or "" when absent.
func ClientSecret(sub *stripe.Subscription) string {
	if sub.LatestInvoice == nil || sub.LatestInvoice.ConfirmationSecret == nil {
		return ""
	}
	return sub.LatestInvoice.ConfirmationSecret.ClientSecret
}
