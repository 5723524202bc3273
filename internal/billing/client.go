// Package billing integrates the Stripe billing lifecycle: checkout,
// webhook intake, and synchronization of subscription state into the
// platform store. Stripe is the source of truth for paid subscription
// status; this package only mirrors it.
package billing

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
)

// Client is the slice of the Stripe API this package needs. Tests
// substitute a fake; production uses the SDK-backed implementation.
type Client interface {
	CreateCustomer(ctx context.Context, email, name string) (*stripe.Customer, error)
	CreateSubscription(ctx context.Context, customerID, priceID, subscriptionID string) (*stripe.Subscription, error)
	RetrieveSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error)
}

type apiClient struct {
	api *stripeclient.API
}

// NewClient builds the SDK-backed Stripe client.
func NewClient(secretKey string) Client {
	api := &stripeclient.API{}
	api.Init(secretKey, nil)
	return &apiClient{api: api}
}

func (c *apiClient) CreateCustomer(ctx context.Context, email, name string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	customer, errCreate := c.api.Customers.New(params)
	if errCreate != nil {
		return nil, fmt.Errorf("billing: create customer: %w", errCreate)
	}
	return customer, nil
}

// CreateSubscription opens an incomplete Stripe subscription that is
// confirmed client-side with the returned invoice's confirmation
// secret. The platform subscription ID rides along as metadata and as
// the idempotency key, so a retried call never double-creates.
func (c *apiClient) CreateSubscription(ctx context.Context, customerID, priceID, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddMetadata("subscription_id", subscriptionID)
	params.AddExpand("latest_invoice.confirmation_secret")
	params.SetIdempotencyKey("subscription_create:" + subscriptionID)

	sub, errCreate := c.api.Subscriptions.New(params)
	if errCreate != nil {
		return nil, fmt.Errorf("billing: create subscription: %w", errCreate)
	}
	return sub, nil
}

func (c *apiClient) RetrieveSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice.confirmation_secret")
	sub, errGet := c.api.Subscriptions.Get(stripeSubscriptionID, params)
	if errGet != nil {
		return nil, fmt.Errorf("billing: retrieve subscription: %w", errGet)
	}
	return sub, nil
}
