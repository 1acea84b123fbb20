package service

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82/customer"
)

// StripeCustomerResolver resolves customer emails via the Stripe API. The
// global stripe.Key must be set at startup.
type StripeCustomerResolver struct{}

func NewStripeCustomerResolver() *StripeCustomerResolver {
	return &StripeCustomerResolver{}
}

// CustomerEmail fetches the billing customer and returns its email.
func (r *StripeCustomerResolver) CustomerEmail(_ context.Context, customerID string) (string, error) {
	c, err := customer.Get(customerID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch stripe customer %s: %w", customerID, err)
	}
	return c.Email, nil
}
