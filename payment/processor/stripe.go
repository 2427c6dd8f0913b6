package processor

import (
	"context"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"
)

// Stripe charges synchronously via PaymentIntent create+confirm instead of
// a hosted Checkout Session: there is no customer present to redirect, so
// the saga needs a definitive accept/decline in the same request.
type Stripe struct {
	apiKey        string
	paymentMethod string
}

func NewStripeProcessor(apiKey, paymentMethod string) *Stripe {
	stripe.Key = apiKey
	return &Stripe{apiKey: apiKey, paymentMethod: paymentMethod}
}

// Charge creates a PaymentIntent for amount (in the given currency's minor
// unit is NOT assumed — amount is dollars, converted to cents here) and
// confirms it immediately using the configured off-session payment method.
func (s *Stripe) Charge(ctx context.Context, amount float64, currency, description string, metadata map[string]string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(math.Round(amount * 100))),
		Currency:      stripe.String(currency),
		Description:   stripe.String(description),
		PaymentMethod: stripe.String(s.paymentMethod),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Metadata:      metadata,
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Type == stripe.ErrorTypeCard {
			return "", &DeclinedError{Reason: stripeErr.Msg}
		}
		return "", fmt.Errorf("failed to create payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return pi.ID, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return "", &DeclinedError{Reason: "payment requires additional authentication, off-session charge cannot proceed"}
	default:
		return "", &DeclinedError{Reason: fmt.Sprintf("payment intent ended in status %s", pi.Status)}
	}
}
