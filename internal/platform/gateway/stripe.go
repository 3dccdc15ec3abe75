package gateway

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// Stripe implements PaymentGateway using the Stripe API. Charges are
// off-session confirmations against a stored payment method; refunds target
// the original payment intent.
type Stripe struct {
	apiKey string
}

// NewStripe creates a Stripe gateway with the given secret API key.
func NewStripe(apiKey string) *Stripe {
	stripe.Key = apiKey
	return &Stripe{apiKey: apiKey}
}

func (g *Stripe) Charge(_ context.Context, paymentMethodRef string, amountCents int64, currency string) (ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(paymentMethodRef),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		// Card declines are an expected business outcome, not a transport
		// failure.
		var sErr *stripe.Error
		if errors.As(err, &sErr) && sErr.Type == stripe.ErrorTypeCard {
			return ChargeResult{Success: false, ErrorMessage: sErr.Msg}, nil
		}
		return ChargeResult{}, fmt.Errorf("gateway: create stripe payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return ChargeResult{
			Success:       false,
			TransactionID: pi.ID,
			ErrorMessage:  fmt.Sprintf("payment intent status %s", pi.Status),
		}, nil
	}
	return ChargeResult{Success: true, TransactionID: pi.ID}, nil
}

func (g *Stripe) Refund(_ context.Context, transactionRef string, amountCents int64) (RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionRef),
		Amount:        stripe.Int64(amountCents),
	}
	r, err := refund.New(params)
	if err != nil {
		var sErr *stripe.Error
		if errors.As(err, &sErr) && sErr.Type == stripe.ErrorTypeInvalidRequest {
			return RefundResult{Success: false, ErrorMessage: sErr.Msg}, nil
		}
		return RefundResult{}, fmt.Errorf("gateway: create stripe refund: %w", err)
	}
	return RefundResult{Success: true, RefundID: r.ID}, nil
}
