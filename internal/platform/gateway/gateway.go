// Package gateway abstracts the external payment provider. The billing
// engine only sees Charge/Refund; the concrete provider (Stripe, or the
// in-memory fake used in tests and development) is selected at wiring time.
package gateway

import "context"

// ChargeResult reports the outcome of a charge attempt. A declined charge is
// returned with Success=false and a nil error; errors are reserved for
// transport-level failures.
type ChargeResult struct {
	Success       bool
	TransactionID string
	ErrorMessage  string
}

// RefundResult reports the outcome of a refund attempt.
type RefundResult struct {
	Success      bool
	RefundID     string
	ErrorMessage string
}

type PaymentGateway interface {
	// Charge attempts to collect amountCents against the tokenized payment
	// method reference.
	Charge(ctx context.Context, paymentMethodRef string, amountCents int64, currency string) (ChargeResult, error)
	// Refund returns amountCents of a previously settled transaction.
	Refund(ctx context.Context, transactionRef string, amountCents int64) (RefundResult, error)
}
