package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a deterministic in-memory gateway used in tests and development.
// Every charge succeeds unless the payment method ref is registered as
// declining or FailAll is set.
type Fake struct {
	mu       sync.Mutex
	seq      int
	declines map[string]string // paymentMethodRef -> decline message
	FailAll  bool              // simulate transport failure on every call
}

func NewFake() *Fake {
	return &Fake{declines: make(map[string]string)}
}

// Decline registers a payment method that will be declined with the given
// message.
func (g *Fake) Decline(paymentMethodRef, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declines[paymentMethodRef] = message
}

// Allow removes a previously registered decline.
func (g *Fake) Allow(paymentMethodRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.declines, paymentMethodRef)
}

func (g *Fake) Charge(_ context.Context, paymentMethodRef string, amountCents int64, currency string) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailAll {
		return ChargeResult{}, fmt.Errorf("gateway: connection timed out")
	}
	if msg, ok := g.declines[paymentMethodRef]; ok {
		return ChargeResult{Success: false, ErrorMessage: msg}, nil
	}
	g.seq++
	return ChargeResult{Success: true, TransactionID: fmt.Sprintf("txn_%06d", g.seq)}, nil
}

func (g *Fake) Refund(_ context.Context, transactionRef string, amountCents int64) (RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailAll {
		return RefundResult{}, fmt.Errorf("gateway: connection timed out")
	}
	g.seq++
	return RefundResult{Success: true, RefundID: fmt.Sprintf("re_%06d", g.seq)}, nil
}
