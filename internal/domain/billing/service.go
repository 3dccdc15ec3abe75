package billing

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smarttelehealth/billing/internal/platform/apperr"
	"github.com/smarttelehealth/billing/internal/platform/auth"
	"github.com/smarttelehealth/billing/internal/platform/events"
	"github.com/smarttelehealth/billing/internal/platform/gateway"
)

// Service is the billing engine: record lifecycle, charging, refunds,
// adjustments, and the pure amount calculators. taxRegion is the
// jurisdiction applied when a caller does not name one.
type Service struct {
	records   RecordRepository
	gw        gateway.PaymentGateway
	pub       events.Publisher
	log       zerolog.Logger
	taxRegion string
	now       func() time.Time
}

func NewService(records RecordRepository, gw gateway.PaymentGateway, pub events.Publisher, log zerolog.Logger, taxRegion string) *Service {
	return &Service{records: records, gw: gw, pub: pub, log: log, taxRegion: taxRegion, now: time.Now}
}

// fail logs unexpected (unclassified) errors before they cross the service
// boundary; classified errors pass through untouched.
func (s *Service) fail(err error, op string) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.log.Error().Err(err).Str("op", op).Msg("billing operation failed")
		return apperr.Wrap(apperr.KindInternal, err, "internal server error")
	}
	return err
}

// publish fires a business event. Publishing is never awaited for
// correctness; failures are logged and dropped.
func (s *Service) publish(ctx context.Context, routingKey string, actor string, payload interface{}) {
	err := s.pub.Publish(ctx, routingKey, events.Event{
		Type:       routingKey,
		Actor:      actor,
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("routing_key", routingKey).Msg("event publish failed")
	}
}

// -- Calculators --

// taxRates maps billing jurisdictions to their rates. Unknown jurisdictions
// fall back to defaultTaxRate.
var taxRates = map[string]float64{
	"us-ca": 0.0725,
	"us-ny": 0.04,
	"us-tx": 0.0625,
	"us-fl": 0.06,
	"eu":    0.20,
	"uk":    0.20,
	"in":    0.18,
}

const defaultTaxRate = 0.05

const (
	baseShippingCents       = 500
	expressShippingMultiple = 2.5
)

// CalculateTotal sums the parts exactly. Amounts are minor units, so there
// is no floating-point drift.
func CalculateTotal(baseCents, taxCents, shippingCents int64) int64 {
	return baseCents + taxCents + shippingCents
}

// CalculateTax applies the jurisdiction's rate, rounding half-up to the
// nearest cent.
func CalculateTax(baseCents int64, jurisdiction string) int64 {
	rate, ok := taxRates[strings.ToLower(jurisdiction)]
	if !ok {
		rate = defaultTaxRate
	}
	return int64(math.Round(float64(baseCents) * rate))
}

// CalculateShipping returns the flat shipping charge. The address is
// reserved for future carrier rate selection.
func CalculateShipping(address string, express bool) int64 {
	_ = address
	if express {
		return int64(math.Round(baseShippingCents * expressShippingMultiple))
	}
	return baseShippingCents
}

// CalculateDueDate derives the due date from the billing date plus the grace
// period. Pure: the same inputs always yield the same date.
func CalculateDueDate(billingDate time.Time, graceDays int) time.Time {
	return billingDate.AddDate(0, 0, graceDays)
}

// QuoteInput carries the components of a charge estimate.
type QuoteInput struct {
	BaseCents    int64      `json:"base_cents"`
	Jurisdiction string     `json:"jurisdiction"`
	Address      string     `json:"address"`
	Express      bool       `json:"express"`
	GraceDays    int        `json:"grace_days"`
	BillingDate  *time.Time `json:"billing_date,omitempty"`
}

// Quote is the itemized estimate for a prospective charge.
type Quote struct {
	BaseCents     int64     `json:"base_cents"`
	TaxCents      int64     `json:"tax_cents"`
	ShippingCents int64     `json:"shipping_cents"`
	TotalCents    int64     `json:"total_cents"`
	Jurisdiction  string    `json:"jurisdiction"`
	DueDate       time.Time `json:"due_date"`
}

// QuoteCharge itemizes a prospective charge using the amount calculators.
// An empty jurisdiction falls back to the service's configured tax region.
func (s *Service) QuoteCharge(in QuoteInput) (*Quote, error) {
	if in.BaseCents < 0 {
		return nil, apperr.Validation("base_cents must not be negative")
	}
	jurisdiction := strings.ToLower(strings.TrimSpace(in.Jurisdiction))
	if jurisdiction == "" {
		jurisdiction = s.taxRegion
	}
	billingDate := s.now().UTC()
	if in.BillingDate != nil {
		billingDate = in.BillingDate.UTC()
	}

	tax := CalculateTax(in.BaseCents, jurisdiction)
	shipping := CalculateShipping(in.Address, in.Express)
	return &Quote{
		BaseCents:     in.BaseCents,
		TaxCents:      tax,
		ShippingCents: shipping,
		TotalCents:    CalculateTotal(in.BaseCents, tax, shipping),
		Jurisdiction:  jurisdiction,
		DueDate:       CalculateDueDate(billingDate, in.GraceDays),
	}, nil
}

// -- Record lifecycle --

// CreateRecordInput carries the caller-supplied fields for a new record.
type CreateRecordInput struct {
	UserID          uuid.UUID  `json:"user_id"`
	SubscriptionID  *uuid.UUID `json:"subscription_id,omitempty"`
	AmountCents     int64      `json:"amount_cents"`
	Currency        string     `json:"currency"`
	Description     string     `json:"description"`
	Type            RecordType `json:"type"`
	BillingDate     *time.Time `json:"billing_date,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	PaymentMethod   string     `json:"payment_method"`
	IsRecurring     bool       `json:"is_recurring"`
	CycleKey        *string    `json:"cycle_key,omitempty"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
}

func (s *Service) CreateRecord(ctx context.Context, caller auth.Caller, in CreateRecordInput) (*Record, error) {
	if in.UserID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}
	if in.AmountCents < 0 {
		return nil, apperr.Validation("amount_cents must not be negative")
	}
	if in.Type == "" {
		in.Type = TypeOneTime
	}
	if !validRecordTypes[in.Type] {
		return nil, apperr.Validation("invalid record type: %s", in.Type)
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := s.now().UTC()
	billingDate := now
	if in.BillingDate != nil {
		billingDate = in.BillingDate.UTC()
	}

	rec := &Record{
		ID:              uuid.New(),
		UserID:          in.UserID,
		SubscriptionID:  in.SubscriptionID,
		AmountCents:     in.AmountCents,
		Currency:        currency,
		Description:     in.Description,
		Status:          StatusPending,
		Type:            in.Type,
		BillingDate:     billingDate,
		DueDate:         in.DueDate,
		PaymentMethod:   in.PaymentMethod,
		IsRecurring:     in.IsRecurring,
		CycleKey:        in.CycleKey,
		NextBillingDate: in.NextBillingDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, s.fail(err, "create_record")
	}
	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("caller", caller.Subject).
		Int64("amount_cents", rec.AmountCents).
		Msg("billing record created")
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(err, "get_record")
	}
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]*Record, int, error) {
	records, total, err := s.records.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, s.fail(err, "list_records")
	}
	return records, total, nil
}

// IsPaymentOverdue reports whether the record's due date has passed while
// it is still pending.
func (s *Service) IsPaymentOverdue(ctx context.Context, recordID uuid.UUID) (bool, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return false, s.fail(err, "is_payment_overdue")
	}
	return rec.IsOverdue(s.now().UTC()), nil
}

// ListOverdueRecords is reserved for a dedicated dunning view. Callers use
// ListRecords with the overdue status filter in the meantime.
func (s *Service) ListOverdueRecords(ctx context.Context) ([]*Record, error) {
	return nil, apperr.NotImplemented("overdue record listing is not implemented")
}

// GetRecordByCycleKey looks up the record charged for a given recurring
// cycle. The orchestrator uses it to deduplicate cycle triggers.
func (s *Service) GetRecordByCycleKey(ctx context.Context, subscriptionID uuid.UUID, cycleKey string) (*Record, error) {
	rec, err := s.records.GetByCycleKey(ctx, subscriptionID, cycleKey)
	if err != nil {
		return nil, s.fail(err, "get_record_by_cycle_key")
	}
	return rec, nil
}

// RecordsInWindow exposes raw records for the analytics aggregator.
func (s *Service) RecordsInWindow(ctx context.Context, from, to time.Time) ([]*Record, error) {
	records, err := s.records.ListInWindow(ctx, from, to)
	if err != nil {
		return nil, s.fail(err, "records_in_window")
	}
	return records, nil
}

// -- Payments --

// ProcessPayment charges the record through the payment gateway. Declines
// and gateway outages both land the record in Failed with the cause
// captured; the caller always gets a structured result.
func (s *Service) ProcessPayment(ctx context.Context, caller auth.Caller, recordID uuid.UUID) (*PaymentResult, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "process_payment")
	}
	if rec.Status != StatusPending {
		return nil, apperr.Conflict("billing record is %s and cannot be charged", rec.Status)
	}
	return s.charge(ctx, caller, rec)
}

// RetryPayment re-attempts a failed charge: the record is reset to Pending
// with the previous error cleared, then charged again.
func (s *Service) RetryPayment(ctx context.Context, caller auth.Caller, recordID uuid.UUID) (*PaymentResult, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "retry_payment")
	}
	if rec.Status != StatusFailed && rec.Status != StatusPending {
		return nil, apperr.Conflict("billing record is %s and cannot be retried", rec.Status)
	}
	if rec.Status == StatusFailed {
		rec.Status = StatusPending
		rec.ErrorMessage = nil
		if err := s.records.Update(ctx, rec); err != nil {
			return nil, s.fail(err, "retry_payment")
		}
	}
	return s.charge(ctx, caller, rec)
}

func (s *Service) charge(ctx context.Context, caller auth.Caller, rec *Record) (*PaymentResult, error) {
	now := s.now().UTC()

	res, err := s.gw.Charge(ctx, rec.PaymentMethod, rec.AmountCents, rec.Currency)
	if err != nil {
		// Transport failure. The decline path below handles it the same
		// way, but the cause is logged server-side only.
		s.log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("payment gateway unreachable")
		res = gateway.ChargeResult{Success: false, ErrorMessage: "payment gateway unavailable"}
	}

	if !res.Success {
		rec.Status = StatusFailed
		msg := res.ErrorMessage
		rec.ErrorMessage = &msg
		if err := s.records.Update(ctx, rec); err != nil {
			return nil, s.fail(err, "process_payment")
		}
		s.publish(ctx, events.PaymentFailed, caller.Subject, map[string]interface{}{
			"record_id": rec.ID, "amount_cents": rec.AmountCents, "error": msg,
		})
		return &PaymentResult{
			RecordID:     rec.ID,
			Status:       StatusFailed,
			AmountCents:  rec.AmountCents,
			ErrorMessage: msg,
			ProcessedAt:  now,
		}, nil
	}

	rec.Status = StatusPaid
	rec.PaidAt = &now
	rec.TransactionID = &res.TransactionID
	rec.ErrorMessage = nil
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, s.fail(err, "process_payment")
	}
	s.publish(ctx, events.PaymentSucceeded, caller.Subject, map[string]interface{}{
		"record_id": rec.ID, "amount_cents": rec.AmountCents, "transaction_id": res.TransactionID,
	})
	return &PaymentResult{
		RecordID:      rec.ID,
		Status:        StatusPaid,
		TransactionID: res.TransactionID,
		AmountCents:   rec.AmountCents,
		ProcessedAt:   now,
	}, nil
}

// ProcessRefund returns amountCents of a paid record. The stored amount is
// never mutated; the refund is captured as a negative adjustment and the
// record moves to Refunded.
func (s *Service) ProcessRefund(ctx context.Context, caller auth.Caller, recordID uuid.UUID, amountCents int64, reason string) (*RefundOutcome, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "process_refund")
	}
	if rec.Status != StatusPaid {
		return nil, apperr.Conflict("billing record is %s, only paid records can be refunded", rec.Status)
	}
	if amountCents <= 0 {
		return nil, apperr.Validation("refund amount must be positive")
	}
	if amountCents > rec.AmountCents {
		return nil, apperr.Validation("refund amount %d exceeds paid amount %d", amountCents, rec.AmountCents)
	}
	if rec.TransactionID == nil {
		return nil, apperr.Conflict("billing record has no settled transaction to refund")
	}

	res, err := s.gw.Refund(ctx, *rec.TransactionID, amountCents)
	if err != nil {
		s.log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("refund gateway unreachable")
		return nil, apperr.Gateway("refund could not be processed")
	}
	if !res.Success {
		return nil, apperr.Gateway("refund declined: %s", res.ErrorMessage)
	}

	now := s.now().UTC()
	rec.Status = StatusRefunded
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, s.fail(err, "process_refund")
	}

	adj := &Adjustment{
		RecordID:    rec.ID,
		AmountCents: -amountCents,
		Reason:      reason,
		AppliedBy:   caller.Subject,
		AppliedAt:   now,
	}
	if err := s.records.AddAdjustment(ctx, adj); err != nil {
		return nil, s.fail(err, "process_refund")
	}

	s.publish(ctx, events.PaymentRefunded, caller.Subject, map[string]interface{}{
		"record_id": rec.ID, "amount_cents": amountCents, "refund_id": res.RefundID, "reason": reason,
	})
	return &RefundOutcome{
		RecordID:    rec.ID,
		RefundID:    res.RefundID,
		AmountCents: amountCents,
		RefundedAt:  now,
	}, nil
}

// -- Adjustments and partial payments --

func (s *Service) ApplyAdjustment(ctx context.Context, caller auth.Caller, recordID uuid.UUID, amountCents int64, reason string) (*Adjustment, error) {
	if amountCents == 0 {
		return nil, apperr.Validation("adjustment amount must not be zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("adjustment reason is required")
	}
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "apply_adjustment")
	}

	adj := &Adjustment{
		RecordID:    rec.ID,
		AmountCents: amountCents,
		Reason:      reason,
		AppliedBy:   caller.Subject,
		AppliedAt:   s.now().UTC(),
	}
	if err := s.records.AddAdjustment(ctx, adj); err != nil {
		return nil, s.fail(err, "apply_adjustment")
	}
	return adj, nil
}

func (s *Service) ListAdjustments(ctx context.Context, recordID uuid.UUID) ([]*Adjustment, error) {
	adjustments, err := s.records.ListAdjustments(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "list_adjustments")
	}
	return adjustments, nil
}

// ProcessPartialPayment records an installment against a pending record.
// When cumulative installments cover the full amount the record settles as
// Paid.
func (s *Service) ProcessPartialPayment(ctx context.Context, caller auth.Caller, recordID uuid.UUID, amountCents int64, transactionID string) (*Record, error) {
	if amountCents <= 0 {
		return nil, apperr.Validation("partial payment amount must be positive")
	}
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "process_partial_payment")
	}
	if rec.Status != StatusPending {
		return nil, apperr.Conflict("billing record is %s, partial payments apply to pending records only", rec.Status)
	}

	now := s.now().UTC()
	p := &PartialPayment{
		RecordID:      rec.ID,
		AmountCents:   amountCents,
		TransactionID: transactionID,
		ReceivedAt:    now,
	}
	if err := s.records.AddPartialPayment(ctx, p); err != nil {
		return nil, s.fail(err, "process_partial_payment")
	}

	paid, err := s.records.SumPartialPayments(ctx, rec.ID)
	if err != nil {
		return nil, s.fail(err, "process_partial_payment")
	}
	if paid >= rec.AmountCents {
		rec.Status = StatusPaid
		rec.PaidAt = &now
		if err := s.records.Update(ctx, rec); err != nil {
			return nil, s.fail(err, "process_partial_payment")
		}
		s.publish(ctx, events.PaymentSucceeded, caller.Subject, map[string]interface{}{
			"record_id": rec.ID, "amount_cents": rec.AmountCents, "settled_by": "partial_payments",
		})
	}
	return rec, nil
}

func (s *Service) ListPartialPayments(ctx context.Context, recordID uuid.UUID) ([]*PartialPayment, error) {
	payments, err := s.records.ListPartialPayments(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "list_partial_payments")
	}
	return payments, nil
}
