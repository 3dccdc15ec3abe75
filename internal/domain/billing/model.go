package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a billing record. Overdue is never stored:
// it is derived from a Pending record whose due date has passed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
	StatusOverdue  Status = "overdue"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusPaid: true, StatusFailed: true, StatusRefunded: true,
}

// ParseStatus validates a stored (non-derived) status value.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, validStatuses[st]
}

// statusTransitions is the single canonical transition table. Refunded is
// terminal. Pending→Pending covers the retry no-op.
var statusTransitions = map[Status]map[Status]bool{
	StatusPending:  {StatusPaid: true, StatusFailed: true, StatusPending: true},
	StatusFailed:   {StatusPending: true, StatusPaid: true, StatusFailed: true},
	StatusPaid:     {StatusRefunded: true},
	StatusRefunded: {},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	return statusTransitions[s][next]
}

// RecordType distinguishes how a billing record originated.
type RecordType string

const (
	TypeSubscription RecordType = "subscription"
	TypeOneTime      RecordType = "one_time"
	TypeAdjustment   RecordType = "adjustment"
	TypeRefund       RecordType = "refund"
)

var validRecordTypes = map[RecordType]bool{
	TypeSubscription: true, TypeOneTime: true, TypeAdjustment: true, TypeRefund: true,
}

// Record maps to the billing_record table. All amounts are int64 minor units
// (cents). Version backs optimistic concurrency on updates.
type Record struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	UserID          uuid.UUID  `db:"user_id" json:"user_id"`
	SubscriptionID  *uuid.UUID `db:"subscription_id" json:"subscription_id,omitempty"`
	AmountCents     int64      `db:"amount_cents" json:"amount_cents"`
	Currency        string     `db:"currency" json:"currency"`
	Description     string     `db:"description" json:"description"`
	Status          Status     `db:"status" json:"status"`
	Type            RecordType `db:"record_type" json:"type"`
	BillingDate     time.Time  `db:"billing_date" json:"billing_date"`
	DueDate         *time.Time `db:"due_date" json:"due_date,omitempty"`
	PaidAt          *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	InvoiceNumber   *string    `db:"invoice_number" json:"invoice_number,omitempty"`
	PaymentMethod   string     `db:"payment_method" json:"payment_method"`
	TransactionID   *string    `db:"transaction_id" json:"transaction_id,omitempty"`
	ErrorMessage    *string    `db:"error_message" json:"error_message,omitempty"`
	IsRecurring     bool       `db:"is_recurring" json:"is_recurring"`
	NextBillingDate *time.Time `db:"next_billing_date" json:"next_billing_date,omitempty"`
	CycleKey        *string    `db:"cycle_key" json:"cycle_key,omitempty"`
	Version         int        `db:"version" json:"version"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether the record should surface as Overdue at now.
func (r *Record) IsOverdue(now time.Time) bool {
	return r.Status == StatusPending && r.DueDate != nil && r.DueDate.Before(now)
}

// EffectiveStatus is the stored status with Overdue derived on read.
func (r *Record) EffectiveStatus(now time.Time) Status {
	if r.IsOverdue(now) {
		return StatusOverdue
	}
	return r.Status
}

// Adjustment is an additive line item against a record. The record's stored
// amount is never mutated; adjustments carry the delta (negative for
// credits and refunds).
type Adjustment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RecordID    uuid.UUID `db:"record_id" json:"record_id"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	Reason      string    `db:"reason" json:"reason"`
	AppliedBy   string    `db:"applied_by" json:"applied_by"`
	AppliedAt   time.Time `db:"applied_at" json:"applied_at"`
}

// PartialPayment is one installment received against a pending record.
type PartialPayment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RecordID      uuid.UUID `db:"record_id" json:"record_id"`
	AmountCents   int64     `db:"amount_cents" json:"amount_cents"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	ReceivedAt    time.Time `db:"received_at" json:"received_at"`
}

// PaymentResult is the structured outcome of a charge attempt. Callers get
// this for both successful and failed attempts; failures never surface as
// raw errors.
type PaymentResult struct {
	RecordID      uuid.UUID `json:"record_id"`
	Status        Status    `json:"status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// RefundOutcome is the structured outcome of a successful refund.
type RefundOutcome struct {
	RecordID    uuid.UUID `json:"record_id"`
	RefundID    string    `json:"refund_id"`
	AmountCents int64     `json:"amount_cents"`
	RefundedAt  time.Time `json:"refunded_at"`
}
