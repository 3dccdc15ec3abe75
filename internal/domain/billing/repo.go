package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordFilter narrows ListRecords. Statuses may include StatusOverdue,
// which the repository translates to pending-past-due.
type RecordFilter struct {
	UserID         *uuid.UUID
	SubscriptionID *uuid.UUID
	Statuses       []Status
	From           *time.Time
	To             *time.Time
}

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*Record, error)
	GetByCycleKey(ctx context.Context, subscriptionID uuid.UUID, cycleKey string) (*Record, error)
	// Update persists r guarded by its Version; a stale version yields a
	// Conflict error and leaves the row untouched.
	Update(ctx context.Context, r *Record) error
	List(ctx context.Context, filter RecordFilter, limit, offset int) ([]*Record, int, error)
	// ListInWindow returns every record with BillingDate in [from, to),
	// oldest first. Used by the analytics aggregator.
	ListInWindow(ctx context.Context, from, to time.Time) ([]*Record, error)

	AddAdjustment(ctx context.Context, a *Adjustment) error
	ListAdjustments(ctx context.Context, recordID uuid.UUID) ([]*Adjustment, error)

	AddPartialPayment(ctx context.Context, p *PartialPayment) error
	ListPartialPayments(ctx context.Context, recordID uuid.UUID) ([]*PartialPayment, error)
	SumPartialPayments(ctx context.Context, recordID uuid.UUID) (int64, error)
}
