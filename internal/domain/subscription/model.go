package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive      Status = "active"
	StatusTrialActive Status = "trial_active"
	StatusCancelled   Status = "cancelled"
	StatusSuspended   Status = "suspended"
	StatusExpired     Status = "expired"
)

var validStatuses = map[Status]bool{
	StatusActive: true, StatusTrialActive: true, StatusCancelled: true,
	StatusSuspended: true, StatusExpired: true,
}

// statusTransitions: Cancelled and Expired are terminal.
var statusTransitions = map[Status]map[Status]bool{
	StatusActive:      {StatusCancelled: true, StatusSuspended: true, StatusExpired: true},
	StatusTrialActive: {StatusActive: true, StatusCancelled: true, StatusExpired: true},
	StatusSuspended:   {StatusActive: true, StatusCancelled: true},
	StatusCancelled:   {},
	StatusExpired:     {},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	return statusTransitions[s][next]
}

// IsBillable reports whether recurring charges may be raised for a
// subscription in this state.
func (s Status) IsBillable() bool {
	return s == StatusActive || s == StatusTrialActive
}

// DefaultBillingCycleDays is used when a plan does not specify a cycle.
const DefaultBillingCycleDays = 30

// Subscription maps to the subscription table. CurrentPriceCents is the
// per-cycle price in minor units.
type Subscription struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	UserID             uuid.UUID  `db:"user_id" json:"user_id"`
	PlanID             string     `db:"plan_id" json:"plan_id"`
	PlanName           string     `db:"plan_name" json:"plan_name"`
	Status             Status     `db:"status" json:"status"`
	StartDate          time.Time  `db:"start_date" json:"start_date"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CurrentPriceCents  int64      `db:"current_price_cents" json:"current_price_cents"`
	BillingCycleDays   int        `db:"billing_cycle_days" json:"billing_cycle_days"`
	NextBillingDate    time.Time  `db:"next_billing_date" json:"next_billing_date"`
	PaymentMethod      string     `db:"payment_method" json:"payment_method"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// CancellationConfirmation is returned when recurring billing is stopped.
type CancellationConfirmation struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	CancelledAt    time.Time `json:"cancelled_at"`
}
