package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smarttelehealth/billing/internal/domain/billing"
	"github.com/smarttelehealth/billing/internal/platform/apperr"
	"github.com/smarttelehealth/billing/internal/platform/auth"
	"github.com/smarttelehealth/billing/internal/platform/events"
)

// BillingEngine is the slice of the billing engine the orchestrator needs:
// raising charge records and collecting them.
type BillingEngine interface {
	CreateRecord(ctx context.Context, caller auth.Caller, in billing.CreateRecordInput) (*billing.Record, error)
	ProcessPayment(ctx context.Context, caller auth.Caller, recordID uuid.UUID) (*billing.PaymentResult, error)
	GetRecordByCycleKey(ctx context.Context, subscriptionID uuid.UUID, cycleKey string) (*billing.Record, error)
}

// Service is the recurring billing orchestrator. The periodic trigger lives
// outside this service (cron, scheduler); each call here is synchronous and
// processes exactly one subscription cycle.
type Service struct {
	subs    Repository
	billing BillingEngine
	pub     events.Publisher
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(subs Repository, engine BillingEngine, pub events.Publisher, log zerolog.Logger) *Service {
	return &Service{subs: subs, billing: engine, pub: pub, log: log, now: time.Now}
}

func (s *Service) fail(err error, op string) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.log.Error().Err(err).Str("op", op).Msg("subscription operation failed")
		return apperr.Wrap(apperr.KindInternal, err, "internal server error")
	}
	return err
}

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

// CreateInput carries the caller-supplied fields for a new subscription.
type CreateInput struct {
	UserID            uuid.UUID  `json:"user_id"`
	PlanID            string     `json:"plan_id"`
	PlanName          string     `json:"plan_name"`
	Trial             bool       `json:"trial"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	CurrentPriceCents int64      `json:"current_price_cents"`
	BillingCycleDays  int        `json:"billing_cycle_days"`
	PaymentMethod     string     `json:"payment_method"`
}

func (s *Service) CreateSubscription(ctx context.Context, caller auth.Caller, in CreateInput) (*Subscription, error) {
	if in.UserID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}
	if strings.TrimSpace(in.PlanID) == "" {
		return nil, apperr.Validation("plan_id is required")
	}
	if in.CurrentPriceCents < 0 {
		return nil, apperr.Validation("current_price_cents must not be negative")
	}
	if in.BillingCycleDays <= 0 {
		in.BillingCycleDays = DefaultBillingCycleDays
	}

	now := s.now().UTC()
	start := now
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	status := StatusActive
	if in.Trial {
		status = StatusTrialActive
	}

	sub := &Subscription{
		ID:                uuid.New(),
		UserID:            in.UserID,
		PlanID:            in.PlanID,
		PlanName:          in.PlanName,
		Status:            status,
		StartDate:         start,
		CurrentPriceCents: in.CurrentPriceCents,
		BillingCycleDays:  in.BillingCycleDays,
		NextBillingDate:   start.AddDate(0, 0, in.BillingCycleDays),
		PaymentMethod:     in.PaymentMethod,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, s.fail(err, "create_subscription")
	}
	s.log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("plan_id", sub.PlanID).
		Str("caller", caller.Subject).
		Msg("subscription created")
	return sub, nil
}

func (s *Service) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(err, "get_subscription")
	}
	return sub, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, filter Filter, limit, offset int) ([]*Subscription, int, error) {
	subs, total, err := s.subs.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, s.fail(err, "list_subscriptions")
	}
	return subs, total, nil
}

// AllSubscriptions exposes raw subscriptions for the analytics aggregator.
func (s *Service) AllSubscriptions(ctx context.Context) ([]*Subscription, error) {
	subs, err := s.subs.ListAll(ctx)
	if err != nil {
		return nil, s.fail(err, "all_subscriptions")
	}
	return subs, nil
}

// CreateRecurringBilling raises the recurring billing record for a
// subscription without charging it: the record is Pending with
// NextBillingDate one cadence out.
func (s *Service) CreateRecurringBilling(ctx context.Context, caller auth.Caller, subscriptionID uuid.UUID, cadenceDays int) (*billing.Record, error) {
	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, s.fail(err, "create_recurring_billing")
	}
	if !sub.Status.IsBillable() {
		return nil, apperr.Conflict("subscription is %s and cannot be billed", sub.Status)
	}
	if cadenceDays <= 0 {
		cadenceDays = sub.BillingCycleDays
	}

	billingDate := sub.NextBillingDate
	next := billingDate.AddDate(0, 0, cadenceDays)
	rec, err := s.billing.CreateRecord(ctx, caller, billing.CreateRecordInput{
		UserID:          sub.UserID,
		SubscriptionID:  &sub.ID,
		AmountCents:     sub.CurrentPriceCents,
		Description:     fmt.Sprintf("Recurring charge for plan %s", sub.PlanName),
		Type:            billing.TypeSubscription,
		BillingDate:     &billingDate,
		DueDate:         &billingDate,
		PaymentMethod:   sub.PaymentMethod,
		IsRecurring:     true,
		NextBillingDate: &next,
	})
	if err != nil {
		return nil, s.fail(err, "create_recurring_billing")
	}
	return rec, nil
}

// ProcessRecurringPayment runs one billing cycle: it raises exactly one
// record for the subscription, charges it, and advances NextBillingDate.
// When cycleKey is supplied the call is idempotent per key: a repeat trigger
// returns the existing record's outcome without charging again.
func (s *Service) ProcessRecurringPayment(ctx context.Context, caller auth.Caller, subscriptionID uuid.UUID, cycleKey string) (*billing.PaymentResult, error) {
	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, s.fail(err, "process_recurring_payment")
	}
	if !sub.Status.IsBillable() {
		return nil, apperr.Conflict("subscription is %s and cannot be billed", sub.Status)
	}

	if cycleKey != "" {
		existing, err := s.billing.GetRecordByCycleKey(ctx, sub.ID, cycleKey)
		if err == nil {
			s.log.Info().
				Str("subscription_id", sub.ID.String()).
				Str("cycle_key", cycleKey).
				Msg("duplicate cycle trigger, returning existing record")
			result := &billing.PaymentResult{
				RecordID:    existing.ID,
				Status:      existing.Status,
				AmountCents: existing.AmountCents,
			}
			if existing.TransactionID != nil {
				result.TransactionID = *existing.TransactionID
			}
			if existing.PaidAt != nil {
				result.ProcessedAt = *existing.PaidAt
			}
			return result, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, s.fail(err, "process_recurring_payment")
		}
	}

	billingDate := sub.NextBillingDate
	var key *string
	if cycleKey != "" {
		key = &cycleKey
	}
	rec, err := s.billing.CreateRecord(ctx, caller, billing.CreateRecordInput{
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		AmountCents:    sub.CurrentPriceCents,
		Description:    fmt.Sprintf("Recurring charge for plan %s", sub.PlanName),
		Type:           billing.TypeSubscription,
		BillingDate:    &billingDate,
		DueDate:        &billingDate,
		PaymentMethod:  sub.PaymentMethod,
		IsRecurring:    true,
		CycleKey:       key,
	})
	if err != nil {
		return nil, s.fail(err, "process_recurring_payment")
	}

	result, err := s.billing.ProcessPayment(ctx, caller, rec.ID)
	if err != nil {
		return nil, s.fail(err, "process_recurring_payment")
	}

	sub.NextBillingDate = sub.NextBillingDate.AddDate(0, 0, sub.BillingCycleDays)
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, s.fail(err, "process_recurring_payment")
	}
	return result, nil
}

// CancelRecurringBilling stops future cycles. Past billing records are
// untouched.
func (s *Service) CancelRecurringBilling(ctx context.Context, caller auth.Caller, subscriptionID uuid.UUID, reason string) (*CancellationConfirmation, error) {
	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, s.fail(err, "cancel_recurring_billing")
	}
	if !sub.Status.CanTransitionTo(StatusCancelled) {
		return nil, apperr.Conflict("subscription is %s and cannot be cancelled", sub.Status)
	}

	now := s.now().UTC()
	sub.Status = StatusCancelled
	sub.CancelledAt = &now
	if reason != "" {
		sub.CancellationReason = &reason
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, s.fail(err, "cancel_recurring_billing")
	}

	s.publish(ctx, events.SubscriptionCancelled, caller.Subject, map[string]interface{}{
		"subscription_id": sub.ID, "reason": reason,
	})
	return &CancellationConfirmation{SubscriptionID: sub.ID, CancelledAt: now}, nil
}

// SuspendSubscription pauses billing without ending the subscription.
func (s *Service) SuspendSubscription(ctx context.Context, caller auth.Caller, subscriptionID uuid.UUID) (*Subscription, error) {
	return s.transition(ctx, caller, subscriptionID, StatusSuspended, "suspend_subscription")
}

// ResumeSubscription reactivates a suspended subscription.
func (s *Service) ResumeSubscription(ctx context.Context, caller auth.Caller, subscriptionID uuid.UUID) (*Subscription, error) {
	return s.transition(ctx, caller, subscriptionID, StatusActive, "resume_subscription")
}

func (s *Service) transition(ctx context.Context, caller auth.Caller, id uuid.UUID, to Status, op string) (*Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(err, op)
	}
	if !sub.Status.CanTransitionTo(to) {
		return nil, apperr.Conflict("subscription cannot move from %s to %s", sub.Status, to)
	}
	sub.Status = to
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, s.fail(err, op)
	}
	s.log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("status", string(to)).
		Str("caller", caller.Subject).
		Msg("subscription status changed")
	return sub, nil
}
