// Package analytics computes read-only rollups over billing and
// subscription history. Every metric is a pure function of the input
// slices; the service only fetches the inputs and assembles the report.
package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/smarttelehealth/billing/internal/domain/billing"
	"github.com/smarttelehealth/billing/internal/domain/subscription"
	"github.com/smarttelehealth/billing/internal/platform/apperr"
)

// BillingSource is the slice of the billing engine the aggregator reads.
type BillingSource interface {
	RecordsInWindow(ctx context.Context, from, to time.Time) ([]*billing.Record, error)
}

// SubscriptionSource is the slice of the subscription service the
// aggregator reads.
type SubscriptionSource interface {
	AllSubscriptions(ctx context.Context) ([]*subscription.Subscription, error)
}

type Service struct {
	billing BillingSource
	subs    SubscriptionSource
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(billingSrc BillingSource, subsSrc SubscriptionSource, log zerolog.Logger) *Service {
	return &Service{billing: billingSrc, subs: subsSrc, log: log, now: time.Now}
}

func (s *Service) fail(err error, op string) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.log.Error().Err(err).Str("op", op).Msg("analytics operation failed")
		return apperr.Wrap(apperr.KindInternal, err, "internal server error")
	}
	return err
}

// Report assembles the full aggregate for the window. A zero-valued window
// defaults to the trailing 12 months.
func (s *Service) Report(ctx context.Context, window Window) (*Report, error) {
	if window.Start.IsZero() || window.End.IsZero() {
		window = DefaultWindow(s.now().UTC())
	}
	if !window.End.After(window.Start) {
		return nil, apperr.Validation("window end must be after start")
	}

	records, err := s.billing.RecordsInWindow(ctx, window.Start, window.End)
	if err != nil {
		return nil, s.fail(err, "report")
	}
	subs, err := s.subs.AllSubscriptions(ctx)
	if err != nil {
		return nil, s.fail(err, "report")
	}

	return &Report{
		Window:                window,
		GeneratedAt:           s.now().UTC(),
		Subscriptions:         ComputeSubscriptionMetrics(subs),
		Revenue:               ComputeRevenueMetrics(records, window),
		Churn:                 ComputeChurnMetrics(subs, window),
		Growth:                ComputeGrowthMetrics(subs, window),
		PlanDistribution:      ComputePlanDistribution(subs),
		CustomerLifetimeValue: ComputeCustomerLifetimeValue(subs),
		Payments:              ComputePaymentAnalytics(records),
	}, nil
}

// RevenueSummary is reserved for a condensed finance view. Report carries
// the full revenue metrics in the meantime.
func (s *Service) RevenueSummary(ctx context.Context, window Window) (interface{}, error) {
	return nil, apperr.NotImplemented("revenue summary is not implemented")
}

// pct guards every rate computation: a zero denominator yields 0.
func pct(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

func ComputeSubscriptionMetrics(subs []*subscription.Subscription) SubscriptionMetrics {
	m := SubscriptionMetrics{Total: len(subs)}
	for _, s := range subs {
		switch s.Status {
		case subscription.StatusActive:
			m.Active++
		case subscription.StatusTrialActive:
			m.Trial++
		case subscription.StatusCancelled:
			m.Cancelled++
		}
	}
	m.ActivationRate = pct(m.Active, m.Total)
	m.TrialConversionRate = pct(m.Active, m.Trial)
	return m
}

func ComputeRevenueMetrics(records []*billing.Record, window Window) RevenueMetrics {
	var m RevenueMetrics
	for _, r := range records {
		if r.Status == billing.StatusPaid {
			m.TotalRevenueCents += r.AmountCents
			m.PaidCount++
		}
	}
	if m.PaidCount > 0 {
		m.AverageOrderValueCents = m.TotalRevenueCents / int64(m.PaidCount)
	}
	m.RevenuePerDayCents = m.TotalRevenueCents / int64(window.Days())
	return m
}

func ComputeChurnMetrics(subs []*subscription.Subscription, window Window) ChurnMetrics {
	var m ChurnMetrics
	byPlan := make(map[string]int)
	byMonth := make(map[[2]int]int)
	reasons := make(map[string]int)

	for _, s := range subs {
		// Active at window start: started before the window and not yet
		// cancelled by then.
		if s.StartDate.Before(window.Start) && (s.CancelledAt == nil || !s.CancelledAt.Before(window.Start)) {
			m.ActiveAtStart++
		}
		if s.CancelledAt == nil || !window.Contains(*s.CancelledAt) {
			continue
		}
		m.CancelledInPeriod++
		byPlan[s.PlanID]++
		key := [2]int{s.CancelledAt.Year(), int(s.CancelledAt.Month())}
		byMonth[key]++
		reason := "No reason provided"
		if s.CancellationReason != nil && *s.CancellationReason != "" {
			reason = *s.CancellationReason
		}
		reasons[reason]++
	}
	m.ChurnRate = pct(m.CancelledInPeriod, m.ActiveAtStart)

	for plan, count := range byPlan {
		m.ByPlan = append(m.ByPlan, PlanChurn{PlanID: plan, Cancelled: count})
	}
	sort.Slice(m.ByPlan, func(i, j int) bool {
		if m.ByPlan[i].Cancelled != m.ByPlan[j].Cancelled {
			return m.ByPlan[i].Cancelled > m.ByPlan[j].Cancelled
		}
		return m.ByPlan[i].PlanID < m.ByPlan[j].PlanID
	})

	for key, count := range byMonth {
		m.ByMonth = append(m.ByMonth, MonthlyChurn{Year: key[0], Month: key[1], Cancelled: count})
	}
	sort.Slice(m.ByMonth, func(i, j int) bool {
		if m.ByMonth[i].Year != m.ByMonth[j].Year {
			return m.ByMonth[i].Year < m.ByMonth[j].Year
		}
		return m.ByMonth[i].Month < m.ByMonth[j].Month
	})

	for reason, count := range reasons {
		m.Reasons = append(m.Reasons, ChurnReason{Reason: reason, Count: count})
	}
	sort.Slice(m.Reasons, func(i, j int) bool {
		if m.Reasons[i].Count != m.Reasons[j].Count {
			return m.Reasons[i].Count > m.Reasons[j].Count
		}
		return m.Reasons[i].Reason < m.Reasons[j].Reason
	})

	return m
}

func ComputeGrowthMetrics(subs []*subscription.Subscription, window Window) GrowthMetrics {
	var m GrowthMetrics
	existingAtStart := 0
	for _, s := range subs {
		if window.Contains(s.StartDate) {
			m.NewSubscriptions++
		}
		if s.StartDate.Before(window.Start) {
			existingAtStart++
		}
	}
	m.GrowthRate = pct(m.NewSubscriptions, existingAtStart)
	return m
}

func ComputePlanDistribution(subs []*subscription.Subscription) []PlanStats {
	type bucket struct {
		name   string
		total  int
		active int
	}
	buckets := make(map[string]*bucket)
	for _, s := range subs {
		b, ok := buckets[s.PlanID]
		if !ok {
			b = &bucket{name: s.PlanName}
			buckets[s.PlanID] = b
		}
		b.total++
		if s.Status == subscription.StatusActive {
			b.active++
		}
	}

	var dist []PlanStats
	for plan, b := range buckets {
		dist = append(dist, PlanStats{
			PlanID:    plan,
			PlanName:  b.name,
			Total:     b.total,
			Active:    b.active,
			Retention: pct(b.active, b.total),
		})
	}
	sort.Slice(dist, func(i, j int) bool {
		if dist[i].Retention != dist[j].Retention {
			return dist[i].Retention > dist[j].Retention
		}
		return dist[i].PlanID < dist[j].PlanID
	})
	return dist
}

func ComputeCustomerLifetimeValue(subs []*subscription.Subscription) int64 {
	var total int64
	customers := make(map[string]bool)
	for _, s := range subs {
		if s.Status != subscription.StatusActive {
			continue
		}
		total += s.CurrentPriceCents
		customers[s.UserID.String()] = true
	}
	if len(customers) == 0 {
		return 0
	}
	return total / int64(len(customers))
}

func ComputePaymentAnalytics(records []*billing.Record) PaymentAnalytics {
	var m PaymentAnalytics
	monthly := make(map[[2]int]*MonthlyPayments)
	methods := make(map[string]*MethodSuccess)

	for _, r := range records {
		var success bool
		switch r.Status {
		case billing.StatusPaid, billing.StatusRefunded:
			// Refunded records were settled before the refund; the charge
			// itself succeeded.
			success = true
		case billing.StatusFailed:
			success = false
		default:
			continue
		}

		key := [2]int{r.BillingDate.Year(), int(r.BillingDate.Month())}
		mp, ok := monthly[key]
		if !ok {
			mp = &MonthlyPayments{Year: key[0], Month: key[1]}
			monthly[key] = mp
		}
		method := r.PaymentMethod
		if method == "" {
			method = "unknown"
		}
		ms, ok := methods[method]
		if !ok {
			ms = &MethodSuccess{Method: method}
			methods[method] = ms
		}

		if success {
			m.Successful++
			m.TotalPaidCents += r.AmountCents
			mp.Successful++
			mp.TotalPaidCents += r.AmountCents
			ms.Successful++
		} else {
			m.Failed++
			mp.Failed++
			ms.Failed++
		}
	}
	m.SuccessRate = pct(m.Successful, m.Successful+m.Failed)

	for _, mp := range monthly {
		m.Monthly = append(m.Monthly, *mp)
	}
	sort.Slice(m.Monthly, func(i, j int) bool {
		if m.Monthly[i].Year != m.Monthly[j].Year {
			return m.Monthly[i].Year < m.Monthly[j].Year
		}
		return m.Monthly[i].Month < m.Monthly[j].Month
	})

	for _, ms := range methods {
		ms.SuccessRate = pct(ms.Successful, ms.Successful+ms.Failed)
		m.ByMethod = append(m.ByMethod, *ms)
	}
	sort.Slice(m.ByMethod, func(i, j int) bool {
		if m.ByMethod[i].SuccessRate != m.ByMethod[j].SuccessRate {
			return m.ByMethod[i].SuccessRate > m.ByMethod[j].SuccessRate
		}
		return m.ByMethod[i].Method < m.ByMethod[j].Method
	})

	return m
}
