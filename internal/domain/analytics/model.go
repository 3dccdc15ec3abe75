package analytics

import "time"

// Window is the half-open reporting interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the window length in whole days, at least 1.
func (w Window) Days() int {
	days := int(w.End.Sub(w.Start).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DefaultWindow is the trailing 12 months ending at now.
func DefaultWindow(now time.Time) Window {
	return Window{Start: now.AddDate(0, -12, 0), End: now}
}

// SubscriptionMetrics are the headline subscription counts and rates.
// Rates are percentages; a zero denominator yields 0.
type SubscriptionMetrics struct {
	Total               int     `json:"total"`
	Active              int     `json:"active"`
	Trial               int     `json:"trial"`
	Cancelled           int     `json:"cancelled"`
	ActivationRate      float64 `json:"activation_rate"`
	TrialConversionRate float64 `json:"trial_conversion_rate"`
}

// RevenueMetrics roll up Paid records in the window. Amounts are minor
// units.
type RevenueMetrics struct {
	TotalRevenueCents      int64 `json:"total_revenue_cents"`
	PaidCount              int   `json:"paid_count"`
	AverageOrderValueCents int64 `json:"average_order_value_cents"`
	RevenuePerDayCents     int64 `json:"revenue_per_day_cents"`
}

// PlanChurn is the churn contribution of a single plan.
type PlanChurn struct {
	PlanID    string `json:"plan_id"`
	Cancelled int    `json:"cancelled"`
}

// MonthlyChurn is the cancellations in one calendar month.
type MonthlyChurn struct {
	Year      int `json:"year"`
	Month     int `json:"month"`
	Cancelled int `json:"cancelled"`
}

// ChurnReason groups cancellations by stated reason.
type ChurnReason struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

type ChurnMetrics struct {
	ChurnRate         float64        `json:"churn_rate"`
	CancelledInPeriod int            `json:"cancelled_in_period"`
	ActiveAtStart     int            `json:"active_at_start"`
	ByPlan            []PlanChurn    `json:"by_plan"`
	ByMonth           []MonthlyChurn `json:"by_month"`
	Reasons           []ChurnReason  `json:"reasons"`
}

type GrowthMetrics struct {
	NewSubscriptions int     `json:"new_subscriptions"`
	GrowthRate       float64 `json:"growth_rate"`
}

// PlanStats is one plan's share of the distribution. Retention is
// active/total×100 for the plan.
type PlanStats struct {
	PlanID    string  `json:"plan_id"`
	PlanName  string  `json:"plan_name"`
	Total     int     `json:"total"`
	Active    int     `json:"active"`
	Retention float64 `json:"retention"`
}

// MonthlyPayments is the payment breakdown for one calendar month.
type MonthlyPayments struct {
	Year           int   `json:"year"`
	Month          int   `json:"month"`
	Successful     int   `json:"successful"`
	Failed         int   `json:"failed"`
	TotalPaidCents int64 `json:"total_paid_cents"`
}

// MethodSuccess is the per-payment-method success rate.
type MethodSuccess struct {
	Method      string  `json:"method"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

type PaymentAnalytics struct {
	SuccessRate    float64           `json:"success_rate"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	TotalPaidCents int64             `json:"total_paid_cents"`
	Monthly        []MonthlyPayments `json:"monthly"`
	ByMethod       []MethodSuccess   `json:"by_method"`
}

// Report is the full aggregate payload served and exported.
type Report struct {
	Window                Window              `json:"window"`
	GeneratedAt           time.Time           `json:"generated_at"`
	Subscriptions         SubscriptionMetrics `json:"subscriptions"`
	Revenue               RevenueMetrics      `json:"revenue"`
	Churn                 ChurnMetrics        `json:"churn"`
	Growth                GrowthMetrics       `json:"growth"`
	PlanDistribution      []PlanStats         `json:"plan_distribution"`
	CustomerLifetimeValue int64               `json:"customer_lifetime_value_cents"`
	Payments              PaymentAnalytics    `json:"payments"`
}
