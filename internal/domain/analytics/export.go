package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smarttelehealth/billing/internal/platform/apperr"
)

// Export serializes the report. Supported formats are "csv" and "json"
// (the default); anything else is a validation error. Returns bytes plus
// the filename and content type for the download response.
func Export(report *Report, format string) ([]byte, string, string, error) {
	stamp := report.GeneratedAt.Format("20060102")
	switch strings.ToLower(format) {
	case "", "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, "", "", fmt.Errorf("marshal report: %w", err)
		}
		return data, fmt.Sprintf("analytics-%s.json", stamp), "application/json", nil
	case "csv":
		data, err := exportCSV(report)
		if err != nil {
			return nil, "", "", err
		}
		return data, fmt.Sprintf("analytics-%s.csv", stamp), "text/csv", nil
	default:
		return nil, "", "", apperr.Validation("unsupported export format: %s", format)
	}
}

// exportCSV flattens the report into metric,value rows with one section per
// aggregate, followed by the monthly and distribution series.
func exportCSV(report *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "metric", "value"},
		{"window", "start", report.Window.Start.Format("2006-01-02")},
		{"window", "end", report.Window.End.Format("2006-01-02")},
		{"subscriptions", "total", strconv.Itoa(report.Subscriptions.Total)},
		{"subscriptions", "active", strconv.Itoa(report.Subscriptions.Active)},
		{"subscriptions", "trial", strconv.Itoa(report.Subscriptions.Trial)},
		{"subscriptions", "cancelled", strconv.Itoa(report.Subscriptions.Cancelled)},
		{"subscriptions", "activation_rate", formatRate(report.Subscriptions.ActivationRate)},
		{"subscriptions", "trial_conversion_rate", formatRate(report.Subscriptions.TrialConversionRate)},
		{"revenue", "total_revenue_cents", strconv.FormatInt(report.Revenue.TotalRevenueCents, 10)},
		{"revenue", "paid_count", strconv.Itoa(report.Revenue.PaidCount)},
		{"revenue", "average_order_value_cents", strconv.FormatInt(report.Revenue.AverageOrderValueCents, 10)},
		{"revenue", "revenue_per_day_cents", strconv.FormatInt(report.Revenue.RevenuePerDayCents, 10)},
		{"churn", "churn_rate", formatRate(report.Churn.ChurnRate)},
		{"churn", "cancelled_in_period", strconv.Itoa(report.Churn.CancelledInPeriod)},
		{"churn", "active_at_start", strconv.Itoa(report.Churn.ActiveAtStart)},
		{"growth", "new_subscriptions", strconv.Itoa(report.Growth.NewSubscriptions)},
		{"growth", "growth_rate", formatRate(report.Growth.GrowthRate)},
		{"clv", "customer_lifetime_value_cents", strconv.FormatInt(report.CustomerLifetimeValue, 10)},
		{"payments", "success_rate", formatRate(report.Payments.SuccessRate)},
		{"payments", "successful", strconv.Itoa(report.Payments.Successful)},
		{"payments", "failed", strconv.Itoa(report.Payments.Failed)},
		{"payments", "total_paid_cents", strconv.FormatInt(report.Payments.TotalPaidCents, 10)},
	}
	for _, p := range report.PlanDistribution {
		rows = append(rows, []string{"plan_distribution", p.PlanID, formatRate(p.Retention)})
	}
	for _, mp := range report.Payments.Monthly {
		rows = append(rows, []string{
			"monthly_payments",
			fmt.Sprintf("%04d-%02d", mp.Year, mp.Month),
			strconv.FormatInt(mp.TotalPaidCents, 10),
		})
	}
	for _, ms := range report.Payments.ByMethod {
		rows = append(rows, []string{"method_success", ms.Method, formatRate(ms.SuccessRate)})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
