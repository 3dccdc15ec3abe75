package billing

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, true},
		{StatusPending, StatusRefunded, false},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusPaid, true},
		{StatusPaid, StatusRefunded, true},
		{StatusPaid, StatusPending, false},
		{StatusPaid, StatusFailed, false},
		{StatusRefunded, StatusPending, false},
		{StatusRefunded, StatusPaid, false},
		{StatusRefunded, StatusRefunded, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if _, ok := ParseStatus("paid"); !ok {
		t.Error("paid should be a valid stored status")
	}
	if _, ok := ParseStatus("overdue"); ok {
		t.Error("overdue is derived and should not be a valid stored status")
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Error("bogus should not parse")
	}
}

func TestRecord_IsOverdue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	cases := []struct {
		name    string
		status  Status
		dueDate *time.Time
		want    bool
	}{
		{"pending past due", StatusPending, &past, true},
		{"pending not yet due", StatusPending, &future, false},
		{"pending without due date", StatusPending, nil, false},
		{"paid past due", StatusPaid, &past, false},
		{"failed past due", StatusFailed, &past, false},
		{"refunded past due", StatusRefunded, &past, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Record{Status: tc.status, DueDate: tc.dueDate}
			if got := r.IsOverdue(now); got != tc.want {
				t.Errorf("IsOverdue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRecord_EffectiveStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -2)

	r := &Record{Status: StatusPending, DueDate: &past}
	if got := r.EffectiveStatus(now); got != StatusOverdue {
		t.Errorf("expected overdue, got %s", got)
	}
	if r.Status != StatusPending {
		t.Error("stored status must remain pending")
	}

	r.Status = StatusPaid
	if got := r.EffectiveStatus(now); got != StatusPaid {
		t.Errorf("expected paid, got %s", got)
	}
}
