package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smarttelehealth/billing/internal/platform/apperr"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const subCols = `id, user_id, plan_id, plan_name, status, start_date,
	cancelled_at, cancellation_reason, current_price_cents, billing_cycle_days,
	next_billing_date, payment_method, version, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PlanName, &s.Status, &s.StartDate,
		&s.CancelledAt, &s.CancellationReason, &s.CurrentPriceCents, &s.BillingCycleDays,
		&s.NextBillingDate, &s.PaymentMethod, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("subscription not found")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Subscription) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Version = 1
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscription (id, user_id, plan_id, plan_name, status, start_date,
			cancelled_at, cancellation_reason, current_price_cents, billing_cycle_days,
			next_billing_date, payment_method, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.ID, s.UserID, s.PlanID, s.PlanName, s.Status, s.StartDate,
		s.CancelledAt, s.CancellationReason, s.CurrentPriceCents, s.BillingCycleDays,
		s.NextBillingDate, s.PaymentMethod, s.Version)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subCols+` FROM subscription WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, s *Subscription) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscription SET
			status=$3, cancelled_at=$4, cancellation_reason=$5, current_price_cents=$6,
			billing_cycle_days=$7, next_billing_date=$8, payment_method=$9,
			version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $2`,
		s.ID, s.Version,
		s.Status, s.CancelledAt, s.CancellationReason, s.CurrentPriceCents,
		s.BillingCycleDays, s.NextBillingDate, s.PaymentMethod)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("subscription %s was modified concurrently", s.ID)
	}
	s.Version++
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Subscription, int, error) {
	clauses := []string{"1=1"}
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != nil {
		clauses = append(clauses, "user_id = "+arg(*f.UserID))
	}
	if f.Status != nil {
		clauses = append(clauses, "status = "+arg(*f.Status))
	}
	if f.PlanID != nil {
		clauses = append(clauses, "plan_id = "+arg(*f.PlanID))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscription WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+subCols+` FROM subscription WHERE `+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs, err := collectSubscriptions(rows)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Subscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+subCols+` FROM subscription ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]*Subscription, error) {
	var subs []*Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
