package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smarttelehealth/billing/internal/platform/apperr"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository { return &recordRepoPG{pool: pool} }

const recordCols = `id, user_id, subscription_id, amount_cents, currency, description,
	status, record_type, billing_date, due_date, paid_at, invoice_number,
	payment_method, transaction_id, error_message, is_recurring,
	next_billing_date, cycle_key, version, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.UserID, &r.SubscriptionID, &r.AmountCents, &r.Currency, &r.Description,
		&r.Status, &r.Type, &r.BillingDate, &r.DueDate, &r.PaidAt, &r.InvoiceNumber,
		&r.PaymentMethod, &r.TransactionID, &r.ErrorMessage, &r.IsRecurring,
		&r.NextBillingDate, &r.CycleKey, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("billing record not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Version = 1
	_, err := r.pool.Exec(ctx, `
		INSERT INTO billing_record (id, user_id, subscription_id, amount_cents, currency, description,
			status, record_type, billing_date, due_date, paid_at, invoice_number,
			payment_method, transaction_id, error_message, is_recurring,
			next_billing_date, cycle_key, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		rec.ID, rec.UserID, rec.SubscriptionID, rec.AmountCents, rec.Currency, rec.Description,
		rec.Status, rec.Type, rec.BillingDate, rec.DueDate, rec.PaidAt, rec.InvoiceNumber,
		rec.PaymentMethod, rec.TransactionID, rec.ErrorMessage, rec.IsRecurring,
		rec.NextBillingDate, rec.CycleKey, rec.Version)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordCols+` FROM billing_record WHERE id = $1`, id))
}

func (r *recordRepoPG) GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordCols+` FROM billing_record WHERE invoice_number = $1`, invoiceNumber))
}

func (r *recordRepoPG) GetByCycleKey(ctx context.Context, subscriptionID uuid.UUID, cycleKey string) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM billing_record WHERE subscription_id = $1 AND cycle_key = $2`,
		subscriptionID, cycleKey))
}

// Update compares-and-swaps on version so concurrent writers lose cleanly
// instead of overwriting each other.
func (r *recordRepoPG) Update(ctx context.Context, rec *Record) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE billing_record SET
			status=$3, amount_cents=$4, description=$5, due_date=$6, paid_at=$7,
			invoice_number=$8, payment_method=$9, transaction_id=$10, error_message=$11,
			next_billing_date=$12, cycle_key=$13, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $2`,
		rec.ID, rec.Version,
		rec.Status, rec.AmountCents, rec.Description, rec.DueDate, rec.PaidAt,
		rec.InvoiceNumber, rec.PaymentMethod, rec.TransactionID, rec.ErrorMessage,
		rec.NextBillingDate, rec.CycleKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("billing record %s was modified concurrently", rec.ID)
	}
	rec.Version++
	return nil
}

// buildFilter translates a RecordFilter into a WHERE clause. StatusOverdue
// is derived, so it becomes pending-with-past-due-date.
func buildFilter(f RecordFilter) (string, []interface{}) {
	clauses := []string{"1=1"}
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != nil {
		clauses = append(clauses, "user_id = "+arg(*f.UserID))
	}
	if f.SubscriptionID != nil {
		clauses = append(clauses, "subscription_id = "+arg(*f.SubscriptionID))
	}
	if f.From != nil {
		clauses = append(clauses, "billing_date >= "+arg(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "billing_date < "+arg(*f.To))
	}
	if len(f.Statuses) > 0 {
		var stored []string
		overdue := false
		for _, st := range f.Statuses {
			if st == StatusOverdue {
				overdue = true
				continue
			}
			stored = append(stored, arg(st))
		}
		var parts []string
		if len(stored) > 0 {
			parts = append(parts, "status IN ("+strings.Join(stored, ",")+")")
		}
		if overdue {
			parts = append(parts, fmt.Sprintf("(status = '%s' AND due_date IS NOT NULL AND due_date < NOW())", StatusPending))
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}

	return strings.Join(clauses, " AND "), args
}

func (r *recordRepoPG) List(ctx context.Context, filter RecordFilter, limit, offset int) ([]*Record, int, error) {
	where, args := buildFilter(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM billing_record WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordCols+` FROM billing_record WHERE `+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *recordRepoPG) ListInWindow(ctx context.Context, from, to time.Time) ([]*Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordCols+` FROM billing_record WHERE billing_date >= $1 AND billing_date < $2 ORDER BY billing_date ASC`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *recordRepoPG) AddAdjustment(ctx context.Context, a *Adjustment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO billing_adjustment (id, record_id, amount_cents, reason, applied_by, applied_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.RecordID, a.AmountCents, a.Reason, a.AppliedBy, a.AppliedAt)
	return err
}

func (r *recordRepoPG) ListAdjustments(ctx context.Context, recordID uuid.UUID) ([]*Adjustment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, record_id, amount_cents, reason, applied_by, applied_at
		FROM billing_adjustment WHERE record_id = $1 ORDER BY applied_at ASC`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []*Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.RecordID, &a.AmountCents, &a.Reason, &a.AppliedBy, &a.AppliedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, &a)
	}
	return adjustments, rows.Err()
}

func (r *recordRepoPG) AddPartialPayment(ctx context.Context, p *PartialPayment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO partial_payment (id, record_id, amount_cents, transaction_id, received_at)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.RecordID, p.AmountCents, p.TransactionID, p.ReceivedAt)
	return err
}

func (r *recordRepoPG) ListPartialPayments(ctx context.Context, recordID uuid.UUID) ([]*PartialPayment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, record_id, amount_cents, transaction_id, received_at
		FROM partial_payment WHERE record_id = $1 ORDER BY received_at ASC`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*PartialPayment
	for rows.Next() {
		var p PartialPayment
		if err := rows.Scan(&p.ID, &p.RecordID, &p.AmountCents, &p.TransactionID, &p.ReceivedAt); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

func (r *recordRepoPG) SumPartialPayments(ctx context.Context, recordID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM partial_payment WHERE record_id = $1`,
		recordID).Scan(&sum)
	return sum, err
}
