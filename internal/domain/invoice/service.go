// Package invoice assigns and serves invoices for billing records. An
// invoice is a projection of a record: the number is written once onto the
// record and the rest is derived on read.
package invoice

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

// RecordStore is the slice of the billing repository the invoice manager
// needs. billing.RecordRepository satisfies it.
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*billing.Record, error)
	GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*billing.Record, error)
	Update(ctx context.Context, r *billing.Record) error
}

// Invoice is the customer-facing projection of a billing record.
type Invoice struct {
	RecordID      uuid.UUID      `json:"record_id"`
	InvoiceNumber string         `json:"invoice_number"`
	UserID        uuid.UUID      `json:"user_id"`
	AmountCents   int64          `json:"amount_cents"`
	Currency      string         `json:"currency"`
	Status        billing.Status `json:"status"`
	BillingDate   time.Time      `json:"billing_date"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	Description   string         `json:"description"`
}

type Service struct {
	records RecordStore
	pub     events.Publisher
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(records RecordStore, pub events.Publisher, log zerolog.Logger) *Service {
	return &Service{records: records, pub: pub, log: log, now: time.Now}
}

func (s *Service) fail(err error, op string) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.log.Error().Err(err).Str("op", op).Msg("invoice operation failed")
		return apperr.Wrap(apperr.KindInternal, err, "internal server error")
	}
	return err
}

// newInvoiceNumber generates INV-{yyyyMMdd}-{8 uppercase hex}. The random
// suffix comes from crypto/rand so numbers are not guessable.
func (s *Service) newInvoiceNumber() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invoice suffix: %w", err)
	}
	return fmt.Sprintf("INV-%s-%s", s.now().UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(buf))), nil
}

func toInvoice(rec *billing.Record) *Invoice {
	return &Invoice{
		RecordID:      rec.ID,
		InvoiceNumber: *rec.InvoiceNumber,
		UserID:        rec.UserID,
		AmountCents:   rec.AmountCents,
		Currency:      rec.Currency,
		Status:        rec.Status,
		BillingDate:   rec.BillingDate,
		DueDate:       rec.DueDate,
		Description:   rec.Description,
	}
}

// GenerateInvoice assigns an invoice number to the record if it has none and
// returns the invoice projection. Repeat calls return the same number.
func (s *Service) GenerateInvoice(ctx context.Context, caller auth.Caller, recordID uuid.UUID) (*Invoice, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.fail(err, "generate_invoice")
	}
	if rec.InvoiceNumber != nil {
		return toInvoice(rec), nil
	}

	num, err := s.newInvoiceNumber()
	if err != nil {
		return nil, s.fail(err, "generate_invoice")
	}
	rec.InvoiceNumber = &num
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, s.fail(err, "generate_invoice")
	}

	if err := s.pub.Publish(ctx, events.InvoiceGenerated, events.Event{
		Type:       events.InvoiceGenerated,
		Actor:      caller.Subject,
		OccurredAt: s.now().UTC(),
		Payload:    map[string]interface{}{"record_id": rec.ID, "invoice_number": num},
	}); err != nil {
		s.log.Warn().Err(err).Str("invoice_number", num).Msg("event publish failed")
	}
	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("invoice_number", num).
		Str("caller", caller.Subject).
		Msg("invoice generated")
	return toInvoice(rec), nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceNumber string) (*Invoice, error) {
	rec, err := s.records.GetByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, s.fail(err, "get_invoice")
	}
	return toInvoice(rec), nil
}

// UpdateInvoiceStatus moves the underlying record's status through the
// canonical transition table.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, caller auth.Caller, invoiceNumber string, newStatus string) (*Invoice, error) {
	status, ok := billing.ParseStatus(newStatus)
	if !ok {
		return nil, apperr.Validation("invalid status: %s", newStatus)
	}
	rec, err := s.records.GetByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, s.fail(err, "update_invoice_status")
	}
	if !rec.Status.CanTransitionTo(status) {
		return nil, apperr.Conflict("invoice cannot move from %s to %s", rec.Status, status)
	}

	rec.Status = status
	if status == billing.StatusPaid && rec.PaidAt == nil {
		now := s.now().UTC()
		rec.PaidAt = &now
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, s.fail(err, "update_invoice_status")
	}
	s.log.Info().
		Str("invoice_number", invoiceNumber).
		Str("status", newStatus).
		Str("caller", caller.Subject).
		Msg("invoice status updated")
	return toInvoice(rec), nil
}

// RenderPDF renders the invoice document. Returns the bytes plus the
// filename and content type for the download response.
func (s *Service) RenderPDF(ctx context.Context, invoiceNumber string) ([]byte, string, string, error) {
	inv, err := s.GetInvoice(ctx, invoiceNumber)
	if err != nil {
		return nil, "", "", err
	}
	data, err := renderPDF(inv)
	if err != nil {
		return nil, "", "", s.fail(err, "render_pdf")
	}
	return data, fmt.Sprintf("%s.pdf", inv.InvoiceNumber), "application/pdf", nil
}
