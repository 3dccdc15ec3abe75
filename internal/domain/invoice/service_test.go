package invoice

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smarttelehealth/billing/internal/domain/billing"
	"github.com/smarttelehealth/billing/internal/platform/apperr"
	"github.com/smarttelehealth/billing/internal/platform/auth"
	"github.com/smarttelehealth/billing/internal/platform/events"
)

type mockRecordStore struct {
	records map[uuid.UUID]*billing.Record
}

func newMockRecordStore() *mockRecordStore {
	return &mockRecordStore{records: make(map[uuid.UUID]*billing.Record)}
}

func (m *mockRecordStore) GetByID(_ context.Context, id uuid.UUID) (*billing.Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("billing record not found")
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordStore) GetByInvoiceNumber(_ context.Context, num string) (*billing.Record, error) {
	for _, r := range m.records {
		if r.InvoiceNumber != nil && *r.InvoiceNumber == num {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("billing record not found")
}

func (m *mockRecordStore) Update(_ context.Context, r *billing.Record) error {
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRecordStore) add(r *billing.Record) *billing.Record {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.records[r.ID] = r
	return r
}

type capturePublisher struct {
	published []string
}

func (p *capturePublisher) Publish(_ context.Context, key string, _ events.Event) error {
	p.published = append(p.published, key)
	return nil
}

func (p *capturePublisher) Close() {}

func newTestService() (*Service, *mockRecordStore, *capturePublisher) {
	store := newMockRecordStore()
	pub := &capturePublisher{}
	return NewService(store, pub, zerolog.Nop()), store, pub
}

var testCaller = auth.Caller{Subject: "admin-1", Roles: []string{"admin"}}

func pendingRecord() *billing.Record {
	return &billing.Record{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		AmountCents: 4999,
		Currency:    "usd",
		Description: "Monthly consult plan",
		Status:      billing.StatusPending,
		BillingDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

var invoiceNumberPattern = regexp.MustCompile(`^INV-\d{8}-[0-9A-F]{8}$`)

func TestGenerateInvoice_Format(t *testing.T) {
	svc, store, pub := newTestService()
	rec := store.add(pendingRecord())

	inv, err := svc.GenerateInvoice(context.Background(), testCaller, rec.ID)
	if err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}
	if !invoiceNumberPattern.MatchString(inv.InvoiceNumber) {
		t.Errorf("invoice number %q does not match INV-yyyyMMdd-XXXXXXXX", inv.InvoiceNumber)
	}
	if inv.AmountCents != rec.AmountCents || inv.UserID != rec.UserID {
		t.Errorf("invoice does not reflect the record: %+v", inv)
	}
	if len(pub.published) != 1 || pub.published[0] != events.InvoiceGenerated {
		t.Errorf("expected invoice.generated event, got %v", pub.published)
	}
}

func TestGenerateInvoice_WriteOnce(t *testing.T) {
	svc, store, pub := newTestService()
	rec := store.add(pendingRecord())

	first, err := svc.GenerateInvoice(context.Background(), testCaller, rec.ID)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.GenerateInvoice(context.Background(), testCaller, rec.ID)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.InvoiceNumber != second.InvoiceNumber {
		t.Errorf("invoice number must be write-once: %s vs %s", first.InvoiceNumber, second.InvoiceNumber)
	}
	if len(pub.published) != 1 {
		t.Errorf("expected a single invoice.generated event, got %d", len(pub.published))
	}
}

func TestGenerateInvoice_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GenerateInvoice(context.Background(), testCaller, uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGetInvoice(t *testing.T) {
	svc, store, _ := newTestService()
	rec := store.add(pendingRecord())
	generated, err := svc.GenerateInvoice(context.Background(), testCaller, rec.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	inv, err := svc.GetInvoice(context.Background(), generated.InvoiceNumber)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.RecordID != rec.ID {
		t.Errorf("expected record %s, got %s", rec.ID, inv.RecordID)
	}

	_, err = svc.GetInvoice(context.Background(), "INV-20250101-DEADBEEF")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateInvoiceStatus(t *testing.T) {
	svc, store, _ := newTestService()
	rec := store.add(pendingRecord())
	generated, err := svc.GenerateInvoice(context.Background(), testCaller, rec.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	inv, err := svc.UpdateInvoiceStatus(context.Background(), testCaller, generated.InvoiceNumber, "paid")
	if err != nil {
		t.Fatalf("UpdateInvoiceStatus: %v", err)
	}
	if inv.Status != billing.StatusPaid {
		t.Errorf("expected paid, got %s", inv.Status)
	}

	stored, _ := store.GetByID(context.Background(), rec.ID)
	if stored.PaidAt == nil {
		t.Error("moving an invoice to paid must set PaidAt")
	}
}

func TestUpdateInvoiceStatus_IllegalTransition(t *testing.T) {
	svc, store, _ := newTestService()
	rec := store.add(pendingRecord())
	generated, err := svc.GenerateInvoice(context.Background(), testCaller, rec.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = svc.UpdateInvoiceStatus(context.Background(), testCaller, generated.InvoiceNumber, "refunded")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("pending→refunded: expected conflict, got %v", err)
	}

	_, err = svc.UpdateInvoiceStatus(context.Background(), testCaller, generated.InvoiceNumber, "overdue")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("derived status: expected validation, got %v", err)
	}

	_, err = svc.UpdateInvoiceStatus(context.Background(), testCaller, generated.InvoiceNumber, "bogus")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("unknown status: expected validation, got %v", err)
	}
}

func TestRenderPDF(t *testing.T) {
	svc, store, _ := newTestService()
	rec := store.add(pendingRecord())
	generated, err := svc.GenerateInvoice(context.Background(), testCaller, rec.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	data, filename, contentType, err := svc.RenderPDF(context.Background(), generated.InvoiceNumber)
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected pdf bytes")
	}
	if string(data[:4]) != "%PDF" {
		t.Error("output does not look like a PDF document")
	}
	if filename != generated.InvoiceNumber+".pdf" {
		t.Errorf("unexpected filename %q", filename)
	}
	if contentType != "application/pdf" {
		t.Errorf("unexpected content type %q", contentType)
	}
}

func TestRenderPDF_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, _, _, err := svc.RenderPDF(context.Background(), "INV-20250101-DEADBEEF")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
