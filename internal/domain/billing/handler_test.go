package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smarttelehealth/billing/internal/platform/auth"
	"github.com/smarttelehealth/billing/internal/platform/respond"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) echo.Context {
	req = req.WithContext(auth.WithCaller(req.Context(), testCaller))
	return e.NewContext(req, rec)
}

func TestHandler_CreateRecord(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"user_id":"` + uuid.New().String() + `","amount_cents":4999,"description":"consult"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.CreateRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var env respond.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if env.StatusCode != http.StatusCreated {
		t.Errorf("envelope statusCode = %d", env.StatusCode)
	}
}

func TestHandler_CreateRecord_Validation(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"amount_cents":100}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.CreateRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_QuoteCharge(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"base_cents":10000,"jurisdiction":"eu"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.QuoteCharge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"tax_cents":2000`) {
		t.Errorf("expected eu tax in response: %s", rec.Body.String())
	}
}

func TestHandler_GetRecord(t *testing.T) {
	h, svc, e := newTestHandler()
	stored := createTestRecord(t, svc, CreateRecordInput{UserID: uuid.New(), AmountCents: 1000})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.GetRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetRecord_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetRecord_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.GetRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_ProcessPayment(t *testing.T) {
	h, svc, e := newTestHandler()
	stored := createTestRecord(t, svc, CreateRecordInput{
		UserID: uuid.New(), AmountCents: 1000, PaymentMethod: "pm_card_ok",
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.ProcessPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var env struct {
		Data PaymentResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if env.Data.Status != StatusPaid {
		t.Errorf("expected paid result, got %s", env.Data.Status)
	}
}

func TestHandler_ProcessRefund_ConflictMapsTo409(t *testing.T) {
	h, svc, e := newTestHandler()
	stored := createTestRecord(t, svc, CreateRecordInput{UserID: uuid.New(), AmountCents: 1000})

	body := `{"amount_cents":500,"reason":"test"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.ProcessRefund(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for refund of unpaid record, got %d", rec.Code)
	}
}

func TestHandler_ListRecords_StatusFilter(t *testing.T) {
	h, svc, e := newTestHandler()
	userID := uuid.New()
	stored := createTestRecord(t, svc, CreateRecordInput{
		UserID: userID, AmountCents: 1000, PaymentMethod: "pm_card_ok",
	})
	createTestRecord(t, svc, CreateRecordInput{UserID: userID, AmountCents: 2000})
	if _, err := svc.ProcessPayment(context.Background(), testCaller, stored.ID); err != nil {
		t.Fatalf("payment: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?status=paid&user_id="+userID.String(), nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.ListRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var env struct {
		Data struct {
			Data  []*Record `json:"data"`
			Total int       `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if env.Data.Total != 1 {
		t.Errorf("expected 1 paid record, got %d", env.Data.Total)
	}
}

func TestHandler_ListRecords_InvalidStatus(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?status=bogus", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.ListRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_ListOverdueRecords_NotImplemented(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.ListOverdueRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}
