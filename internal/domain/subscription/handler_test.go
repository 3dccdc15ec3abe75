package subscription

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smarttelehealth/billing/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) echo.Context {
	req = req.WithContext(auth.WithCaller(req.Context(), testCaller))
	return e.NewContext(req, rec)
}

func TestHandler_CreateSubscription(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"user_id":"` + uuid.New().String() + `","plan_id":"plan_basic","plan_name":"Basic","current_price_cents":2999}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.CreateSubscription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateSubscription_Validation(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"plan_id":"plan_basic"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	if err := h.CreateSubscription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetSubscription_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetSubscription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_CancelRecurringBilling(t *testing.T) {
	h, svc, e := newTestHandler()
	sub := createTestSubscription(t, svc, basicInput())

	body := `{"reason":"moving providers"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(sub.ID.String())

	if err := h.CancelRecurringBilling(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_ProcessRecurringPayment(t *testing.T) {
	h, svc, e := newTestHandler()
	sub := createTestSubscription(t, svc, basicInput())

	body := `{"cycle_key":"2025-07"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(sub.ID.String())

	if err := h.ProcessRecurringPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
