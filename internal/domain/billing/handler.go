package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smarttelehealth/billing/internal/platform/apperr"
	"github.com/smarttelehealth/billing/internal/platform/auth"
	"github.com/smarttelehealth/billing/internal/platform/respond"
	"github.com/smarttelehealth/billing/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.POST("/billing-records", h.CreateRecord)
	g.GET("/billing-records", h.ListRecords)
	g.POST("/billing-records/quote", h.QuoteCharge)
	g.GET("/billing-records/overdue", h.ListOverdueRecords)
	g.GET("/billing-records/:id", h.GetRecord)
	g.POST("/billing-records/:id/pay", h.ProcessPayment)
	g.POST("/billing-records/:id/retry", h.RetryPayment)
	g.POST("/billing-records/:id/refund", h.ProcessRefund)
	g.POST("/billing-records/:id/adjustments", h.ApplyAdjustment)
	g.GET("/billing-records/:id/adjustments", h.ListAdjustments)
	g.POST("/billing-records/:id/partial-payments", h.ProcessPartialPayment)
	g.GET("/billing-records/:id/partial-payments", h.ListPartialPayments)
}

func recordID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid billing record id")
	}
	return id, nil
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var in CreateRecordInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	rec, err := h.svc.CreateRecord(c.Request().Context(), caller, in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, rec, "billing record created")
}

func (h *Handler) QuoteCharge(c echo.Context) error {
	var in QuoteInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	quote, err := h.svc.QuoteCharge(in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, quote, "charge quoted")
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, rec, "billing record retrieved")
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter, err := filterFromQuery(c)
	if err != nil {
		return respond.Error(c, err)
	}
	records, total, err := h.svc.ListRecords(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, pagination.NewResponse(records, total, pg.Limit, pg.Offset), "billing records retrieved")
}

func filterFromQuery(c echo.Context) (RecordFilter, error) {
	var f RecordFilter
	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("invalid user_id")
		}
		f.UserID = &id
	}
	if v := c.QueryParam("subscription_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("invalid subscription_id")
		}
		f.SubscriptionID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if !validStatuses[st] && st != StatusOverdue {
			return f, apperr.Validation("invalid status: %s", v)
		}
		f.Statuses = []Status{st}
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("invalid from date, expected RFC3339")
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("invalid to date, expected RFC3339")
		}
		f.To = &t
	}
	return f, nil
}

func (h *Handler) ListOverdueRecords(c echo.Context) error {
	records, err := h.svc.ListOverdueRecords(c.Request().Context())
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, records, "overdue records retrieved")
}

func (h *Handler) ProcessPayment(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	caller := auth.CallerFromContext(c.Request().Context())
	result, err := h.svc.ProcessPayment(c.Request().Context(), caller, id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, result, "payment processed")
}

func (h *Handler) RetryPayment(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	caller := auth.CallerFromContext(c.Request().Context())
	result, err := h.svc.RetryPayment(c.Request().Context(), caller, id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, result, "payment retried")
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *Handler) ProcessRefund(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	outcome, err := h.svc.ProcessRefund(c.Request().Context(), caller, id, req.AmountCents, req.Reason)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, outcome, "refund processed")
}

type adjustmentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *Handler) ApplyAdjustment(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	var req adjustmentRequest
	if err := c.Bind(&req); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	adj, err := h.svc.ApplyAdjustment(c.Request().Context(), caller, id, req.AmountCents, req.Reason)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, adj, "adjustment applied")
}

func (h *Handler) ListAdjustments(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	adjustments, err := h.svc.ListAdjustments(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, adjustments, "adjustments retrieved")
}

type partialPaymentRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) ProcessPartialPayment(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	var req partialPaymentRequest
	if err := c.Bind(&req); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	rec, err := h.svc.ProcessPartialPayment(c.Request().Context(), caller, id, req.AmountCents, req.TransactionID)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, rec, "partial payment recorded")
}

func (h *Handler) ListPartialPayments(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	payments, err := h.svc.ListPartialPayments(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, payments, "partial payments retrieved")
}
