package subscription

import (
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
	g.POST("/subscriptions", h.CreateSubscription)
	g.GET("/subscriptions", h.ListSubscriptions)
	g.GET("/subscriptions/:id", h.GetSubscription)
	g.POST("/subscriptions/:id/recurring-billing", h.CreateRecurringBilling)
	g.POST("/subscriptions/:id/process-cycle", h.ProcessRecurringPayment)
	g.POST("/subscriptions/:id/cancel", h.CancelRecurringBilling)
	g.POST("/subscriptions/:id/suspend", h.SuspendSubscription)
	g.POST("/subscriptions/:id/resume", h.ResumeSubscription)
}

func subscriptionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid subscription id")
	}
	return id, nil
}

func (h *Handler) CreateSubscription(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	sub, err := h.svc.CreateSubscription(c.Request().Context(), caller, in)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, sub, "subscription created")
}

func (h *Handler) GetSubscription(c echo.Context) error {
	id, err := subscriptionID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	sub, err := h.svc.GetSubscription(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, sub, "subscription retrieved")
}

func (h *Handler) ListSubscriptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return respond.Error(c, apperr.Validation("invalid user_id"))
		}
		f.UserID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if !validStatuses[st] {
			return respond.Error(c, apperr.Validation("invalid status: %s", v))
		}
		f.Status = &st
	}
	if v := c.QueryParam("plan_id"); v != "" {
		f.PlanID = &v
	}

	subs, total, err := h.svc.ListSubscriptions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, pagination.NewResponse(subs, total, pg.Limit, pg.Offset), "subscriptions retrieved")
}

type recurringBillingRequest struct {
	CadenceDays int `json:"cadence_days"`
}

func (h *Handler) CreateRecurringBilling(c echo.Context) error {
	id, err := subscriptionID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	var req recurringBillingRequest
	if err := c.Bind(&req); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	rec, err := h.svc.CreateRecurringBilling(c.Request().Context(), caller, id, req.CadenceDays)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, rec, "recurring billing record created")
}

type processCycleRequest struct {
	CycleKey string `json:"cycle_key"`
}

func (h *Handler) ProcessRecurringPayment(c echo.Context) error {
	id, err := subscriptionID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	var req processCycleRequest
	if err := c.Bind(&req); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	result, err := h.svc.ProcessRecurringPayment(c.Request().Context(), caller, id, req.CycleKey)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, result, "billing cycle processed")
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelRecurringBilling(c echo.Context) error {
	id, err := subscriptionID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	confirmation, err := h.svc.CancelRecurringBilling(c.Request().Context(), caller, id, req.Reason)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, confirmation, "subscription cancelled")
}

func (h *Handler) SuspendSubscription(c echo.Context) error {
	id, err := subscriptionID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	caller := auth.CallerFromContext(c.Request().Context())
	sub, err := h.svc.SuspendSubscription(c.Request().Context(), caller, id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, sub, "subscription suspended")
}

func (h *Handler) ResumeSubscription(c echo.Context) error {
	id, err := subscriptionID(c)
	if err != nil {
		return respond.Error(c, err)
	}
	caller := auth.CallerFromContext(c.Request().Context())
	sub, err := h.svc.ResumeSubscription(c.Request().Context(), caller, id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, sub, "subscription resumed")
}
