package invoice

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smarttelehealth/billing/internal/platform/apperr"
	"github.com/smarttelehealth/billing/internal/platform/auth"
	"github.com/smarttelehealth/billing/internal/platform/respond"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.POST("/billing-records/:id/invoice", h.GenerateInvoice)
	g.GET("/invoices/:number", h.GetInvoice)
	g.PUT("/invoices/:number/status", h.UpdateInvoiceStatus)
	g.GET("/invoices/:number/pdf", h.RenderPDF)
}

func (h *Handler) GenerateInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respond.Error(c, apperr.Validation("invalid billing record id"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	inv, err := h.svc.GenerateInvoice(c.Request().Context(), caller, id)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.Created(c, inv, "invoice generated")
}

func (h *Handler) GetInvoice(c echo.Context) error {
	inv, err := h.svc.GetInvoice(c.Request().Context(), c.Param("number"))
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, inv, "invoice retrieved")
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateInvoiceStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return respond.Error(c, apperr.Validation("invalid request body"))
	}
	caller := auth.CallerFromContext(c.Request().Context())
	inv, err := h.svc.UpdateInvoiceStatus(c.Request().Context(), caller, c.Param("number"), req.Status)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, inv, "invoice status updated")
}

func (h *Handler) RenderPDF(c echo.Context) error {
	data, filename, contentType, err := h.svc.RenderPDF(c.Request().Context(), c.Param("number"))
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.File(c, data, filename, contentType)
}
