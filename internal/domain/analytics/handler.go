package analytics

import (
	"time"

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
	g.GET("/analytics/report", h.Report)
	g.GET("/analytics/export", h.Export)
	g.GET("/analytics/revenue-summary", h.RevenueSummary)
}

func windowFromQuery(c echo.Context) (Window, error) {
	var w Window
	if v := c.QueryParam("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return w, apperr.Validation("invalid start date, expected RFC3339")
		}
		w.Start = t
	}
	if v := c.QueryParam("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return w, apperr.Validation("invalid end date, expected RFC3339")
		}
		w.End = t
	}
	return w, nil
}

func (h *Handler) Report(c echo.Context) error {
	window, err := windowFromQuery(c)
	if err != nil {
		return respond.Error(c, err)
	}
	report, err := h.svc.Report(c.Request().Context(), window)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, report, "analytics report generated")
}

func (h *Handler) Export(c echo.Context) error {
	window, err := windowFromQuery(c)
	if err != nil {
		return respond.Error(c, err)
	}
	report, err := h.svc.Report(c.Request().Context(), window)
	if err != nil {
		return respond.Error(c, err)
	}
	data, filename, contentType, err := Export(report, c.QueryParam("format"))
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.File(c, data, filename, contentType)
}

func (h *Handler) RevenueSummary(c echo.Context) error {
	window, err := windowFromQuery(c)
	if err != nil {
		return respond.Error(c, err)
	}
	summary, err := h.svc.RevenueSummary(c.Request().Context(), window)
	if err != nil {
		return respond.Error(c, err)
	}
	return respond.OK(c, summary, "revenue summary generated")
}
