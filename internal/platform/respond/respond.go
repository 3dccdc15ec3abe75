// Package respond implements the uniform response envelope returned by every
// API operation: {data, message, statusCode}.
package respond

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/smarttelehealth/billing/internal/platform/apperr"
)

// Envelope is the shape every JSON response takes.
type Envelope struct {
	Data       interface{} `json:"data,omitempty"`
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
}

func OK(c echo.Context, data interface{}, message string) error {
	return c.JSON(http.StatusOK, Envelope{Data: data, Message: message, StatusCode: http.StatusOK})
}

func Created(c echo.Context, data interface{}, message string) error {
	return c.JSON(http.StatusCreated, Envelope{Data: data, Message: message, StatusCode: http.StatusCreated})
}

// Error converts a service error into the envelope using the apperr taxonomy.
// Internal causes are never echoed to the caller.
func Error(c echo.Context, err error) error {
	status := apperr.KindOf(err).HTTPStatus()
	return c.JSON(status, Envelope{Message: apperr.MessageOf(err), StatusCode: status})
}

// File writes a raw byte payload with a download filename, used by the
// CSV/JSON export and invoice PDF endpoints.
func File(c echo.Context, data []byte, filename, contentType string) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, contentType, data)
}
