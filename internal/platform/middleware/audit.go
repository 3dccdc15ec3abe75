package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/smarttelehealth/billing/internal/platform/auth"
)

// AuditEntry captures who invoked which billing operation, when, from where,
// and with what result.
type AuditEntry struct {
	Caller     string
	Roles      []string
	Resource   string
	Action     string // read, create, update, delete, search
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. It decouples the middleware from any
// concrete store so tests can provide a mock.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns middleware that records every financial API access with the
// resolved caller identity. When no recorder is supplied, entries go to the
// structured log only.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			// Run the handler first to capture the response status.
			err := next(c)

			caller := auth.CallerFromContext(req.Context())
			entry := AuditEntry{
				Caller:     caller.Subject,
				Roles:      caller.Roles,
				Resource:   extractResource(path),
				Action:     methodToAction(req.Method),
				IPAddress:  c.RealIP(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: c.Response().Status,
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "billing_audit").
				Str("request_id", entry.RequestID).
				Str("caller", entry.Caller).
				Strs("roles", entry.Roles).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("financial_access")

			return err
		}
	}
}

// extractResource pulls the resource segment out of an /api/v1/<resource>
// path.
func extractResource(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/")
	if idx := strings.IndexByte(trimmed, '/'); idx > 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func methodToAction(method string) string {
	switch method {
	case "GET":
		return "read"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
