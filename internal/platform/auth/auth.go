// Package auth resolves the caller identity supplied with every request and
// makes it available as an explicit Caller value. Identity is carried as a
// signed JWT bearer token; role checks guard the write surface.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const callerKey contextKey = "caller"

// Caller identifies who is invoking an operation. It is passed explicitly to
// every mutating service call so audit events can attribute the action.
type Caller struct {
	Subject string   `json:"subject"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether the caller holds the role. Admin implies all roles.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

// Claims is the JWT claim set issued to platform callers.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// JWTConfig configures token validation.
type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
}

// WithCaller returns a context carrying the caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext extracts the caller, or a zero Caller when absent.
func CallerFromContext(ctx context.Context) Caller {
	caller, _ := ctx.Value(callerKey).(Caller)
	return caller
}

// JWTMiddleware validates bearer tokens and attaches the resolved Caller to
// the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256", "RS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			caller := Caller{Subject: claims.Subject, Name: claims.Name, Roles: claims.Roles}
			c.SetRequest(c.Request().WithContext(WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}

// DevAuthMiddleware grants an admin caller to unauthenticated requests.
// Development mode only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := Caller{Subject: "dev-user", Name: "Development User", Roles: []string{"admin"}}
			c.SetRequest(c.Request().WithContext(WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}

// RequireRole returns middleware that rejects callers missing all of the
// given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := CallerFromContext(c.Request().Context())
			for _, required := range roles {
				if caller.HasRole(required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				"required role: "+strings.Join(roles, " or "))
		}
	}
}
