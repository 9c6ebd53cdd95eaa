// Package echo provides Echo middleware for quota enforcement
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// OrganizationExtractor extracts the organization ID from an Echo context.
// Return empty string if the request is not authenticated.
type OrganizationExtractor func(c echo.Context) string

// ResourceExtractor picks the resource kind a route consumes
type ResourceExtractor func(c echo.Context) limits.Resource

// Config holds middleware configuration
type Config struct {
	// Manager is the limits manager instance
	Manager *limits.Manager

	// GetOrganizationID extracts the tenant from the context (required)
	GetOrganizationID OrganizationExtractor

	// GetResource picks the resource kind for the route (required)
	GetResource ResourceExtractor

	// OnExhausted is called when both tiers are out of quota.
	// If nil, returns 403 Forbidden with a JSON body.
	OnExhausted func(c echo.Context, resource limits.Resource) error

	// OnUnauthorized is called when the organization cannot be determined.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error.
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that deducts one unit of the
// route's resource before the handler runs
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Manager == nil {
		panic("limits/echo: Config.Manager is required")
	}
	if cfg.GetOrganizationID == nil {
		panic("limits/echo: Config.GetOrganizationID is required")
	}
	if cfg.GetResource == nil {
		panic("limits/echo: Config.GetResource is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			orgID := cfg.GetOrganizationID(c)
			if orgID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			resource := cfg.GetResource(c)

			ok, err := cfg.Manager.CheckAndUpdate(c.Request().Context(), orgID, resource)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
			if !ok {
				if cfg.OnExhausted != nil {
					return cfg.OnExhausted(c, resource)
				}
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":    "quota exhausted",
					"resource": string(resource),
				})
			}

			return next(c)
		}
	}
}
