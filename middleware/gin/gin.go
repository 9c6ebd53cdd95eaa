// Package gin provides Gin middleware for quota enforcement
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// OrganizationExtractor extracts the organization ID from a Gin context.
// Return empty string if the request is not authenticated.
type OrganizationExtractor func(c *gongin.Context) string

// ResourceExtractor picks the resource kind a route consumes
type ResourceExtractor func(c *gongin.Context) limits.Resource

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
	OnExhausted func(c *gongin.Context, resource limits.Resource)

	// OnUnauthorized is called when the organization cannot be determined.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error.
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that deducts one unit of the route's
// resource before the handler runs
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.Manager == nil {
		panic("limits/gin: Config.Manager is required")
	}
	if cfg.GetOrganizationID == nil {
		panic("limits/gin: Config.GetOrganizationID is required")
	}
	if cfg.GetResource == nil {
		panic("limits/gin: Config.GetResource is required")
	}

	return func(c *gongin.Context) {
		orgID := cfg.GetOrganizationID(c)
		if orgID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
			}
			c.Abort()
			return
		}

		resource := cfg.GetResource(c)

		ok, err := cfg.Manager.CheckAndUpdate(c.Request.Context(), orgID, resource)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gongin.H{"error": "internal error"})
			}
			c.Abort()
			return
		}
		if !ok {
			if cfg.OnExhausted != nil {
				cfg.OnExhausted(c, resource)
			} else {
				c.AbortWithStatusJSON(http.StatusForbidden, gongin.H{
					"error":    "quota exhausted",
					"resource": string(resource),
				})
			}
			c.Abort()
			return
		}

		c.Next()
	}
}
