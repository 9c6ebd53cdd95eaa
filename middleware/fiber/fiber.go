// Package fiber provides Fiber middleware for quota enforcement
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// OrganizationExtractor extracts the organization ID from a Fiber context.
// Return empty string if the request is not authenticated.
type OrganizationExtractor func(c *fiber.Ctx) string

// ResourceExtractor picks the resource kind a route consumes
type ResourceExtractor func(c *fiber.Ctx) limits.Resource

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
	OnExhausted func(c *fiber.Ctx, resource limits.Resource) error

	// OnUnauthorized is called when the organization cannot be determined.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error.
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that deducts one unit of the
// route's resource before the handler runs
func Middleware(cfg Config) fiber.Handler {
	if cfg.Manager == nil {
		panic("limits/fiber: Config.Manager is required")
	}
	if cfg.GetOrganizationID == nil {
		panic("limits/fiber: Config.GetOrganizationID is required")
	}
	if cfg.GetResource == nil {
		panic("limits/fiber: Config.GetResource is required")
	}

	return func(c *fiber.Ctx) error {
		orgID := cfg.GetOrganizationID(c)
		if orgID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		resource := cfg.GetResource(c)

		ok, err := cfg.Manager.CheckAndUpdate(c.UserContext(), orgID, resource)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		if !ok {
			if cfg.OnExhausted != nil {
				return cfg.OnExhausted(c, resource)
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":    "quota exhausted",
				"resource": string(resource),
			})
		}

		return c.Next()
	}
}
