// Package http provides HTTP middleware for quota enforcement
package http

import (
	"encoding/json"
	"net/http"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// OrganizationExtractor extracts the organization ID from an HTTP request.
// Return empty string if the request is not authenticated.
type OrganizationExtractor func(r *http.Request) string

// ResourceExtractor picks the resource kind a route consumes.
// For example: limits.ResourceAIMessage for a chat endpoint.
type ResourceExtractor func(r *http.Request) limits.Resource

// Config holds middleware configuration
type Config struct {
	// Manager is the limits manager instance
	Manager *limits.Manager

	// GetOrganizationID extracts the tenant from the request (required)
	GetOrganizationID OrganizationExtractor

	// GetResource picks the resource kind for the route (required)
	GetResource ResourceExtractor

	// OnExhausted is called when both tiers are out of quota.
	// If nil, returns 403 Forbidden with a JSON body.
	OnExhausted func(w http.ResponseWriter, r *http.Request, resource limits.Resource)

	// OnUnauthorized is called when the organization cannot be determined.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that deducts one unit of the
// route's resource before the handler runs. Exhaustion is a policy
// rejection (403), distinct from infrastructure failures (500).
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("limits/http: Config.Manager is required")
	}
	if config.GetOrganizationID == nil {
		panic("limits/http: Config.GetOrganizationID is required")
	}
	if config.GetResource == nil {
		panic("limits/http: Config.GetResource is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := config.GetOrganizationID(r)
			if orgID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			resource := config.GetResource(r)

			ok, err := config.Manager.CheckAndUpdate(r.Context(), orgID, resource)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}
			if !ok {
				if config.OnExhausted != nil {
					config.OnExhausted(w, r, resource)
				} else {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusForbidden)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error":    "quota exhausted",
						"resource": string(resource),
					})
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// FromHeader returns an OrganizationExtractor that reads the organization
// ID from a request header
func FromHeader(headerName string) OrganizationExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FixedResource returns a ResourceExtractor that always returns the same
// resource kind
func FixedResource(resource limits.Resource) ResourceExtractor {
	return func(r *http.Request) limits.Resource {
		return resource
	}
}
