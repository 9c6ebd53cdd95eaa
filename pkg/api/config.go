package api

import (
	"fmt"
	"net/http"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// Config holds configuration for the usage API handler
type Config struct {
	// Manager is the limits manager instance (required)
	Manager *limits.Manager

	// GetOrganizationID extracts the tenant from an HTTP request (required).
	// Typically reads the session or an authenticated header.
	GetOrganizationID func(*http.Request) string

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	if c.GetOrganizationID == nil {
		return fmt.Errorf("organization extractor is required")
	}
	return nil
}
