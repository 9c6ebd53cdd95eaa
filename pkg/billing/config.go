package billing

import (
	"net/http"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Manager is the limits manager whose lifecycle operations the
	// provider drives (required)
	Manager *limits.Manager

	// PlanMapping maps provider price/product IDs to plan names.
	// For example: map[string]limits.PlanName{"price_pro_monthly": limits.PlanPro}
	PlanMapping map[string]limits.PlanName

	// WebhookSecret is used to verify incoming webhook requests.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Logger is used for structured logging (default: NoopLogger).
	Logger limits.Logger
}
