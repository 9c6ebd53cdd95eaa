package billing

import "net/http"

// Provider is the generic interface a billing backend must implement.
// The provider translates billing events (checkout, renewal, cancellation,
// customer creation) into limit-lifecycle calls on the manager.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time
	// events. The implementation handles signature validation, parsing,
	// and manager updates internally.
	WebhookHandler() http.Handler
}
