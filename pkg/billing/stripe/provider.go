// Package stripe implements the billing.Provider interface for Stripe.
// Webhook events drive the limit lifecycle: checkout and subscription
// changes activate paid ledger records, cancellations deactivate them, and
// customer creation provisions the FREE record.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/libra-dev/subscription-limits/pkg/billing"
	"github.com/libra-dev/subscription-limits/pkg/limits"
)

const (
	providerName       = "stripe"
	defaultHTTPTimeout = 10 * time.Second

	// metadataOrganizationKey is the metadata key Libra sets on Stripe
	// customers, subscriptions and checkout sessions to carry the tenant.
	metadataOrganizationKey = "organization_id"

	subscriptionStatusActive   = "active"
	subscriptionStatusTrialing = "trialing"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Manager, PlanMapping, etc.)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	manager       *limits.Manager
	config        Config
	httpClient    *http.Client
	planMapping   map[string]limits.PlanName // price/product ID -> plan
	webhookSecret []byte
	stripeClient  *stripe.Client
	logger        limits.Logger
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	logger := config.Logger
	if logger == nil {
		logger = &limits.NoopLogger{}
	}

	planMapping := make(map[string]limits.PlanName, len(config.PlanMapping))
	for priceID, plan := range config.PlanMapping {
		planMapping[strings.ToLower(priceID)] = plan
	}

	return &Provider{
		manager:       config.Manager,
		config:        config,
		httpClient:    httpClient,
		planMapping:   planMapping,
		webhookSecret: []byte(strings.TrimSpace(config.StripeWebhookSecret)),
		stripeClient:  stripe.NewClient(apiKey),
		logger:        logger,
	}, nil
}

// Name implements billing.Provider
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler implements billing.Provider
func (p *Provider) WebhookHandler() http.Handler {
	return http.HandlerFunc(p.handleWebhook)
}

// MapPriceToPlan maps a Stripe Price or Product ID to a plan name
func (p *Provider) MapPriceToPlan(priceID string) (limits.PlanName, bool) {
	plan, ok := p.planMapping[strings.ToLower(priceID)]
	return plan, ok
}

// planWeight orders plans so multi-item subscriptions resolve to the
// highest plan they contain.
func planWeight(plan limits.PlanName) int {
	switch plan {
	case limits.PlanMax:
		return 2
	case limits.PlanPro:
		return 1
	default:
		return 0
	}
}
