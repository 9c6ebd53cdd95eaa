package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/libra-dev/subscription-limits/pkg/billing"
	"github.com/libra-dev/subscription-limits/pkg/billing/internal"
	"github.com/libra-dev/subscription-limits/pkg/limits"
)

const maxWebhookBody = 256 * 1024

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		p.logger.Error("webhook processing failed",
			limits.Field{Key: "event_type", Value: string(event.Type)},
			limits.Field{Key: "error", Value: err.Error()})
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// processWebhookEvent dispatches a verified event to its lifecycle handler
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	eventTime := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "customer.created":
		return p.handleCustomerCreated(ctx, event, eventTime)
	case "customer.subscription.created", "customer.subscription.updated":
		return p.handleSubscriptionChange(ctx, event, eventTime)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event, eventTime)
	default:
		// Unknown event type - ignore silently
		return nil
	}
}

// handleCustomerCreated provisions the organization's FREE ledger record.
// Re-delivery is harmless: the FREE upsert is an idempotent touch once the
// record exists.
func (p *Provider) handleCustomerCreated(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	var customer stripe.Customer
	if err := json.Unmarshal(event.Data.Raw, &customer); err != nil {
		return fmt.Errorf("failed to unmarshal customer: %w", err)
	}

	orgID := customer.Metadata[metadataOrganizationKey]
	if orgID == "" {
		// Customers created outside Libra (e.g. dashboard tests) carry no
		// organization; nothing to provision.
		p.logger.Warn("customer event without organization metadata",
			limits.Field{Key: "customer_id", Value: customer.ID})
		return nil
	}

	start := startOfDayUTC(eventTime)
	err := p.manager.CreateOrUpdateSubscriptionLimit(ctx, &limits.UpsertRequest{
		OrganizationID:   orgID,
		StripeCustomerID: customer.ID,
		PlanName:         limits.PlanFree,
		PeriodStart:      start,
		PeriodEnd:        start.AddDate(0, 1, 0),
	})
	if err != nil {
		return fmt.Errorf("failed to provision free limits: %w", err)
	}

	p.logger.Info("provisioned free limits from customer event",
		limits.Field{Key: "organization_id", Value: orgID},
		limits.Field{Key: "customer_id", Value: customer.ID})
	return nil
}

// handleSubscriptionChange processes subscription created/updated events
func (p *Provider) handleSubscriptionChange(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return p.applySubscription(ctx, &subscription, eventTime)
}

// handleSubscriptionDeleted deactivates the organization's paid records,
// dropping it back to FREE
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	orgID, err := p.resolveOrganization(ctx, &subscription)
	if err != nil {
		return err
	}

	if err := p.manager.CancelSubscriptionLimits(ctx, orgID); err != nil {
		return fmt.Errorf("failed to cancel limits: %w", err)
	}

	p.logger.Info("cancelled paid limits",
		limits.Field{Key: "organization_id", Value: orgID})
	return nil
}

// handleCheckoutSessionCompleted resolves the session's subscription and
// applies it. The session payload itself carries no price or period data,
// so the subscription is fetched from the API.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		// One-time payment sessions have no subscription to track.
		return nil
	}

	sub, err := p.stripeClient.V1Subscriptions.Retrieve(ctx, session.Subscription.ID, nil)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription: %w", err)
	}

	// Carry the session's organization metadata onto the subscription view
	// when checkout set it there instead of on the subscription.
	if sub.Metadata[metadataOrganizationKey] == "" && session.Metadata[metadataOrganizationKey] != "" {
		if sub.Metadata == nil {
			sub.Metadata = map[string]string{}
		}
		sub.Metadata[metadataOrganizationKey] = session.Metadata[metadataOrganizationKey]
	}

	return p.applySubscription(ctx, sub, eventTime)
}

// applySubscription maps a subscription onto a limit-lifecycle upsert
func (p *Provider) applySubscription(ctx context.Context, sub *stripe.Subscription, eventTime time.Time) error {
	orgID, err := p.resolveOrganization(ctx, sub)
	if err != nil {
		return err
	}

	if sub.Status != subscriptionStatusActive && sub.Status != subscriptionStatusTrialing {
		// Lapsed or incomplete subscriptions do not grant paid quota.
		if err := p.manager.CancelSubscriptionLimits(ctx, orgID); err != nil {
			return fmt.Errorf("failed to cancel limits: %w", err)
		}
		return nil
	}

	plan, item := p.highestPlanItem(sub)
	if item == nil {
		return billing.ErrPlanNotConfigured
	}

	periodStart, periodEnd := itemPeriod(item, eventTime)

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	err = p.manager.CreateOrUpdateSubscriptionLimit(ctx, &limits.UpsertRequest{
		OrganizationID:   orgID,
		StripeCustomerID: customerID,
		PlanName:         plan,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert limits: %w", err)
	}

	p.logger.Info("applied subscription to limits",
		limits.Field{Key: "organization_id", Value: orgID},
		limits.Field{Key: "plan", Value: plan},
		limits.Field{Key: "period_end", Value: periodEnd})
	return nil
}

// highestPlanItem picks the mapped item with the highest plan weight
func (p *Provider) highestPlanItem(sub *stripe.Subscription) (limits.PlanName, *stripe.SubscriptionItem) {
	var best limits.PlanName
	var bestItem *stripe.SubscriptionItem
	bestWeight := -1

	if sub.Items == nil {
		return best, nil
	}
	for _, item := range sub.Items.Data {
		if item.Price == nil {
			continue
		}
		plan, ok := p.MapPriceToPlan(item.Price.ID)
		if !ok {
			continue
		}
		if w := planWeight(plan); w > bestWeight {
			bestWeight = w
			best = plan
			bestItem = item
		}
	}
	return best, bestItem
}

// resolveOrganization finds the tenant for a subscription, falling back to
// the customer's metadata when the subscription carries none
func (p *Provider) resolveOrganization(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if orgID := sub.Metadata[metadataOrganizationKey]; orgID != "" {
		return orgID, nil
	}

	if sub.Customer != nil && sub.Customer.ID != "" {
		cust, err := p.stripeClient.V1Customers.Retrieve(ctx, sub.Customer.ID, nil)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve customer: %w", err)
		}
		if orgID := cust.Metadata[metadataOrganizationKey]; orgID != "" {
			return orgID, nil
		}
	}

	return "", billing.ErrOrganizationNotFound
}

// itemPeriod reads the item's current period, defaulting to one month from
// the event when Stripe omits the boundaries
func itemPeriod(item *stripe.SubscriptionItem, eventTime time.Time) (time.Time, time.Time) {
	if item.CurrentPeriodStart > 0 && item.CurrentPeriodEnd > 0 {
		return time.Unix(item.CurrentPeriodStart, 0).UTC(), time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	start := startOfDayUTC(eventTime)
	return start, start.AddDate(0, 1, 0)
}

func startOfDayUTC(t time.Time) time.Time {
	tt := t.UTC()
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
