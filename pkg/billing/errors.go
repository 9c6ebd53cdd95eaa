package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrOrganizationNotFound is returned when an event carries no resolvable organization
	ErrOrganizationNotFound = errors.New("organization not found in billing event")

	// ErrPlanNotConfigured is returned when a price is not found in PlanMapping
	ErrPlanNotConfigured = errors.New("plan not configured in plan mapping")
)
