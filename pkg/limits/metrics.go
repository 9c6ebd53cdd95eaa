package limits

import "time"

// Metrics defines the interface for tracking quota operations and performance.
type Metrics interface {
	// RecordDeduction records a deduction attempt against a tier.
	RecordDeduction(orgID string, resource Resource, tier Tier, success bool)

	// RecordRollover records a FREE-period rollover performed during a deduction.
	RecordRollover(orgID string)

	// RecordRestoration records a project-slot restoration attempt.
	RecordRestoration(orgID string, tier Tier, success bool)

	// RecordCatalogHit records a plan catalog cache hit.
	RecordCatalogHit(plan PlanName)

	// RecordCatalogMiss records a plan catalog cache miss.
	RecordCatalogMiss(plan PlanName)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordDeduction(orgID string, resource Resource, tier Tier, success bool)    {}
func (n *NoopMetrics) RecordRollover(orgID string)                                                {}
func (n *NoopMetrics) RecordRestoration(orgID string, tier Tier, success bool)                    {}
func (n *NoopMetrics) RecordCatalogHit(plan PlanName)                                             {}
func (n *NoopMetrics) RecordCatalogMiss(plan PlanName)                                            {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
