// Package prommetrics implements limits.Metrics using Prometheus.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// Metrics implements limits.Metrics using Prometheus.
//
// Organization IDs are deliberately not used as label values: a multi-tenant
// platform would blow up metric cardinality with one series per tenant.
type Metrics struct {
	deductionsTotal    *prometheus.CounterVec
	rolloversTotal     prometheus.Counter
	restorationsTotal  *prometheus.CounterVec
	catalogHitsTotal   *prometheus.CounterVec
	catalogMissesTotal *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
	storageOpsErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		deductionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_deductions_total",
			Help:      "Total number of quota deduction attempts per tier.",
		}, []string{"resource", "tier", "success"}),

		rolloversTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_period_rollovers_total",
			Help:      "Total number of free-period rollovers.",
		}),

		restorationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_restorations_total",
			Help:      "Total number of project-slot restoration attempts.",
		}, []string{"tier", "success"}),

		catalogHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_catalog_hits_total",
			Help:      "Total number of plan catalog cache hits.",
		}, []string{"plan"}),

		catalogMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_catalog_misses_total",
			Help:      "Total number of plan catalog cache misses.",
		}, []string{"plan"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),
	}
}

// DefaultMetrics creates metrics registered on the default registry.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordDeduction(orgID string, resource limits.Resource, tier limits.Tier, success bool) {
	m.deductionsTotal.WithLabelValues(string(resource), string(tier), strconv.FormatBool(success)).Inc()
}

func (m *Metrics) RecordRollover(orgID string) {
	m.rolloversTotal.Inc()
}

func (m *Metrics) RecordRestoration(orgID string, tier limits.Tier, success bool) {
	m.restorationsTotal.WithLabelValues(string(tier), strconv.FormatBool(success)).Inc()
}

func (m *Metrics) RecordCatalogHit(plan limits.PlanName) {
	m.catalogHitsTotal.WithLabelValues(string(plan)).Inc()
}

func (m *Metrics) RecordCatalogMiss(plan limits.PlanName) {
	m.catalogMissesTotal.WithLabelValues(string(plan)).Inc()
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}
