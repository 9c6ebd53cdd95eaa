package limits

import (
	"context"
	"fmt"
	"time"
)

// Manager implements the subscription-quota ledger operations: deduction,
// restoration, the limit lifecycle driven by billing events, and the
// aggregated usage views.
type Manager struct {
	store   Store
	catalog Catalog
	logger  Logger
	metrics Metrics
}

// NewManager creates a new manager over the given store and configuration.
func NewManager(store Store, config Config) (*Manager, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Manager{
		store:   store,
		catalog: config.Catalog,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// CheckAndUpdateAIMessageUsage consumes one AI message from the
// organization's quota. Returns false when both tiers are exhausted.
func (m *Manager) CheckAndUpdateAIMessageUsage(ctx context.Context, orgID string) (bool, error) {
	return m.deduct(ctx, orgID, ResourceAIMessage)
}

// CheckAndUpdateEnhanceUsage consumes one prompt-enhance call.
func (m *Manager) CheckAndUpdateEnhanceUsage(ctx context.Context, orgID string) (bool, error) {
	return m.deduct(ctx, orgID, ResourceEnhance)
}

// CheckAndUpdateProjectUsage consumes one project slot.
func (m *Manager) CheckAndUpdateProjectUsage(ctx context.Context, orgID string) (bool, error) {
	return m.deduct(ctx, orgID, ResourceProject)
}

// CheckAndUpdateDeployUsage consumes one deployment slot.
func (m *Manager) CheckAndUpdateDeployUsage(ctx context.Context, orgID string) (bool, error) {
	return m.deduct(ctx, orgID, ResourceDeploy)
}

// CheckAndUpdate consumes one unit of an arbitrary resource kind. The
// named entry points above are the usual callers; middleware that picks the
// resource per route uses this directly.
func (m *Manager) CheckAndUpdate(ctx context.Context, orgID string, resource Resource) (bool, error) {
	return m.deduct(ctx, orgID, resource)
}

// deduct is the generic named-counter deduction: try FREE (with rollover on
// expiry), fall through to PAID, never retry a lost path. Exhaustion is a
// false return, not an error; only infrastructure failures surface as errors.
func (m *Manager) deduct(ctx context.Context, orgID string, resource Resource) (bool, error) {
	if orgID == "" {
		return false, ErrInvalidOrganization
	}
	if !resource.Valid() {
		return false, ErrInvalidResource
	}

	now, err := m.store.Now(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read storage time: %w", err)
	}

	ok, err := m.deductFree(ctx, orgID, resource, now)
	if err != nil {
		return false, err
	}
	if ok {
		m.metrics.RecordDeduction(orgID, resource, TierFree, true)
		return true, nil
	}
	m.metrics.RecordDeduction(orgID, resource, TierFree, false)

	ok, err = m.store.DeductCounter(ctx, &DeductRequest{
		OrganizationID: orgID,
		Tier:           TierPaid,
		Resource:       resource,
		Now:            now,
	})
	if err != nil {
		return false, err
	}
	m.metrics.RecordDeduction(orgID, resource, TierPaid, ok)
	if ok {
		m.logger.Debug("deducted from paid quota",
			Field{Key: "organization_id", Value: orgID},
			Field{Key: "resource", Value: resource})
		return true, nil
	}

	m.logger.Info("quota exhausted on both tiers",
		Field{Key: "organization_id", Value: orgID},
		Field{Key: "resource", Value: resource})
	return false, nil
}

// deductFree attempts the FREE-tier path. Expiry is checked before
// exhaustion: an expired record rolls forward even when its counter reads
// zero, otherwise the organization would be stuck past the boundary.
func (m *Manager) deductFree(ctx context.Context, orgID string, resource Resource, now time.Time) (bool, error) {
	free, err := m.store.ActiveRecord(ctx, orgID, TierFree)
	if err != nil {
		return false, err
	}
	if free == nil {
		m.logger.Debug("no active free record",
			Field{Key: "organization_id", Value: orgID})
		return false, nil
	}

	if free.Expired(now) {
		freeLimits, err := m.catalog.Limits(ctx, PlanFree)
		if err != nil {
			return false, err
		}
		start, end := RolloverPeriod(free.PeriodStart, now)
		ok, err := m.store.RefreshAndDeduct(ctx, &RefreshRequest{
			OrganizationID: orgID,
			Resource:       resource,
			PrevPeriodEnd:  free.PeriodEnd,
			PeriodStart:    start,
			PeriodEnd:      end,
			Limits:         freeLimits,
		})
		if err != nil {
			return false, err
		}
		if ok {
			m.metrics.RecordRollover(orgID)
			m.logger.Info("rolled over free period",
				Field{Key: "organization_id", Value: orgID},
				Field{Key: "resource", Value: resource},
				Field{Key: "period_start", Value: start},
				Field{Key: "period_end", Value: end})
			return true, nil
		}
		// A concurrent caller refreshed (or deducted) first. Do not retry
		// FREE; fall through to PAID to bound latency under contention.
		m.logger.Debug("lost free rollover race",
			Field{Key: "organization_id", Value: orgID},
			Field{Key: "resource", Value: resource})
		return false, nil
	}

	if free.Counter(resource) <= 0 {
		m.logger.Debug("free quota exhausted",
			Field{Key: "organization_id", Value: orgID},
			Field{Key: "resource", Value: resource})
		return false, nil
	}

	ok, err := m.store.DeductCounter(ctx, &DeductRequest{
		OrganizationID: orgID,
		Tier:           TierFree,
		Resource:       resource,
		Now:            now,
	})
	if err != nil {
		return false, err
	}
	if !ok {
		m.logger.Debug("lost free deduction race",
			Field{Key: "organization_id", Value: orgID},
			Field{Key: "resource", Value: resource})
	}
	return ok, nil
}

// RestoreProjectQuotaOnDeletion returns one project slot after a deletion,
// restoring into FREE first, then PAID, each bounded by the plan ceiling.
// A result with Success false means neither tier had room: a bookkeeping
// discrepancy that is logged but must never reverse the completed deletion.
func (m *Manager) RestoreProjectQuotaOnDeletion(ctx context.Context, orgID string) (*RestoreResult, error) {
	if orgID == "" {
		return nil, ErrInvalidOrganization
	}

	free, paid, err := m.store.ActiveRecords(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if free != nil {
		freeLimits, err := m.catalog.Limits(ctx, PlanFree)
		if err != nil {
			return nil, err
		}
		if free.ProjectNums < freeLimits.ProjectNums {
			ok, err := m.store.RestoreCounter(ctx, &RestoreRequest{
				OrganizationID: orgID,
				Tier:           TierFree,
				Resource:       ResourceProject,
				Ceiling:        freeLimits.ProjectNums,
			})
			if err != nil {
				return nil, err
			}
			if ok {
				m.metrics.RecordRestoration(orgID, TierFree, true)
				m.logger.Info("restored project slot",
					Field{Key: "organization_id", Value: orgID},
					Field{Key: "tier", Value: TierFree})
				return &RestoreResult{Success: true, RestoredTo: TierFree, PlanName: PlanFree}, nil
			}
		}
	}

	if paid != nil {
		paidLimits, err := m.catalog.Limits(ctx, paid.PlanName)
		if err != nil {
			return nil, err
		}
		if paid.ProjectNums < paidLimits.ProjectNums {
			ok, err := m.store.RestoreCounter(ctx, &RestoreRequest{
				OrganizationID: orgID,
				Tier:           TierPaid,
				Resource:       ResourceProject,
				Ceiling:        paidLimits.ProjectNums,
			})
			if err != nil {
				return nil, err
			}
			if ok {
				m.metrics.RecordRestoration(orgID, TierPaid, true)
				m.logger.Info("restored project slot",
					Field{Key: "organization_id", Value: orgID},
					Field{Key: "tier", Value: TierPaid},
					Field{Key: "plan", Value: paid.PlanName})
				return &RestoreResult{Success: true, RestoredTo: TierPaid, PlanName: paid.PlanName}, nil
			}
		}
	}

	m.metrics.RecordRestoration(orgID, "", false)
	m.logger.Error("project restoration found no room",
		Field{Key: "organization_id", Value: orgID})
	return &RestoreResult{
		Success: false,
		Error:   "no active record can absorb the restored project slot",
	}, nil
}

// CreateOrUpdateSubscriptionLimit creates or updates the ledger record for a
// subscription change. FREE is an idempotent touch when already provisioned;
// a paid plan atomically supersedes any currently-active paid record.
func (m *Manager) CreateOrUpdateSubscriptionLimit(ctx context.Context, req *UpsertRequest) error {
	if req == nil || req.OrganizationID == "" {
		return ErrInvalidOrganization
	}
	if !req.PlanName.Known() {
		return ErrInvalidPlan
	}
	periodStart := req.PeriodStart.UTC()
	periodEnd := req.PeriodEnd.UTC()
	if !periodEnd.After(periodStart) {
		return ErrInvalidPeriod
	}

	planLimits, err := m.planLimits(ctx, req)
	if err != nil {
		return err
	}

	rec := &LimitRecord{
		OrganizationID:   req.OrganizationID,
		PlanName:         req.PlanName,
		StripeCustomerID: req.StripeCustomerID,
		AINums:           planLimits.AINums,
		EnhanceNums:      planLimits.EnhanceNums,
		UploadLimit:      planLimits.UploadLimit,
		DeployLimit:      planLimits.DeployLimit,
		Seats:            planLimits.Seats,
		ProjectNums:      planLimits.ProjectNums,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		IsActive:         true,
	}

	if req.PlanName == PlanFree {
		touched, err := m.store.TouchFreeRecord(ctx, req.OrganizationID)
		if err != nil {
			return err
		}
		if touched {
			m.logger.Debug("free record already provisioned",
				Field{Key: "organization_id", Value: req.OrganizationID})
			return nil
		}
		if err := m.store.InsertRecord(ctx, rec); err != nil {
			return err
		}
		m.logger.Info("provisioned free record",
			Field{Key: "organization_id", Value: req.OrganizationID})
		return nil
	}

	if err := m.store.ReplacePaidRecord(ctx, rec); err != nil {
		return err
	}
	m.logger.Info("activated paid record",
		Field{Key: "organization_id", Value: req.OrganizationID},
		Field{Key: "plan", Value: req.PlanName},
		Field{Key: "period_end", Value: periodEnd})
	return nil
}

// CancelSubscriptionLimits deactivates every active paid record for the
// organization. The FREE record is never deactivated.
func (m *Manager) CancelSubscriptionLimits(ctx context.Context, orgID string) error {
	if orgID == "" {
		return ErrInvalidOrganization
	}

	n, err := m.store.DeactivatePaidRecords(ctx, orgID)
	if err != nil {
		return err
	}
	m.logger.Info("deactivated paid records",
		Field{Key: "organization_id", Value: orgID},
		Field{Key: "count", Value: n})
	return nil
}

// GetSubscriptionUsage returns the union view over the organization's active
// records. An organization with no records at all (mid-provisioning) gets a
// zeroed FREE view, never an error.
func (m *Manager) GetSubscriptionUsage(ctx context.Context, orgID string) (*SubscriptionUsage, error) {
	if orgID == "" {
		return nil, ErrInvalidOrganization
	}

	free, paid, err := m.store.ActiveRecords(ctx, orgID)
	if err != nil {
		return nil, err
	}

	usage := &SubscriptionUsage{Plan: PlanFree}

	if free != nil {
		freeLimits, err := m.catalog.Limits(ctx, PlanFree)
		if err != nil {
			return nil, err
		}
		usage.PlanDetails.Free = planUsage(free, freeLimits)
	}
	if paid != nil {
		paidLimits, err := m.catalog.Limits(ctx, paid.PlanName)
		if err != nil {
			return nil, err
		}
		usage.PlanDetails.Paid = planUsage(paid, paidLimits)
	}

	primary := usage.PlanDetails.Paid
	if primary == nil {
		primary = usage.PlanDetails.Free
	}
	if primary != nil {
		usage.Plan = primary.PlanName
		usage.AINums = primary.AINums
		usage.AINumsLimit = primary.AINumsLimit
		usage.Seats = primary.Seats
		usage.SeatsLimit = primary.SeatsLimit
		usage.Projects = primary.Projects
		usage.ProjectsCap = primary.ProjectsCap
	}

	return usage, nil
}

// GetCombinedProjectQuota sums project slots and ceilings across both tiers.
func (m *Manager) GetCombinedProjectQuota(ctx context.Context, orgID string) (*CombinedProjectQuota, error) {
	if orgID == "" {
		return nil, ErrInvalidOrganization
	}

	free, paid, err := m.store.ActiveRecords(ctx, orgID)
	if err != nil {
		return nil, err
	}

	combined := &CombinedProjectQuota{Plan: PlanFree}

	if free != nil {
		freeLimits, err := m.catalog.Limits(ctx, PlanFree)
		if err != nil {
			return nil, err
		}
		combined.Projects += free.ProjectNums
		combined.ProjectsCap += freeLimits.ProjectNums
	}
	if paid != nil {
		paidLimits, err := m.catalog.Limits(ctx, paid.PlanName)
		if err != nil {
			return nil, err
		}
		combined.Projects += paid.ProjectNums
		combined.ProjectsCap += paidLimits.ProjectNums
		combined.Plan = paid.PlanName
	}

	return combined, nil
}

// planLimits resolves the ceilings for an upsert, honoring CustomLimits.
func (m *Manager) planLimits(ctx context.Context, req *UpsertRequest) (PlanLimits, error) {
	if req.CustomLimits != nil {
		return *req.CustomLimits, nil
	}
	return m.catalog.Limits(ctx, req.PlanName)
}

func planUsage(rec *LimitRecord, ceilings PlanLimits) *PlanUsage {
	return &PlanUsage{
		PlanName:    rec.PlanName,
		AINums:      rec.AINums,
		AINumsLimit: ceilings.AINums,
		Seats:       rec.Seats,
		SeatsLimit:  ceilings.Seats,
		Projects:    rec.ProjectNums,
		ProjectsCap: ceilings.ProjectNums,
		PeriodEnd:   rec.PeriodEnd,
	}
}
