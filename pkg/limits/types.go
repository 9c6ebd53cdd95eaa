package limits

import (
	"time"
)

// Tier distinguishes the two ledger slots an organization may hold.
// At most one active record per tier per organization at any time.
type Tier string

const (
	// TierFree is the always-on free ledger slot
	TierFree Tier = "FREE"
	// TierPaid is the slot for any purchased plan (PRO, MAX, ...)
	TierPaid Tier = "PAID"
)

// PlanName identifies a subscription plan in the catalog
type PlanName string

const (
	// PlanFree is the default plan every organization is provisioned with
	PlanFree PlanName = "FREE"
	// PlanPro is the entry paid plan
	PlanPro PlanName = "PRO"
	// PlanMax is the top paid plan
	PlanMax PlanName = "MAX"
)

// Tier returns the ledger slot a plan occupies
func (p PlanName) Tier() Tier {
	if p == PlanFree {
		return TierFree
	}
	return TierPaid
}

// Known reports whether the plan name is one of the catalog plan types
func (p PlanName) Known() bool {
	switch p {
	case PlanFree, PlanPro, PlanMax:
		return true
	}
	return false
}

// Resource names a quota-accounted resource kind
type Resource string

const (
	// ResourceAIMessage is one AI chat message
	ResourceAIMessage Resource = "ai_message"
	// ResourceEnhance is one prompt-enhance call
	ResourceEnhance Resource = "enhance"
	// ResourceProject is one project slot
	ResourceProject Resource = "project"
	// ResourceDeploy is one deployment slot
	ResourceDeploy Resource = "deploy"
)

// Resources lists every deductible resource kind
var Resources = []Resource{ResourceAIMessage, ResourceEnhance, ResourceProject, ResourceDeploy}

// Valid reports whether r is a known resource kind
func (r Resource) Valid() bool {
	switch r {
	case ResourceAIMessage, ResourceEnhance, ResourceProject, ResourceDeploy:
		return true
	}
	return false
}

// LimitRecord is one persisted ledger row: the remaining quota for one
// organization on one plan-tier instance. Counters hold REMAINING units,
// not consumed-so-far.
type LimitRecord struct {
	ID               string
	OrganizationID   string
	PlanName         PlanName
	StripeCustomerID string

	AINums      int
	EnhanceNums int
	UploadLimit int
	DeployLimit int
	Seats       int
	ProjectNums int

	PeriodStart time.Time
	PeriodEnd   time.Time
	IsActive    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Counter returns the remaining quota for a resource kind
func (r *LimitRecord) Counter(res Resource) int {
	switch res {
	case ResourceAIMessage:
		return r.AINums
	case ResourceEnhance:
		return r.EnhanceNums
	case ResourceProject:
		return r.ProjectNums
	case ResourceDeploy:
		return r.DeployLimit
	}
	return 0
}

// Expired reports whether the record's period has passed at the given instant
func (r *LimitRecord) Expired(now time.Time) bool {
	return now.After(r.PeriodEnd)
}

// PlanLimits holds the ceiling values for each counter of a plan.
// Counters are seeded from these on creation/rollover and restoration is
// bounded by them.
type PlanLimits struct {
	AINums      int
	EnhanceNums int
	UploadLimit int
	DeployLimit int
	Seats       int
	ProjectNums int
}

// Ceiling returns the maximum value a resource counter may hold on this plan
func (l PlanLimits) Ceiling(res Resource) int {
	switch res {
	case ResourceAIMessage:
		return l.AINums
	case ResourceEnhance:
		return l.EnhanceNums
	case ResourceProject:
		return l.ProjectNums
	case ResourceDeploy:
		return l.DeployLimit
	}
	return 0
}

// PlanUsage is the per-tier slice of a SubscriptionUsage
type PlanUsage struct {
	PlanName    PlanName  `json:"plan"`
	AINums      int       `json:"aiNums"`
	AINumsLimit int       `json:"aiNumsLimit"`
	Seats       int       `json:"seats"`
	SeatsLimit  int       `json:"seatsLimit"`
	Projects    int       `json:"projectNums"`
	ProjectsCap int       `json:"projectNumsLimit"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// SubscriptionUsage is the derived union view over an organization's active
// FREE and PAID records. Plan is the paid plan name when a paid record is
// active, else FREE.
type SubscriptionUsage struct {
	AINums      int      `json:"aiNums"`
	AINumsLimit int      `json:"aiNumsLimit"`
	Seats       int      `json:"seats"`
	SeatsLimit  int      `json:"seatsLimit"`
	Projects    int      `json:"projectNums"`
	ProjectsCap int      `json:"projectNumsLimit"`
	Plan        PlanName `json:"plan"`
	PlanDetails struct {
		Free *PlanUsage `json:"free,omitempty"`
		Paid *PlanUsage `json:"paid,omitempty"`
	} `json:"planDetails"`
}

// CombinedProjectQuota sums project slots across both tiers for display of
// total capacity regardless of tier
type CombinedProjectQuota struct {
	Projects    int      `json:"projectNums"`
	ProjectsCap int      `json:"projectNumsLimit"`
	Plan        PlanName `json:"plan"`
}

// RestoreResult reports where a restored project slot landed
type RestoreResult struct {
	Success    bool     `json:"success"`
	RestoredTo Tier     `json:"restoredTo,omitempty"`
	PlanName   PlanName `json:"planName,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// UpsertRequest carries a subscription change into the limit lifecycle.
// Invoked by billing webhooks on checkout, renewal and plan changes.
type UpsertRequest struct {
	OrganizationID   string
	StripeCustomerID string
	PlanName         PlanName
	PeriodStart      time.Time
	PeriodEnd        time.Time

	// CustomLimits overrides the catalog ceilings for the new record
	// (enterprise overrides negotiated per customer). Nil means catalog.
	// Overrides apply to the seeded counters only: restoration and the
	// usage views bound by the catalog's ceilings for the plan, since the
	// ledger row does not persist its seeded ceilings. Enterprise
	// overrides therefore belong in the catalog (SetPlan on the Redis
	// catalog), not here, when restoration past the stock ceiling matters.
	CustomLimits *PlanLimits
}

// Config holds manager configuration
type Config struct {
	// Catalog resolves plan names to their limits (required)
	Catalog Catalog

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking quota operations (default: NoopMetrics)
	Metrics Metrics
}
