package limits

import (
	"context"
	"time"
)

// Store defines the interface for ledger persistence.
//
// The store owns all atomicity: every mutation is either a single guarded
// statement or an explicit transaction, and a guarded statement that matches
// no row reports false rather than an error. The engine treats false as
// "lost the race / nothing to do" and moves to its fallback path. No
// in-process locking is layered on top; the platform runs many instances
// and only the database can arbitrate between them.
type Store interface {
	// Now returns the current time from the storage engine, not the
	// application host. Period boundaries are compared against the same
	// clock that wrote them, so distributed callers cannot disagree about
	// whether a period has expired.
	Now(ctx context.Context) (time.Time, error)

	// ActiveRecord returns the organization's active record for a tier,
	// or nil if none exists.
	ActiveRecord(ctx context.Context, orgID string, tier Tier) (*LimitRecord, error)

	// ActiveRecords returns the organization's active FREE and PAID
	// records; either may be nil.
	ActiveRecords(ctx context.Context, orgID string) (free, paid *LimitRecord, err error)

	// DeductCounter decrements a resource counter by one on the active
	// record for a tier, guarded by counter > 0 and period_end >= now.
	// Returns false when no row matched (exhausted, expired, absent, or a
	// concurrent deduction won).
	DeductCounter(ctx context.Context, req *DeductRequest) (bool, error)

	// RefreshAndDeduct rolls an expired FREE record into a new period,
	// resets every counter to the plan ceilings and spends one unit of the
	// target resource, all as one atomic write. The write is guarded on
	// the previous period_end so a concurrent refresh loses cleanly
	// (returns false).
	RefreshAndDeduct(ctx context.Context, req *RefreshRequest) (bool, error)

	// RestoreCounter increments a resource counter by one on the active
	// record for a tier, guarded by counter < ceiling. Returns false when
	// no row matched (absent, already at ceiling, or lost a race).
	RestoreCounter(ctx context.Context, req *RestoreRequest) (bool, error)

	// InsertRecord persists a new ledger record.
	InsertRecord(ctx context.Context, rec *LimitRecord) error

	// TouchFreeRecord bumps updated_at on the organization's active FREE
	// record without changing counters or periods. Returns false if no
	// active FREE record exists.
	TouchFreeRecord(ctx context.Context, orgID string) (bool, error)

	// ReplacePaidRecord deactivates every active non-FREE record for the
	// organization and inserts rec as the new active paid record, as one
	// transaction.
	ReplacePaidRecord(ctx context.Context, rec *LimitRecord) error

	// DeactivatePaidRecords deactivates every active non-FREE record for
	// the organization, preserving FREE. Returns the number of records
	// deactivated.
	DeactivatePaidRecords(ctx context.Context, orgID string) (int, error)
}

// DeductRequest represents one guarded counter decrement.
type DeductRequest struct {
	OrganizationID string
	Tier           Tier
	Resource       Resource

	// Now is the storage-engine time the engine already fetched for this
	// call; the guard compares period_end against it.
	Now time.Time
}

// RefreshRequest represents an atomic FREE-period rollover plus spend.
type RefreshRequest struct {
	OrganizationID string
	Resource       Resource

	// PrevPeriodEnd is the expired boundary the caller observed; the
	// update is a compare-and-swap against it.
	PrevPeriodEnd time.Time

	PeriodStart time.Time
	PeriodEnd   time.Time

	// Limits are the FREE plan ceilings the counters reset to.
	Limits PlanLimits
}

// RestoreRequest represents one guarded counter increment.
type RestoreRequest struct {
	OrganizationID string
	Tier           Tier
	Resource       Resource

	// Ceiling bounds the increment; the guard is counter < ceiling.
	Ceiling int
}
