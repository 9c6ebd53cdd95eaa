package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newFreeRecord(orgID string, start time.Time) *limits.LimitRecord {
	return &limits.LimitRecord{
		OrganizationID: orgID,
		PlanName:       limits.PlanFree,
		AINums:         10,
		EnhanceNums:    10,
		UploadLimit:    10,
		DeployLimit:    5,
		Seats:          1,
		ProjectNums:    1,
		PeriodStart:    start,
		PeriodEnd:      start.AddDate(0, 1, 0),
		IsActive:       true,
	}
}

func newProRecord(orgID string, start time.Time) *limits.LimitRecord {
	return &limits.LimitRecord{
		OrganizationID:   orgID,
		PlanName:         limits.PlanPro,
		StripeCustomerID: "cus_mem",
		AINums:           150,
		EnhanceNums:      150,
		UploadLimit:      500,
		DeployLimit:      100,
		Seats:            3,
		ProjectNums:      5,
		PeriodStart:      start,
		PeriodEnd:        start.AddDate(0, 1, 0),
		IsActive:         true,
	}
}

func TestStore_InsertAndActiveRecord(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(fixedClock(start))

	rec := newFreeRecord("org1", start)
	require.NoError(t, store.InsertRecord(ctx, rec))
	assert.NotEmpty(t, rec.ID, "insert should assign an ID")

	got, err := store.ActiveRecord(ctx, "org1", limits.TierFree)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, limits.PlanFree, got.PlanName)
	assert.Equal(t, 10, got.AINums)

	// No paid record yet.
	paid, err := store.ActiveRecord(ctx, "org1", limits.TierPaid)
	require.NoError(t, err)
	assert.Nil(t, paid)

	// Unknown organization.
	got, err = store.ActiveRecord(ctx, "org_other", limits.TierFree)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ActiveRecordReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertRecord(ctx, newFreeRecord("org1", start)))

	got, err := store.ActiveRecord(ctx, "org1", limits.TierFree)
	require.NoError(t, err)
	got.AINums = -42

	again, err := store.ActiveRecord(ctx, "org1", limits.TierFree)
	require.NoError(t, err)
	assert.Equal(t, 10, again.AINums, "caller mutation must not reach the store")
}

func TestStore_DeductCounter(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 10)
	store.SetNow(fixedClock(now))

	require.NoError(t, store.InsertRecord(ctx, newFreeRecord("org1", start)))

	ok, err := store.DeductCounter(ctx, &limits.DeductRequest{
		OrganizationID: "org1", Tier: limits.TierFree, Resource: limits.ResourceAIMessage, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, _ := store.ActiveRecord(ctx, "org1", limits.TierFree)
	assert.Equal(t, 9, rec.AINums)

	// Absent record: false, no error.
	ok, err = store.DeductCounter(ctx, &limits.DeductRequest{
		OrganizationID: "org_missing", Tier: limits.TierFree, Resource: limits.ResourceAIMessage, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// Expired record: false, no error.
	ok, err = store.DeductCounter(ctx, &limits.DeductRequest{
		OrganizationID: "org1", Tier: limits.TierFree, Resource: limits.ResourceAIMessage,
		Now: start.AddDate(0, 2, 0),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DeductCounterStopsAtZero(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 1)
	store.SetNow(fixedClock(now))

	require.NoError(t, store.InsertRecord(ctx, newFreeRecord("org1", start)))

	// ProjectNums starts at 1: one grant, then denial.
	ok, err := store.DeductCounter(ctx, &limits.DeductRequest{
		OrganizationID: "org1", Tier: limits.TierFree, Resource: limits.ResourceProject, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.DeductCounter(ctx, &limits.DeductRequest{
		OrganizationID: "org1", Tier: limits.TierFree, Resource: limits.ResourceProject, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, _ := store.ActiveRecord(ctx, "org1", limits.TierFree)
	assert.Equal(t, 0, rec.ProjectNums, "counter must never go negative")
}

func TestStore_RefreshAndDeduct(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	store.SetNow(fixedClock(start))

	rec := newFreeRecord("org1", start)
	rec.AINums = 0
	rec.DeployLimit = 0
	require.NoError(t, store.InsertRecord(ctx, rec))

	ceilings := limits.PlanLimits{AINums: 10, EnhanceNums: 10, UploadLimit: 10, DeployLimit: 5, Seats: 1, ProjectNums: 1}
	newStart := start.AddDate(0, 1, 0)
	newEnd := start.AddDate(0, 2, 0)

	ok, err := store.RefreshAndDeduct(ctx, &limits.RefreshRequest{
		OrganizationID: "org1",
		Resource:       limits.ResourceAIMessage,
		PrevPeriodEnd:  rec.PeriodEnd,
		PeriodStart:    newStart,
		PeriodEnd:      newEnd,
		Limits:         ceilings,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := store.ActiveRecord(ctx, "org1", limits.TierFree)
	assert.Equal(t, 9, got.AINums, "target counter resets to ceiling then spends one")
	assert.Equal(t, 5, got.DeployLimit, "other counters reset to ceiling")
	assert.True(t, got.PeriodStart.Equal(newStart))
	assert.True(t, got.PeriodEnd.Equal(newEnd))

	// A second refresh against the already-replaced boundary loses the CAS.
	ok, err = store.RefreshAndDeduct(ctx, &limits.RefreshRequest{
		OrganizationID: "org1",
		Resource:       limits.ResourceAIMessage,
		PrevPeriodEnd:  rec.PeriodEnd,
		PeriodStart:    newStart,
		PeriodEnd:      newEnd,
		Limits:         ceilings,
	})
	require.NoError(t, err)
	assert.False(t, ok, "stale previous period end must not refresh again")
}

func TestStore_RefreshAndDeductZeroCeiling(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	store.SetNow(fixedClock(start))

	rec := newFreeRecord("org1", start)
	require.NoError(t, store.InsertRecord(ctx, rec))

	// A plan with no project allowance has nothing to spend: the refresh
	// must not grant, and the record must stay on its old period untouched.
	ceilings := limits.PlanLimits{AINums: 10, EnhanceNums: 10, UploadLimit: 10, DeployLimit: 5, Seats: 1, ProjectNums: 0}
	ok, err := store.RefreshAndDeduct(ctx, &limits.RefreshRequest{
		OrganizationID: "org1",
		Resource:       limits.ResourceProject,
		PrevPeriodEnd:  rec.PeriodEnd,
		PeriodStart:    start.AddDate(0, 1, 0),
		PeriodEnd:      start.AddDate(0, 2, 0),
		Limits:         ceilings,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := store.ActiveRecord(ctx, "org1", limits.TierFree)
	assert.Equal(t, rec.ProjectNums, got.ProjectNums, "counter must never go negative")
	assert.True(t, got.PeriodEnd.Equal(rec.PeriodEnd), "losing refresh must not advance the period")
}

func TestStore_RestoreCounter(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(fixedClock(start))

	rec := newProRecord("org1", start)
	rec.ProjectNums = 3
	require.NoError(t, store.InsertRecord(ctx, rec))

	ok, err := store.RestoreCounter(ctx, &limits.RestoreRequest{
		OrganizationID: "org1", Tier: limits.TierPaid, Resource: limits.ResourceProject, Ceiling: 5,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := store.ActiveRecord(ctx, "org1", limits.TierPaid)
	assert.Equal(t, 4, got.ProjectNums)

	// Push to ceiling, then the guard refuses.
	ok, err = store.RestoreCounter(ctx, &limits.RestoreRequest{
		OrganizationID: "org1", Tier: limits.TierPaid, Resource: limits.ResourceProject, Ceiling: 5,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RestoreCounter(ctx, &limits.RestoreRequest{
		OrganizationID: "org1", Tier: limits.TierPaid, Resource: limits.ResourceProject, Ceiling: 5,
	})
	require.NoError(t, err)
	assert.False(t, ok, "restore past the ceiling must be refused")
}

func TestStore_TouchFreeRecord(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(fixedClock(start))

	touched, err := store.TouchFreeRecord(ctx, "org1")
	require.NoError(t, err)
	assert.False(t, touched, "no record to touch yet")

	require.NoError(t, store.InsertRecord(ctx, newFreeRecord("org1", start)))

	later := start.Add(48 * time.Hour)
	store.SetNow(fixedClock(later))

	touched, err = store.TouchFreeRecord(ctx, "org1")
	require.NoError(t, err)
	assert.True(t, touched)

	rec, _ := store.ActiveRecord(ctx, "org1", limits.TierFree)
	assert.True(t, rec.UpdatedAt.Equal(later))
	assert.Equal(t, 10, rec.AINums, "touch must not change counters")
}

func TestStore_ReplacePaidRecord(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(fixedClock(start))

	require.NoError(t, store.InsertRecord(ctx, newFreeRecord("org1", start)))
	require.NoError(t, store.InsertRecord(ctx, newProRecord("org1", start)))

	maxRec := &limits.LimitRecord{
		OrganizationID: "org1",
		PlanName:       limits.PlanMax,
		AINums:         600,
		EnhanceNums:    600,
		UploadLimit:    2000,
		DeployLimit:    500,
		Seats:          10,
		ProjectNums:    20,
		PeriodStart:    start,
		PeriodEnd:      start.AddDate(0, 1, 0),
	}
	require.NoError(t, store.ReplacePaidRecord(ctx, maxRec))

	free, paid, err := store.ActiveRecords(ctx, "org1")
	require.NoError(t, err)
	require.NotNil(t, free, "replace must not touch the FREE record")
	require.NotNil(t, paid)
	assert.Equal(t, limits.PlanMax, paid.PlanName)

	activePaid := 0
	for _, r := range store.Records() {
		if r.IsActive && r.PlanName != limits.PlanFree {
			activePaid++
		}
	}
	assert.Equal(t, 1, activePaid, "at most one active paid record")
}

func TestStore_DeactivatePaidRecords(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(fixedClock(start))

	require.NoError(t, store.InsertRecord(ctx, newFreeRecord("org1", start)))
	require.NoError(t, store.InsertRecord(ctx, newProRecord("org1", start)))

	n, err := store.DeactivatePaidRecords(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	free, paid, err := store.ActiveRecords(ctx, "org1")
	require.NoError(t, err)
	assert.NotNil(t, free)
	assert.Nil(t, paid)

	// Idempotent.
	n, err = store.DeactivatePaidRecords(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_InvalidInserts(t *testing.T) {
	store := New()
	ctx := context.Background()

	assert.Error(t, store.InsertRecord(ctx, nil))
	assert.Error(t, store.InsertRecord(ctx, &limits.LimitRecord{}))
	assert.Error(t, store.ReplacePaidRecord(ctx, nil))
}
