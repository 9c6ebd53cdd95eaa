// Package memory provides an in-memory implementation of the limits.Store
// interface. This implementation is primarily intended for testing and
// development: it reproduces the guarded-update semantics of the SQL store
// under a single mutex and exposes a settable clock so period expiry can be
// driven deterministically.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// Store implements limits.Store using in-memory records
type Store struct {
	mu      sync.Mutex
	records []*limits.LimitRecord
	seq     int
	now     func() time.Time
}

// New creates a new in-memory store adapter
func New() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// SetNow overrides the store clock. Pass nil to restore the real clock.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
		return
	}
	s.now = now
}

// Now implements limits.Store
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now(), nil
}

// ActiveRecord implements limits.Store
func (s *Store) ActiveRecord(ctx context.Context, orgID string, tier limits.Tier) (*limits.LimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findActive(orgID, tier)
	if rec == nil {
		return nil, nil
	}
	recCopy := *rec
	return &recCopy, nil
}

// ActiveRecords implements limits.Store
func (s *Store) ActiveRecords(ctx context.Context, orgID string) (*limits.LimitRecord, *limits.LimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var free, paid *limits.LimitRecord
	if rec := s.findActive(orgID, limits.TierFree); rec != nil {
		recCopy := *rec
		free = &recCopy
	}
	if rec := s.findActive(orgID, limits.TierPaid); rec != nil {
		recCopy := *rec
		paid = &recCopy
	}
	return free, paid, nil
}

// DeductCounter implements limits.Store with guarded-update semantics:
// a record that is absent, expired or exhausted means false, not an error.
func (s *Store) DeductCounter(ctx context.Context, req *limits.DeductRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findActive(req.OrganizationID, req.Tier)
	if rec == nil {
		return false, nil
	}
	if rec.PeriodEnd.Before(req.Now) {
		return false, nil
	}
	if rec.Counter(req.Resource) <= 0 {
		return false, nil
	}

	addCounter(rec, req.Resource, -1)
	rec.UpdatedAt = s.now()
	return true, nil
}

// RefreshAndDeduct implements limits.Store. The previous period end acts as
// the compare-and-swap guard, matching the SQL implementation.
func (s *Store) RefreshAndDeduct(ctx context.Context, req *limits.RefreshRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findActive(req.OrganizationID, limits.TierFree)
	if rec == nil {
		return false, nil
	}
	if !rec.PeriodEnd.Equal(req.PrevPeriodEnd) {
		// Another caller already rolled the period forward.
		return false, nil
	}
	if req.Limits.Ceiling(req.Resource)-1 < 0 {
		// Plan with a zero ceiling for this resource has nothing to spend.
		return false, nil
	}

	rec.AINums = req.Limits.AINums
	rec.EnhanceNums = req.Limits.EnhanceNums
	rec.UploadLimit = req.Limits.UploadLimit
	rec.DeployLimit = req.Limits.DeployLimit
	rec.Seats = req.Limits.Seats
	rec.ProjectNums = req.Limits.ProjectNums
	addCounter(rec, req.Resource, -1)
	rec.PeriodStart = req.PeriodStart
	rec.PeriodEnd = req.PeriodEnd
	rec.UpdatedAt = s.now()
	return true, nil
}

// RestoreCounter implements limits.Store
func (s *Store) RestoreCounter(ctx context.Context, req *limits.RestoreRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findActive(req.OrganizationID, req.Tier)
	if rec == nil {
		return false, nil
	}
	if rec.Counter(req.Resource) >= req.Ceiling {
		return false, nil
	}

	addCounter(rec, req.Resource, 1)
	rec.UpdatedAt = s.now()
	return true, nil
}

// InsertRecord implements limits.Store
func (s *Store) InsertRecord(ctx context.Context, rec *limits.LimitRecord) error {
	if rec == nil || rec.OrganizationID == "" {
		return fmt.Errorf("invalid record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	recCopy := *rec
	if recCopy.ID == "" {
		recCopy.ID = fmt.Sprintf("rec_%d", s.seq)
	}
	now := s.now()
	recCopy.CreatedAt = now
	recCopy.UpdatedAt = now
	s.records = append(s.records, &recCopy)

	rec.ID = recCopy.ID
	return nil
}

// TouchFreeRecord implements limits.Store
func (s *Store) TouchFreeRecord(ctx context.Context, orgID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findActive(orgID, limits.TierFree)
	if rec == nil {
		return false, nil
	}
	rec.UpdatedAt = s.now()
	return true, nil
}

// ReplacePaidRecord implements limits.Store
func (s *Store) ReplacePaidRecord(ctx context.Context, rec *limits.LimitRecord) error {
	if rec == nil || rec.OrganizationID == "" {
		return fmt.Errorf("invalid record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, existing := range s.records {
		if existing.OrganizationID == rec.OrganizationID &&
			existing.IsActive && existing.PlanName != limits.PlanFree {
			existing.IsActive = false
			existing.UpdatedAt = now
		}
	}

	s.seq++
	recCopy := *rec
	if recCopy.ID == "" {
		recCopy.ID = fmt.Sprintf("rec_%d", s.seq)
	}
	recCopy.IsActive = true
	recCopy.CreatedAt = now
	recCopy.UpdatedAt = now
	s.records = append(s.records, &recCopy)

	rec.ID = recCopy.ID
	return nil
}

// DeactivatePaidRecords implements limits.Store
func (s *Store) DeactivatePaidRecords(ctx context.Context, orgID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now()
	for _, rec := range s.records {
		if rec.OrganizationID == orgID && rec.IsActive && rec.PlanName != limits.PlanFree {
			rec.IsActive = false
			rec.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// Records returns copies of every stored record (tests).
func (s *Store) Records() []limits.LimitRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]limits.LimitRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// findActive returns the newest active record for a tier; callers hold s.mu.
func (s *Store) findActive(orgID string, tier limits.Tier) *limits.LimitRecord {
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.OrganizationID != orgID || !rec.IsActive {
			continue
		}
		if rec.PlanName.Tier() == tier {
			return rec
		}
	}
	return nil
}

func addCounter(rec *limits.LimitRecord, res limits.Resource, delta int) {
	switch res {
	case limits.ResourceAIMessage:
		rec.AINums += delta
	case limits.ResourceEnhance:
		rec.EnhanceNums += delta
	case limits.ResourceProject:
		rec.ProjectNums += delta
	case limits.ResourceDeploy:
		rec.DeployLimit += delta
	}
}
