package limits

import (
	"testing"
	"time"
)

func TestRolloverPeriod_SingleStep(t *testing.T) {
	prevStart := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 2, 20, 14, 30, 0, 0, time.UTC)

	start, end := RolloverPeriod(prevStart, now)

	wantStart := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, start)
	}
	if !end.Equal(wantEnd) {
		t.Errorf("Expected end %v, got %v", wantEnd, end)
	}
}

func TestRolloverPeriod_MultiMonthGap(t *testing.T) {
	// A record idle across several periods lands in the period containing
	// now, not the one right after the old boundary.
	prevStart := time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 25, 9, 0, 0, 0, time.UTC)

	start, end := RolloverPeriod(prevStart, now)

	wantStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("Expected %v..%v, got %v..%v", wantStart, wantEnd, start, end)
	}
}

func TestRolloverPeriod_PreservesAnniversaryDay(t *testing.T) {
	// Jan 31 anniversary: February clamps to the 28th, March returns to
	// the 31st rather than inheriting the clamp.
	prevStart := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	start, end := RolloverPeriod(prevStart, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	wantStart := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("Expected %v..%v, got %v..%v", wantStart, wantEnd, start, end)
	}

	start, end = RolloverPeriod(prevStart, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	wantStart = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	wantEnd = time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("Expected %v..%v, got %v..%v", wantStart, wantEnd, start, end)
	}
}

func TestRolloverPeriod_FloorsToMidnightUTC(t *testing.T) {
	prevStart := time.Date(2025, 1, 15, 18, 45, 12, 0, time.UTC)
	now := time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC)

	start, end := RolloverPeriod(prevStart, now)

	wantStart := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("Expected start floored to %v, got %v", wantStart, start)
	}
	if end.Hour() != 0 || end.Minute() != 0 {
		t.Errorf("Expected end at midnight UTC, got %v", end)
	}
}

func TestRolloverPeriod_FutureStartClamps(t *testing.T) {
	// A start after now (clock skew between writers) yields one period
	// from the stored start instead of looping backwards.
	prevStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)

	start, end := RolloverPeriod(prevStart, now)

	if !start.Equal(prevStart) {
		t.Errorf("Expected start unchanged at %v, got %v", prevStart, start)
	}
	wantEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	if !end.Equal(wantEnd) {
		t.Errorf("Expected end %v, got %v", wantEnd, end)
	}
}

func TestRolloverPeriod_ExactBoundary(t *testing.T) {
	// now exactly on a boundary starts the new period at that boundary.
	prevStart := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)

	start, end := RolloverPeriod(prevStart, now)

	wantStart := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("Expected %v..%v, got %v..%v", wantStart, wantEnd, start, end)
	}
}

func TestAddMonthsSafe(t *testing.T) {
	tests := []struct {
		name   string
		base   time.Time
		months int
		want   time.Time
	}{
		{
			name:   "plain month",
			base:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "jan 31 to february",
			base:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "leap february",
			base:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "year boundary",
			base:   time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := addMonthsSafe(tt.base, tt.months)
			if !got.Equal(tt.want) {
				t.Errorf("addMonthsSafe(%v, %d) = %v, want %v", tt.base, tt.months, got, tt.want)
			}
		})
	}
}
