package limits

import "time"

// RolloverPeriod computes the billing period a FREE record rolls forward
// into once its previous period has expired. The new start is found by
// repeatedly adding one calendar month to the old start until the next step
// would pass now, so a record that sat idle across several periods lands in
// the period containing now rather than the one after the old boundary.
// The start is floored to UTC midnight to keep anniversary drift out of the
// stored boundaries; the end is exactly one month after the start.
func RolloverPeriod(prevStart, now time.Time) (start, end time.Time) {
	start = startOfDayUTC(prevStart)
	n := now.UTC()

	if n.Before(start) {
		// Clock skew / future start: clamp to a single period from start.
		return start, addMonthsSafe(start, 1)
	}

	// Preserve the original day-of-month across variable month lengths.
	anniversaryDay := start.Day()
	months := 0
	for {
		next := addMonthsSafeWithDay(start, months+1, anniversaryDay)
		if next.After(n) {
			return addMonthsSafeWithDay(start, months, anniversaryDay), next
		}
		months++
	}
}

// addMonthsSafeWithDay adds months while preserving the target day-of-month
// when possible. If the target day doesn't exist in the result month
// (e.g. Feb 31), it uses the last day of that month.
func addMonthsSafeWithDay(base time.Time, months, targetDay int) time.Time {
	year, month, _ := base.Date()
	targetDate := time.Date(year, month+time.Month(months), 1, base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), base.Location())

	lastDay := time.Date(targetDate.Year(), targetDate.Month()+1, 0, 0, 0, 0, 0, targetDate.Location()).Day()

	actualDay := targetDay
	if actualDay > lastDay {
		actualDay = lastDay
	}

	return time.Date(targetDate.Year(), targetDate.Month(), actualDay, base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), base.Location())
}

// addMonthsSafe adds months to a time, handling month-end edge cases.
// Uses time.Date with day=1 to avoid overflow, then clips to max day.
func addMonthsSafe(t time.Time, months int) time.Time {
	return addMonthsSafeWithDay(t, months, t.Day())
}

// startOfDayUTC returns the start of day (00:00:00) in UTC for the given time.
func startOfDayUTC(t time.Time) time.Time {
	tt := t.UTC()
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
}
