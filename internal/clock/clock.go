package clock

import "time"

// Clock provides time information for budget and monitor decisions.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock provides fixed time for testing.
type TestClock struct {
	CurrentTime time.Time
}

// Now returns the test time.
func (t *TestClock) Now() time.Time {
	return t.CurrentTime
}

// StartOfDay returns midnight of the calendar day containing t, in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextMidnight returns the start of the calendar day after t.
func NextMidnight(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// MinutesUntilMidnight returns the whole minutes remaining until the next
// local midnight.
func MinutesUntilMidnight(now time.Time) int {
	return int(NextMidnight(now).Sub(now) / time.Minute)
}

// ResetDue reports whether lastReset belongs to a calendar day before today.
// A zero lastReset is always due.
func ResetDue(lastReset, now time.Time) bool {
	return lastReset.Before(StartOfDay(now))
}
