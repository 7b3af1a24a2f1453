package clock

import (
	"testing"
	"time"
)

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("TST", 3*60*60)
	now := time.Date(2024, 3, 10, 15, 42, 7, 12345, loc)

	start := StartOfDay(now)

	if start.Hour() != 0 || start.Minute() != 0 || start.Second() != 0 || start.Nanosecond() != 0 {
		t.Errorf("StartOfDay() = %v, want midnight", start)
	}
	if start.Day() != 10 || start.Location() != loc {
		t.Errorf("StartOfDay() = %v, want same day and location", start)
	}
}

func TestMinutesUntilMidnight(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"one minute before midnight", time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC), 1},
		{"midday", time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), 720},
		{"just after midnight", time.Date(2024, 3, 10, 0, 0, 30, 0, time.UTC), 1439},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinutesUntilMidnight(tt.now); got != tt.want {
				t.Errorf("MinutesUntilMidnight(%v) = %d, want %d", tt.now, got, tt.want)
			}
		})
	}
}

func TestResetDue(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastReset time.Time
		want      bool
	}{
		{"zero value", time.Time{}, true},
		{"yesterday", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{"late yesterday", time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC), true},
		{"today's start", StartOfDay(now), false},
		{"earlier today", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResetDue(tt.lastReset, now); got != tt.want {
				t.Errorf("ResetDue(%v, %v) = %v, want %v", tt.lastReset, now, got, tt.want)
			}
		})
	}
}
