package scheduler

import (
	"testing"
	"time"
)

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Every(1 * time.Hour)
	next := s.Next(now)
	if !next.Equal(now.Add(1 * time.Hour)) {
		t.Errorf("Expected %v, got %v", now.Add(1*time.Hour), next)
	}
}

func TestDailySchedule(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		hour, minute int
		want         time.Time
	}{
		{"later today", 14, 30, time.Date(2025, 1, 1, 14, 30, 0, 0, time.UTC)},
		{"already passed", 8, 0, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)},
		{"exactly now", 10, 0, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got := Daily(tt.hour, tt.minute).Next(now)
		if !got.Equal(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestDailySchedule_MonthRollover(t *testing.T) {
	now := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	got := Daily(3, 0).Next(now)
	want := time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestIntervalSchedule_Floor(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, d := range []time.Duration{0, -time.Minute, time.Millisecond} {
		if got := Every(d).Next(now); !got.Equal(now.Add(MinInterval)) {
			t.Errorf("Every(%v): expected %v, got %v", d, now.Add(MinInterval), got)
		}
	}
}
