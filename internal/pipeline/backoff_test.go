package pipeline

import (
	"testing"
	"time"

	"archivist/internal/config"
)

func TestBackoffDoubles(t *testing.T) {
	b := NewBackoff(config.Pipeline{
		RetryBackoffInitial:    60,
		RetryBackoffMultiplier: 2.0,
		RetryBackoffMax:        3600,
	})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{0, time.Minute},
		{-5, time.Minute},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffCaps(t *testing.T) {
	b := NewBackoff(config.Pipeline{
		RetryBackoffInitial:    60,
		RetryBackoffMultiplier: 3.0,
		RetryBackoffMax:        300,
	})
	if got := b.Delay(10); got != 5*time.Minute {
		t.Errorf("Delay(10) = %v, want cap of 5m", got)
	}
}

func TestBackoffFlatSchedule(t *testing.T) {
	b := NewBackoff(config.Pipeline{
		RetryBackoffInitial:    30,
		RetryBackoffMultiplier: 1.0,
		RetryBackoffMax:        3600,
	})
	for attempt := 1; attempt <= 5; attempt++ {
		if got := b.Delay(attempt); got != 30*time.Second {
			t.Errorf("Delay(%d) = %v, want flat 30s", attempt, got)
		}
	}
}
