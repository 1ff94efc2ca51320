package pipeline

import (
	"testing"
	"time"
)

func TestRetryDelayBounds(t *testing.T) {
	base := 2 * time.Second
	max := time.Minute
	caps := []time.Duration{
		2 * time.Second,  // attempt 1
		4 * time.Second,  // attempt 2
		8 * time.Second,  // attempt 3
		16 * time.Second, // attempt 4
	}
	for attempt, ceiling := range caps {
		for i := 0; i < 50; i++ {
			d := RetryDelay(attempt+1, base, max)
			if d < ceiling/2 || d > ceiling {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt+1, d, ceiling/2, ceiling)
			}
		}
	}
}

func TestRetryDelayCapped(t *testing.T) {
	max := 10 * time.Second
	for i := 0; i < 50; i++ {
		d := RetryDelay(30, time.Second, max)
		if d > max {
			t.Fatalf("delay %v exceeds max %v", d, max)
		}
		if d < max/2 {
			t.Fatalf("delay %v below half the cap %v", d, max/2)
		}
	}
}

func TestRetryDelayDefaults(t *testing.T) {
	if d := RetryDelay(1, 0, 0); d <= 0 {
		t.Fatalf("delay with zero config should still be positive, got %v", d)
	}
}
