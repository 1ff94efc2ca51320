package gateway

import (
	"sync"
	"time"

	"github.com/yungbote/skillforge-backend/internal/pkg/clock"
)

// Breaker trips after Threshold failures inside Window, then fails fast for
// Cooldown. After the cooldown a single probe is allowed through; a probe
// success closes the breaker, a probe failure re-arms the cooldown.
type Breaker struct {
	mu        sync.Mutex
	clk       clock.Clock
	threshold int
	window    time.Duration
	cooldown  time.Duration

	failures []time.Time
	openedAt time.Time
	open     bool
}

func NewBreaker(clk clock.Clock, threshold int, window, cooldown time.Duration) *Breaker {
	if clk == nil {
		clk = clock.System()
	}
	return &Breaker{
		clk:       clk,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
	}
}

func (b *Breaker) Allow() bool {
	if b == nil || b.threshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	// Half-open probe once the cooldown has elapsed.
	return !b.clk.Now().Before(b.openedAt.Add(b.cooldown))
}

func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.failures = b.failures[:0]
	b.open = false
	b.mu.Unlock()
}

func (b *Breaker) RecordFailure() {
	if b == nil || b.threshold <= 0 {
		return
	}
	now := b.clk.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		// Failed probe: restart the cooldown.
		b.openedAt = now
		return
	}
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)
	if len(b.failures) >= b.threshold {
		b.open = true
		b.openedAt = now
		b.failures = b.failures[:0]
	}
}

func (b *Breaker) Open() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
