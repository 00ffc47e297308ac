// Package limiter implements the cooldown used to dampen reconnect storms.
//
// A limited attempt is not a failure: it means the caller has not yet
// observed its own previous attempt complete, so the correct reaction is
// a silent no-op.
package limiter

import (
	"sync"
	"time"
)

// Cooldown admits at most one attempt per minimum interval. The decision
// is a pure function of "now" and the last admitted attempt, which keeps
// it unit-testable without real timers.
type Cooldown struct {
	mu    sync.Mutex
	min   time.Duration
	last  time.Time
	nowFn func() time.Time
}

func NewCooldown(min time.Duration) *Cooldown {
	return &Cooldown{min: min, nowFn: time.Now}
}

// Allow records and admits the attempt when enough time has passed since
// the last admitted one, and rejects it otherwise.
func (c *Cooldown) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if !c.last.IsZero() && now.Sub(c.last) < c.min {
		return false
	}
	c.last = now
	return true
}

// Reset forgets the last attempt so the next Allow always admits.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = time.Time{}
}

// SetNow overrides the clock. Tests only.
func (c *Cooldown) SetNow(fn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFn = fn
}
