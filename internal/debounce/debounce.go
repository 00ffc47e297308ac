// Package debounce provides an explicit arm/fire/cancel debouncer.
//
// The upload path of the reconciliation engine owns one of these instead of
// a closure-captured timer, so teardown and reconnection can cancel a
// pending fire deterministically.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of Trigger calls into a single invocation of
// fn after a quiet period. Trigger restarts the quiet period.
type Debouncer struct {
	mu     sync.Mutex
	quiet  time.Duration
	fn     func()
	timer  *time.Timer
	closed bool
}

func New(quiet time.Duration, fn func()) *Debouncer {
	return &Debouncer{quiet: quiet, fn: fn}
}

// Trigger arms (or re-arms) the debouncer. fn runs once the quiet period
// elapses with no further triggers. Calls after Close are ignored.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fn)
}

// Cancel drops a pending fire, if any. The debouncer stays usable.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Close cancels any pending fire and rejects future triggers.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.closed = true
}
