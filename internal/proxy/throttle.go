package proxy

import (
	"sync"
	"time"
)

// partialInterval is the minimum spacing between partial tokenization passes
// for one exchange.
const partialInterval = 90 * time.Millisecond

// throttle coalesces bursts of triggers into at most one callback per
// interval. The callback runs on the timer goroutine and reads whatever state
// is latest at fire time, so superseded triggers cost nothing.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	armed    bool
	stopped  bool
	timer    *time.Timer
	fn       func()
}

func newThrottle(interval time.Duration, fn func()) *throttle {
	return &throttle{interval: interval, fn: fn}
}

// Trigger arms the timer if no pass is already scheduled.
func (t *throttle) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed || t.stopped {
		return
	}
	t.armed = true
	t.timer = time.AfterFunc(t.interval, t.fire)
}

func (t *throttle) fire() {
	t.mu.Lock()
	t.armed = false
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.fn()
	}
}

// Stop cancels any scheduled pass and prevents future ones. Called at
// finalization so no partial lands after the final snapshot.
func (t *throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
