package engine

import (
	"sync"
	"time"
)

// deferredTimer fires a callback after a duration unless stopped first. A
// stopped timer never fires, and stopping a fired timer is a no-op. It is
// safe for concurrent use.
type deferredTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// newDeferredTimer creates and starts a timer that calls onFire after d.
// onFire runs on its own goroutine.
//
// Precondition: d > 0; onFire must not be nil.
func newDeferredTimer(d time.Duration, onFire func()) *deferredTimer {
	dt := &deferredTimer{}
	dt.timer = time.AfterFunc(d, func() {
		dt.mu.Lock()
		stopped := dt.stopped
		dt.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return dt
}

// Stop prevents the callback from firing. Safe to call multiple times and
// after the timer has fired.
func (dt *deferredTimer) Stop() {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.stopped = true
	if dt.timer != nil {
		dt.timer.Stop()
	}
}
