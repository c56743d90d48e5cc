// Package clock implements per-game wall-clock time controls: two countdown
// budgets with a post-move increment and an exactly-once flag-fall callback.
package clock

import (
	"sync"
	"time"

	"github.com/cairnhall/takserver/internal/game"
)

// Clock tracks both players' remaining time for a single game. It is safe
// for concurrent use.
//
// The running side's budget drains against the wall clock between Start or
// Press calls; the flag-fall callback fires at most once, even if a timer
// callback races a Press, Pause, or Stop.
type Clock struct {
	mu            sync.Mutex
	remaining     [2]time.Duration
	increment     time.Duration
	turn          game.Color
	turnStartedAt time.Time
	running       bool
	flagged       bool
	timer         *time.Timer
	onFlag        func(loser game.Color)
}

// New creates a stopped clock with both budgets at the control's contingent.
//
// Precondition: tc.Valid(); onFlag must not be nil.
func New(tc game.TimeControl, onFlag func(loser game.Color)) *Clock {
	if !tc.Valid() {
		panic("clock: New() precondition violated: invalid time control")
	}
	if onFlag == nil {
		panic("clock: New() precondition violated: onFlag must not be nil")
	}
	return &Clock{
		remaining: [2]time.Duration{tc.Contingent, tc.Contingent},
		increment: tc.Increment,
		onFlag:    onFlag,
	}
}

// Start begins draining the first mover's budget.
//
// Postcondition: the clock is running for first; a flag timer is scheduled.
func (c *Clock) Start(first game.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.flagged {
		return
	}
	c.turn = first
	c.startTurnLocked()
}

// Press records a completed move by the side to move: the mover's budget is
// settled, the increment added, and the opponent's budget starts draining.
//
// Postcondition: Remaining() for the mover never goes negative.
func (c *Clock) Press() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.flagged {
		return
	}
	c.settleLocked()
	if c.flagged {
		return
	}
	c.remaining[c.turn] += c.increment
	c.turn = c.turn.Opponent()
	c.startTurnLocked()
}

// Pause settles the running side's budget and stops the drain, cancelling
// the pending flag timer. Pausing a stopped clock is a no-op.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.settleLocked()
	c.running = false
	c.stopTimerLocked()
}

// Resume restarts the drain for the side to move after a Pause.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.flagged {
		return
	}
	c.startTurnLocked()
}

// Stop halts the clock permanently; no flag callback fires afterwards.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.settleLocked()
		c.running = false
	}
	c.flagged = true // suppress any in-flight timer callback
	c.stopTimerLocked()
}

// Remaining returns both budgets with the running side settled against the
// wall clock. Values are clamped at zero.
func (c *Clock) Remaining() (white, black time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, b := c.remaining[game.White], c.remaining[game.Black]
	if c.running {
		elapsed := time.Since(c.turnStartedAt)
		if c.turn == game.White {
			w -= elapsed
		} else {
			b -= elapsed
		}
	}
	if w < 0 {
		w = 0
	}
	if b < 0 {
		b = 0
	}
	return w, b
}

// Turn returns the side whose budget is draining (or would drain on Resume).
func (c *Clock) Turn() game.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

// settleLocked folds elapsed wall time into the running side's budget and
// marks the flag if it reached zero.
func (c *Clock) settleLocked() {
	c.remaining[c.turn] -= time.Since(c.turnStartedAt)
	c.turnStartedAt = time.Now()
	if c.remaining[c.turn] <= 0 {
		c.remaining[c.turn] = 0
		c.flagLocked(c.turn)
	}
}

// startTurnLocked begins draining c.turn's budget and schedules the flag
// timer for the moment it would empty.
func (c *Clock) startTurnLocked() {
	c.running = true
	c.turnStartedAt = time.Now()
	c.stopTimerLocked()
	loser := c.turn
	c.timer = time.AfterFunc(c.remaining[c.turn], func() {
		c.mu.Lock()
		if c.flagged || !c.running || c.turn != loser {
			c.mu.Unlock()
			return
		}
		c.remaining[loser] = 0
		c.flagLocked(loser)
		c.mu.Unlock()
	})
}

// flagLocked performs the exactly-once flag-fall transition and invokes the
// callback on its own goroutine so callers never re-enter under the lock.
func (c *Clock) flagLocked(loser game.Color) {
	if c.flagged {
		return
	}
	c.flagged = true
	c.running = false
	c.stopTimerLocked()
	go c.onFlag(loser)
}

func (c *Clock) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
