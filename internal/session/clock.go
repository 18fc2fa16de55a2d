package session

import (
	"fmt"
	"time"
)

// WarningThresholds are the remaining-time marks, in minutes, at which the candidate is warned.
var WarningThresholds = []int{30, 15, 5, 1}

// Clock is the session countdown. It only ever moves down, one second per unpaused tick,
// and expires exactly once when it reaches zero.
type Clock struct {
	remaining int
	expired   bool
	shown     map[int]bool
}

// TickResult describes what a single tick did.
type TickResult struct {
	Remaining int
	Advanced  bool
	// Warning is the threshold in minutes crossed on this tick, 0 when none.
	Warning int
	// Expired is true only on the tick that exhausted the budget.
	Expired bool
}

// NewClock seeds a countdown with the given number of seconds.
func NewClock(seconds int) *Clock {
	if seconds < 0 {
		seconds = 0
	}
	return &Clock{remaining: seconds, shown: make(map[int]bool, len(WarningThresholds))}
}

// RestoreRemaining computes the budget left for a restored snapshot. Under pause-on-disconnect
// semantics time does not advance while unmounted; otherwise the wall-clock time since the save
// is deducted.
func RestoreRemaining(stored int, savedAt, now time.Time, pauseOnDisconnect bool) int {
	if stored < 0 {
		return 0
	}
	if pauseOnDisconnect {
		return stored
	}
	elapsed := int(now.Sub(savedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := stored - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Tick advances the clock by one second unless paused or already expired.
func (c *Clock) Tick(paused bool) TickResult {
	if c.expired {
		return TickResult{}
	}
	if c.remaining == 0 {
		c.expired = true
		return TickResult{Expired: true}
	}
	if paused {
		return TickResult{Remaining: c.remaining}
	}

	c.remaining--
	res := TickResult{Remaining: c.remaining, Advanced: true}

	// When several thresholds are crossed at once (a resume deep into the budget) only the
	// most urgent one is announced.
	for _, minutes := range WarningThresholds {
		if c.remaining <= minutes*60 && !c.shown[minutes] {
			c.shown[minutes] = true
			res.Warning = minutes
		}
	}

	if c.remaining == 0 {
		c.expired = true
		res.Expired = true
	}
	return res
}

// CheckExpired expires a clock that was seeded with no time left. It reports whether the
// clock expired because of this call.
func (c *Clock) CheckExpired() bool {
	if c.expired || c.remaining > 0 {
		return false
	}
	c.expired = true
	return true
}

// Remaining returns the seconds left.
func (c *Clock) Remaining() int {
	return c.remaining
}

// Expired reports whether the budget has run out.
func (c *Clock) Expired() bool {
	return c.expired
}

// WarningMessage renders the notice for a crossed threshold.
func WarningMessage(minutes int) string {
	if minutes == 1 {
		return "1 minute remaining"
	}
	return fmt.Sprintf("%d minutes remaining", minutes)
}
