// ABOUTME: Periodic timers scheduled by the agent loop.
// ABOUTME: A timer never fires before its deadline; it may fire later under load.

package agent

import (
	"time"
)

// MinInterval is the shortest period a timer accepts; shorter periods are
// raised to it.
const MinInterval = time.Millisecond

// TimerFunc is invoked on the loop goroutine when a timer fires.
type TimerFunc func(t *Timer, a *Agent)

// Timer fires its callback every period while active. Timers belong to the
// agent loop goroutine and must not be touched from other goroutines once
// Loop is running.
type Timer struct {
	period   time.Duration
	next     time.Time
	active   bool
	callback TimerFunc
}

// NewTimer creates an inactive timer. Call Start to schedule it.
func NewTimer(period time.Duration, callback TimerFunc) *Timer {
	return &Timer{
		period:   clampInterval(period),
		callback: callback,
	}
}

// Start schedules the first firing one period from now.
func (t *Timer) Start() {
	t.active = true
	t.next = time.Now().Add(t.period)
}

// Stop deactivates the timer.
func (t *Timer) Stop() {
	t.active = false
}

// Active reports whether the timer is scheduled.
func (t *Timer) Active() bool {
	return t.active
}

// Interval returns the period.
func (t *Timer) Interval() time.Duration {
	return t.period
}

// SetInterval changes the period; it takes effect at the next firing or Start.
func (t *Timer) SetInterval(period time.Duration) {
	t.period = clampInterval(period)
}

func clampInterval(period time.Duration) time.Duration {
	if period < MinInterval {
		return MinInterval
	}
	return period
}

// FireTime returns the next scheduled firing.
func (t *Timer) FireTime() time.Time {
	return t.next
}

// due reports whether the timer should fire at now.
func (t *Timer) due(now time.Time) bool {
	return t.active && !now.Before(t.next)
}

// fire reschedules from now, not from the missed deadline, so an overrun
// never causes a burst of catch-up firings.
func (t *Timer) fire(now time.Time, a *Agent) {
	t.next = now.Add(t.period)
	if t.callback != nil {
		t.callback(t, a)
	}
}
