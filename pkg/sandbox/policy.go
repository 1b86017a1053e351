package sandbox

import "time"

// TimerPolicy decides how long a timer actually waits and whether an
// interval keeps repeating. Swapping the policy never touches component code.
type TimerPolicy interface {
	Timeout(requested time.Duration) time.Duration
	Interval(requested time.Duration) (delay time.Duration, repeat bool)
}

// ConstrainedDelay is the delay every timer gets under ConstrainedTimers.
const ConstrainedDelay = time.Millisecond

// ConstrainedTimers runs every timeout after ConstrainedDelay and fires each
// interval exactly once, also after ConstrainedDelay. Callbacks stay asynchronous.
type ConstrainedTimers struct{}

func (ConstrainedTimers) Timeout(time.Duration) time.Duration { return ConstrainedDelay }

func (ConstrainedTimers) Interval(time.Duration) (time.Duration, bool) {
	return ConstrainedDelay, false
}

// RealTimers honors the requested delays. Intervals repeat and are clamped
// to ConstrainedDelay so a zero interval cannot spin.
type RealTimers struct{}

func (RealTimers) Timeout(requested time.Duration) time.Duration {
	if requested < 0 {
		return 0
	}
	return requested
}

func (RealTimers) Interval(requested time.Duration) (time.Duration, bool) {
	if requested < ConstrainedDelay {
		return ConstrainedDelay, true
	}
	return requested, true
}
