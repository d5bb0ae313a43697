package trap

import "time"

/*
tickSource schedules the controller's simulated dwell ticks.

Every arm bumps a generation counter which is passed to the callback; the
controller discards callbacks whose generation is stale.  This closes the
race flagged by a pause issued immediately after a resume: the resume's
one-shot may already be in flight when the pause cancels it, but it carries
the old generation and is ignored when it lands.

tickSource has no lock of its own.  All methods must be called with the
owning Controller's mutex held; callbacks re-acquire that mutex before
touching anything.
*/
type tickSource struct {
	interval time.Duration
	timer    *time.Timer
	armedAt  time.Time
	gen      uint64
}

// start arms a tick after one full interval, invalidating anything pending
func (ts *tickSource) start(fn func(gen uint64)) {
	ts.cancel()
	gen := ts.gen
	ts.armedAt = time.Now()
	ts.timer = time.AfterFunc(ts.interval, func() { fn(gen) })
}

// next arms the following tick without changing generation; called by the
// tick callback itself to keep the period going
func (ts *tickSource) next(fn func(gen uint64)) {
	gen := ts.gen
	ts.armedAt = time.Now()
	ts.timer = time.AfterFunc(ts.interval, func() { fn(gen) })
}

// resume arms a single tick after the given delay (a captured remainder
// plus settle margin); the callback is expected to call next to continue
func (ts *tickSource) resume(after time.Duration, fn func(gen uint64)) {
	ts.cancel()
	gen := ts.gen
	ts.armedAt = time.Now().Add(after - ts.interval) // so remaining() stays sane
	ts.timer = time.AfterFunc(after, func() { fn(gen) })
}

// remaining returns the time left before the pending tick fires
func (ts *tickSource) remaining() time.Duration {
	if ts.timer == nil {
		return 0
	}
	rem := ts.interval - time.Since(ts.armedAt)
	if rem < 0 {
		rem = 0
	}
	return rem
}

// cancel stops the pending tick, if any, and invalidates in-flight callbacks
func (ts *tickSource) cancel() {
	ts.gen++
	if ts.timer != nil {
		ts.timer.Stop()
		ts.timer = nil
	}
}
