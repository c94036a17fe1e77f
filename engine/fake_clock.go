package engine

import "time"

// FakeClock is a Clock whose time only moves when Advance is called.
// Exported so engine's own tests, and any future caller that wants a
// deterministic driver loop, can use it without touching real timers.
type FakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

// NewFakeClock starts the clock at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (f *FakeClock) Now() time.Time { return f.now }

func (f *FakeClock) NewTimer(d time.Duration) Timer {
	t := &fakeTimer{c: make(chan time.Time, 1), deadline: f.now.Add(d)}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing any timer whose deadline
// has passed.
func (f *FakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	for _, t := range f.timers {
		if t.stopped || t.fired {
			continue
		}
		if !f.now.Before(t.deadline) {
			t.fired = true
			select {
			case t.c <- f.now:
			default:
			}
		}
	}
}

type fakeTimer struct {
	c        chan time.Time
	deadline time.Time
	stopped  bool
	fired    bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Reset(d time.Duration) {
	t.fired = false
	t.stopped = false
	// The new deadline is the previous deadline plus d, not the clock's
	// current time plus d; callers reset right after handling a firing,
	// so the previous deadline stands in for the firing time, which is
	// good enough for a test double.
	t.deadline = t.deadline.Add(d)
}

func (t *fakeTimer) Stop() { t.stopped = true }
