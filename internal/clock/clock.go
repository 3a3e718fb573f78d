// Package clock provides the time source used by the node's loop, retry
// policies and actuators.
//
// Production code uses System(). Tests use NewFake(), whose Sleep and
// timers advance virtual time instantly so cadence and reconnect behaviour
// can be checked without real delays.
package clock

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock is the injectable time source.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)

	// NewTimer returns a timer usable by backoff.RetryNotifyWithTimer.
	NewTimer() backoff.Timer
}

// System returns the wall clock.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time          { return time.Now() }
func (systemClock) Sleep(d time.Duration)   { time.Sleep(d) }
func (systemClock) NewTimer() backoff.Timer { return &systemTimer{} }

// systemTimer mirrors backoff's unexported default timer.
type systemTimer struct {
	timer *time.Timer
}

func (t *systemTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *systemTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *systemTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Fake is a manually driven clock. Sleep and timer waits advance the
// virtual time by the requested duration and return immediately.
//
// Thread Safety: all methods are safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFake returns a Fake starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep records d and advances virtual time by it.
func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
}

// Advance moves virtual time forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Sleeps returns every duration passed to Sleep or waited on by a timer.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// NewTimer returns a timer that fires as soon as it is started.
func (f *Fake) NewTimer() backoff.Timer {
	return &fakeTimer{clock: f, c: make(chan time.Time, 1)}
}

type fakeTimer struct {
	clock *Fake
	c     chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

func (t *fakeTimer) Start(d time.Duration) {
	t.clock.Sleep(d)
	select {
	case t.c <- t.clock.Now():
	default:
	}
}

func (t *fakeTimer) Stop() {}
