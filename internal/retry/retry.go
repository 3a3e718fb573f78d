// Package retry runs an operation until it succeeds, waiting a fixed
// interval between attempts.
//
// It wraps cenkalti/backoff/v4 with a constant back-off and takes its
// timers from an injectable clock, so callers can be exercised in tests
// without real delays.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// Policy is a fixed-interval retry policy.
//
// A zero MaxAttempts retries forever; only context cancellation or a
// backoff.Permanent error ends the loop early.
type Policy struct {
	interval    time.Duration
	maxAttempts int
	clock       clock.Clock
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts bounds the number of attempts (including the first).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.maxAttempts = n
	}
}

// WithClock sets the clock whose timers pace the retries.
func WithClock(c clock.Clock) Option {
	return func(p *Policy) {
		p.clock = c
	}
}

// Fixed returns a policy that waits interval between attempts.
func Fixed(interval time.Duration, opts ...Option) *Policy {
	p := &Policy{
		interval: interval,
		clock:    clock.System(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the wait between attempts.
func (p *Policy) Interval() time.Duration {
	return p.interval
}

// Notify is called after every failed attempt with the error and the
// wait before the next one.
type Notify func(err error, next time.Duration)

// Do runs op until it returns nil.
//
// Returns:
//   - nil once op succeeds
//   - ctx.Err() if the context is cancelled while waiting
//   - the last error from op when MaxAttempts is exhausted or op returns
//     a backoff.Permanent error
func (p *Policy) Do(ctx context.Context, op func() error, notify Notify) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.maxAttempts-1)) //nolint:gosec // checked positive above
	}
	b = backoff.WithContext(b, ctx)

	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}

	return backoff.RetryNotifyWithTimer(op, b, n, p.clock.NewTimer())
}
