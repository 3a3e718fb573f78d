// Package network keeps the node's wireless link up.
//
// A Connector polls a Link at a fixed interval until it reports up. The
// link itself is either a named Linux interface (optionally joined through
// NetworkManager) or, for the simulated board, always up.
package network

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-node/internal/retry"
)

// joinAttempts bounds the join requests made per outage.
const joinAttempts = 3

// Link is a network attachment the node depends on.
type Link interface {
	// Up reports whether the link can carry traffic right now.
	Up(ctx context.Context) (bool, error)

	// Join asks the system to (re)establish the link. It may be a no-op.
	Join(ctx context.Context) error

	// Name identifies the link in logs.
	Name() string
}

// Connector establishes and re-establishes a Link.
type Connector struct {
	link    Link
	retry   *retry.Policy
	join    *retry.Policy
	logger  *logging.Logger
	metrics *metrics.Metrics
	clock   clock.Clock

	interval  time.Duration
	connected bool
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the connector logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connector) { c.metrics = m }
}

// WithClock sets the clock pacing link polls.
func WithClock(clk clock.Clock) Option {
	return func(c *Connector) { c.clock = clk }
}

// NewConnector returns a Connector polling link every interval.
func NewConnector(link Link, interval time.Duration, opts ...Option) *Connector {
	c := &Connector{
		link:     link,
		interval: interval,
		logger:   logging.Discard(),
		clock:    clock.System(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry = retry.Fixed(interval, retry.WithClock(c.clock))
	c.join = retry.Fixed(interval, retry.WithClock(c.clock), retry.WithMaxAttempts(joinAttempts))
	return c
}

// Connect blocks until the link is up.
//
// If the link is down it is asked to join, up to joinAttempts times, then
// polled every interval. A join that keeps failing is logged and polling
// continues, since the system may bring the link up on its own.
//
// Returns:
//   - nil once the link is up
//   - ctx.Err() (wrapped) if the context is cancelled first
func (c *Connector) Connect(ctx context.Context) error {
	if c.check(ctx) == nil {
		c.connected = true
		return nil
	}

	c.connected = false
	c.metrics.SetConnected(metrics.LayerNetwork, false)
	c.logger.Info("connecting to network", "link", c.link.Name())

	err := c.join.Do(ctx, func() error {
		return c.link.Join(ctx)
	}, func(err error, next time.Duration) {
		c.logger.Debug("network join failed, retrying", "link", c.link.Name(), "error", err, "retry_in", next)
	})
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("network: %w", ctx.Err())
	case err != nil:
		c.logger.Warn("network join failed", "link", c.link.Name(), "attempts", joinAttempts, "error", err)
	}

	attempts := 0
	err = c.retry.Do(ctx, func() error {
		attempts++
		return c.check(ctx)
	}, func(error, time.Duration) {
		c.logger.Debug("waiting for network", "link", c.link.Name(), "attempt", attempts)
	})
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}

	c.connected = true
	c.metrics.Reconnect(metrics.LayerNetwork)
	c.metrics.SetConnected(metrics.LayerNetwork, true)
	c.logger.Info("network connected", "link", c.link.Name(), "attempts", attempts)
	return nil
}

// check performs a single link poll.
func (c *Connector) check(ctx context.Context) error {
	up, err := c.link.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLinkDown, err)
	}
	if !up {
		return ErrLinkDown
	}
	return nil
}

// IsConnected reports the link state observed by the last Connect.
func (c *Connector) IsConnected() bool {
	return c.connected
}
