// Package node runs the sensor node's main loop.
//
// A Node owns every component for the life of the process. Each Step makes
// sure the network and broker session are up, dispatches queued inbound
// messages, and publishes a Reading when the publish interval has elapsed.
// Everything runs on the caller's goroutine; there is no other writer of
// actuator state.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/command"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

// Network keeps the link up.
type Network interface {
	Connect(ctx context.Context) error
	IsConnected() bool
}

// Messenger is the broker session.
type Messenger interface {
	EnsureConnected(ctx context.Context) error
	IsConnected() bool
	Subscribe(topic string, qos byte) error
	Poll(dispatch func(mqtt.Message)) int
	PublishRetained(topic, payload string) error
	Topics() mqtt.Topics
	ClientID() string
}

// Sampler reads every input at once.
type Sampler interface {
	Sample() (sensor.Sample, error)
}

// Actuators drives every output.
type Actuators interface {
	SoundAlert(frequency int) error
	SetChannel(ch actuator.Channel, on bool) error
	ShowText(msg string) error
	ClearDisplay() error
	LEDs() actuator.LEDMask
}

// Mirror receives a copy of each published reading.
type Mirror interface {
	WriteEnvironment(ctx context.Context, p influxdb.EnvironmentPoint) error
}

// Node is the process-wide context of the sensor node.
type Node struct {
	network   Network
	messenger Messenger
	sensors   Sampler
	actuators Actuators
	mirror    Mirror

	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics

	interval     time.Duration
	loopInterval time.Duration
	qos          byte
	parser       command.Parser

	lastPublish time.Time
	started     bool
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(l *logging.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// WithClock sets the clock driving the publish cadence.
func WithClock(c clock.Clock) Option {
	return func(n *Node) { n.clock = c }
}

// WithMirror forwards every published reading to m.
func WithMirror(m Mirror) Option {
	return func(n *Node) { n.mirror = m }
}

// WithLoopInterval sets the idle wait at the end of every step.
func WithLoopInterval(d time.Duration) Option {
	return func(n *Node) { n.loopInterval = d }
}

// WithAlertFrequency sets the buzzer frequency used when a command names none.
func WithAlertFrequency(hz int) Option {
	return func(n *Node) { n.parser.DefaultFrequency = hz }
}

// WithQoS sets the QoS of the inbound subscriptions.
func WithQoS(qos byte) Option {
	return func(n *Node) { n.qos = qos }
}

// New assembles a Node. interval is the automatic publish cadence.
func New(network Network, messenger Messenger, sensors Sampler, actuators Actuators, interval time.Duration, opts ...Option) *Node {
	n := &Node{
		network:   network,
		messenger: messenger,
		sensors:   sensors,
		actuators: actuators,
		interval:  interval,
		clock:     clock.System(),
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start registers the inbound channels, blanks the display and starts the
// publish cadence. The first automatic publish happens one interval later.
func (n *Node) Start() error {
	topics := n.messenger.Topics()
	for _, topic := range []string{topics.Command(), topics.Message()} {
		if err := n.messenger.Subscribe(topic, n.qos); err != nil {
			return fmt.Errorf("registering %s: %w", topic, err)
		}
	}

	if err := n.actuators.ClearDisplay(); err != nil {
		return fmt.Errorf("clearing display: %w", err)
	}

	n.lastPublish = n.clock.Now()
	n.started = true

	n.logger.Info("sensor node started",
		"client_id", n.messenger.ClientID(),
		"topic_prefix", topics.Prefix,
		"interval", n.interval,
	)
	return nil
}

// Run calls Start and then Step until ctx is cancelled.
//
// Returns:
//   - nil when ctx is cancelled
//   - error if Start fails
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(); err != nil {
		return err
	}

	for {
		if err := n.Step(ctx); err != nil {
			if ctx.Err() != nil {
				n.logger.Info("sensor node stopping")
				return nil
			}
			return err
		}
	}
}

// Step performs one loop iteration.
//
// It blocks while the network or broker is unreachable and while an alert
// sounds. The only error it returns is cancellation of ctx.
func (n *Node) Step(ctx context.Context) error {
	if !n.started {
		return errors.New("node: Step called before Start")
	}

	if err := n.network.Connect(ctx); err != nil {
		return err
	}
	if err := n.messenger.EnsureConnected(ctx); err != nil {
		return err
	}

	n.messenger.Poll(func(msg mqtt.Message) {
		n.dispatch(ctx, msg)
	})

	if now := n.clock.Now(); now.Sub(n.lastPublish) >= n.interval {
		n.lastPublish = now
		n.publishReadings(ctx)
	}

	if n.loopInterval > 0 {
		n.clock.Sleep(n.loopInterval)
	}

	return ctx.Err()
}

// dispatch routes one inbound message by exact topic.
func (n *Node) dispatch(ctx context.Context, msg mqtt.Message) {
	topics := n.messenger.Topics()

	switch msg.Topic {
	case topics.Command():
		n.handleCommand(ctx, n.parser.Parse(string(msg.Payload)))
	case topics.Message():
		if err := n.actuators.ShowText(string(msg.Payload)); err != nil {
			n.logger.Warn("display update failed", "error", err)
		}
	default:
		n.logger.Debug("ignoring message", "topic", msg.Topic)
	}
}

// handleCommand applies one parsed command.
func (n *Node) handleCommand(ctx context.Context, cmd command.Command) {
	n.metrics.Command(cmd.Kind.String())

	var err error
	switch cmd.Kind {
	case command.KindPublishNow:
		n.publishReadings(ctx)
	case command.KindBuzzer:
		err = n.actuators.SoundAlert(cmd.Frequency)
	case command.KindLED:
		err = n.actuators.SetChannel(cmd.Channel, cmd.On)
	default:
		n.logger.Debug("ignoring unknown command", "command", cmd.Raw)
		return
	}

	if err != nil {
		n.logger.Warn("command failed", "command", cmd.Raw, "error", err)
		return
	}
	n.logger.Debug("command applied", "command", cmd.Raw)
}

// publishReadings samples every input and publishes the reading. A failed
// sample skips the whole cycle.
func (n *Node) publishReadings(ctx context.Context) {
	sample, err := n.sensors.Sample()
	if err != nil {
		n.metrics.CycleSkipped()
		n.logger.Warn("sensor read failed, skipping publish", "error", err)
		return
	}

	reading := newReading(sample, n.actuators.LEDs(), n.clock.Now())

	failed := 0
	for _, p := range reading.payloads(n.messenger.Topics()) {
		if err := n.messenger.PublishRetained(p.topic, p.text); err != nil {
			failed++
			n.metrics.PublishFailed()
			n.logger.Warn("publish failed", "topic", p.topic, "error", err)
		}
	}
	if failed > 0 {
		n.metrics.CyclePartial()
	} else {
		n.metrics.CycleOK()
	}

	n.logger.Info("published readings",
		"temperature", formatMeasurement(reading.Temperature),
		"humidity", formatMeasurement(reading.Humidity),
		"light", reading.Light,
		"buttons", reading.Buttons.String(),
		"leds", reading.LEDs.String(),
		"failed", failed,
	)

	n.mirrorReading(ctx, reading)
}

func (n *Node) mirrorReading(ctx context.Context, r Reading) {
	if n.mirror == nil {
		return
	}
	err := n.mirror.WriteEnvironment(ctx, r.point(n.messenger.ClientID()))
	switch {
	case err == nil:
	case errors.Is(err, influxdb.ErrBreakerOpen):
		n.metrics.MirrorFailed()
		n.logger.Debug("telemetry mirror paused", "error", err)
	default:
		n.metrics.MirrorFailed()
		n.logger.Warn("telemetry mirror write failed", "error", err)
	}
}
