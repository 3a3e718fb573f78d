package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-node/internal/retry"
)

// Presence payloads published on the status topic.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// session is the subset of pahomqtt.Client the node relies on.
type session interface {
	Connect() pahomqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
}

// Message is an inbound publish waiting to be dispatched by the loop.
type Message struct {
	Topic   string
	Payload []byte
}

// Client wraps paho.mqtt.golang for the sensor node.
//
// Unlike a typical long-running service client, it never reconnects on its
// own: the main loop calls EnsureConnected every step, which retries at a
// fixed interval and restores subscriptions and presence before returning.
// Inbound messages are queued by paho's goroutines and dispatched on the
// caller's goroutine by Poll.
//
// Thread Safety:
//   - Poll, EnsureConnected, Publish and Subscribe are meant for the loop goroutine.
//   - IsConnected and the paho callbacks are safe from any goroutine.
type Client struct {
	session  session
	options  *pahomqtt.ClientOptions
	cfg      config.MQTTConfig
	topics   Topics
	clientID string

	// subscriptions is kept in registration order so restores are deterministic.
	subscriptions []subscription
	subMu         sync.Mutex

	inbox chan Message

	connected bool
	connMu    sync.RWMutex

	retry   *retry.Policy
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic string
	qos   byte
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink for reconnect and connection gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock sets the clock pacing connection retries.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.retry = retry.Fixed(c.cfg.RetryInterval, retry.WithClock(clk))
	}
}

// withSession replaces the paho client, used by tests.
func withSession(s session) Option {
	return func(c *Client) {
		c.session = s
	}
}

// New builds a client without connecting.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures the Last Will (retained "offline") on the status topic
//  3. Creates the bounded inbox for inbound messages
//
// Call EnsureConnected to establish the session.
func New(cfg config.MQTTConfig, clientID string, topics Topics, opts ...Option) *Client {
	c := &Client{
		cfg:      cfg,
		topics:   topics,
		clientID: clientID,
		inbox:    make(chan Message, inboxSize(cfg)),
		retry:    retry.Fixed(cfg.RetryInterval),
		logger:   logging.Discard(),
	}

	c.options = buildClientOptions(cfg, clientID)
	configureLWT(c.options, topics, byte(cfg.QoS))

	c.options.SetDefaultPublishHandler(c.enqueue)
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	for _, opt := range opts {
		opt(c)
	}

	if c.session == nil {
		c.session = pahomqtt.NewClient(c.options)
	}

	return c
}

func inboxSize(cfg config.MQTTConfig) int {
	if cfg.InboxSize < 1 {
		return 1
	}
	return cfg.InboxSize
}

// ClientID returns the session identifier used with the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// Topics returns the topic set the client was built with.
func (c *Client) Topics() Topics {
	return c.topics
}

// EnsureConnected blocks until the broker session is up.
//
// Each attempt connects, subscribes every registered topic and publishes a
// retained "online" presence message. A failure at any step drops the
// session and the attempt is retried after the configured interval, so on
// return the node is both subscribed and announced.
//
// Returns:
//   - nil once connected (immediately if already connected)
//   - ctx.Err() if the context is cancelled while retrying
func (c *Client) EnsureConnected(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	c.metrics.SetConnected(metrics.LayerMessaging, false)
	c.logger.Info("MQTT connecting",
		"broker", c.cfg.BrokerAddress(),
		"client_id", c.clientID,
	)

	err := c.retry.Do(ctx, c.connectOnce, func(err error, next time.Duration) {
		c.logger.Warn("MQTT connect failed, retrying",
			"error", err,
			"retry_in", next,
		)
	})
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	c.metrics.Reconnect(metrics.LayerMessaging)
	c.metrics.SetConnected(metrics.LayerMessaging, true)
	c.logger.Info("MQTT connected",
		"client_id", c.clientID,
		"subscriptions", c.SubscriptionCount(),
	)
	return nil
}

// connectOnce performs a single connect, subscribe and announce attempt.
func (c *Client) connectOnce() error {
	token := c.session.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.setConnected(true)

	if err := c.restoreSubscriptions(); err != nil {
		c.drop()
		return err
	}

	if err := c.Publish(c.topics.Status(), []byte(PresenceOnline), byte(c.cfg.QoS), true); err != nil {
		c.drop()
		return err
	}

	return nil
}

// drop abandons a half-established session so the next attempt starts clean.
func (c *Client) drop() {
	c.setConnected(false)
	c.session.Disconnect(0)
}

// handleDisconnect is called by paho when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	c.metrics.SetConnected(metrics.LayerMessaging, false)
	c.logger.Warn("MQTT connection lost", "error", err)
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.session.IsConnected()
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes a retained "offline" (the broker only sends the LWT on unclean drops)
//  2. Waits for pending publish operations
//  3. Disconnects from broker
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.session.Publish(c.topics.Status(), byte(c.cfg.QoS), true, PresenceOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.session.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	c.metrics.SetConnected(metrics.LayerMessaging, false)

	return nil
}

// HealthCheck reports whether the session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}
