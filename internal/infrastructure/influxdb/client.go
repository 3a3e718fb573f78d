package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	defaultWriteTimeout   = 2 * time.Second
)

// pointWriter is the blocking write surface of api.WriteAPIBlocking.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Client mirrors readings into InfluxDB.
//
// Writes are synchronous and bounded by a timeout so the node loop never
// stalls for long on an unreachable server. After a run of consecutive
// failures a circuit breaker rejects writes outright until its timeout
// elapses, then lets a single trial write through.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  influxdb2.Client
	writer  pointWriter
	breaker *gobreaker.CircuitBreaker
	cfg     config.InfluxDBConfig
	timeout time.Duration
}

// Connect establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the client with token authentication
//  2. Verifies connectivity with a ping
//  3. Configures the blocking write API behind a circuit breaker
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrDisabled if the mirror is off, ErrConnectionFailed otherwise
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := newClient(cfg, client.WriteAPIBlocking(cfg.Org, cfg.Bucket))
	c.client = client
	return c, nil
}

// newClient wires a writer and breaker from config.
func newClient(cfg config.InfluxDBConfig, w pointWriter) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	return &Client{
		writer:  w,
		breaker: newBreaker(cfg),
		cfg:     cfg,
		timeout: timeout,
	}
}

func newBreaker(cfg config.InfluxDBConfig) *gobreaker.CircuitBreaker {
	fails := cfg.BreakerFailures
	if fails < 1 {
		fails = 1
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influxdb-mirror",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails) //nolint:gosec // clamped to >= 1 above
		},
	})
}

// Close shuts down the underlying HTTP client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.client == nil {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
