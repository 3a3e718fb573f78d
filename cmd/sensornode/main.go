// Gray Logic Node - MQTT sensor node
//
// This is the main entry point for the sensor node. The node samples a
// temperature/humidity sensor, a light sensor and six buttons, publishes
// them over MQTT on a fixed cadence, and drives a buzzer, an RGB LED and a
// small display in response to commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
	"github.com/nerrad567/gray-logic-node/internal/hardware"
	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/network"
	"github.com/nerrad567/gray-logic-node/internal/node"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/node.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "backend", cfg.Hardware.Backend)

	// Open hardware. A display that fails to initialise stops the node here.
	board, err := hardware.Open(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("opening hardware: %w", err)
	}
	defer func() {
		if closeErr := board.Close(); closeErr != nil {
			log.Error("error closing hardware", "error", closeErr)
		}
	}()

	clientID, source, err := identity.NewResolver(cfg.Network.Interface).
		Resolve(cfg.Device.ClientID, cfg.Device.ClientIDPrefix)
	if err != nil {
		return fmt.Errorf("resolving client id: %w", err)
	}
	log.Info("client id resolved", "client_id", clientID, "source", source)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if serveErr := m.Serve(ctx, cfg.Metrics.Listen); serveErr != nil {
				log.Error("metrics listener stopped", "error", serveErr)
			}
		}()
		log.Info("metrics listening", "address", cfg.Metrics.Listen)
	}

	mqttClient := mqtt.New(cfg.MQTT, clientID, mqtt.Topics{Prefix: cfg.Device.TopicPrefix},
		mqtt.WithLogger(log.With("component", "mqtt")),
		mqtt.WithMetrics(m),
	)
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	m.AddHealthCheck("mqtt", mqttClient.HealthCheck)

	connector := network.NewConnector(newLink(cfg), cfg.Network.PollInterval,
		network.WithLogger(log.With("component", "network")),
		network.WithMetrics(m),
	)

	sensors := sensor.NewReader(board.Climate, board.Light, board.Buttons)
	actuators := actuator.NewController(board.LEDs, board.Tone, board.Display, cfg.Alert.Duration,
		actuator.WithLogger(log.With("component", "actuator")),
	)

	opts := []node.Option{
		node.WithLogger(log.With("component", "node")),
		node.WithMetrics(m),
		node.WithLoopInterval(cfg.Publish.LoopInterval),
		node.WithAlertFrequency(cfg.Alert.DefaultFrequency),
		node.WithQoS(byte(cfg.MQTT.QoS)), //nolint:gosec // validated 0..2
	}

	mirror, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case err == nil:
		defer func() {
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		opts = append(opts, node.WithMirror(mirror))
		m.AddHealthCheck("influxdb", mirror.HealthCheck)
		m.TrackBreaker("influxdb-mirror", mirror.BreakerState)
		log.Info("telemetry mirror connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	case errors.Is(err, influxdb.ErrDisabled):
		log.Debug("telemetry mirror disabled")
	default:
		// The mirror is secondary; the node runs without it.
		log.Warn("telemetry mirror unavailable", "error", err)
	}

	n := node.New(connector, mqttClient, sensors, actuators, cfg.Publish.Interval, opts...)
	if err := n.Run(ctx); err != nil {
		return fmt.Errorf("running node: %w", err)
	}

	log.Info("Gray Logic Node stopped")
	return nil
}

// newLink picks the network link for the configured backend.
func newLink(cfg *config.Config) network.Link {
	if cfg.Hardware.Backend == hardware.BackendSim {
		return network.AlwaysUp{}
	}
	return network.NewInterfaceLink(cfg.Network.Interface, cfg.Network.Join, cfg.Network.SSID, cfg.Network.Password)
}

// getConfigPath returns the configuration file path.
// Checks GRAYLOGIC_NODE_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_NODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
