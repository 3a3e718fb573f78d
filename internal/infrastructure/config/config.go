package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic sensor node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Network  NetworkConfig  `yaml:"network"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Publish  PublishConfig  `yaml:"publish"`
	Hardware HardwareConfig `yaml:"hardware"`
	Alert    AlertConfig    `yaml:"alert"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig contains node identity and topic namespace.
type DeviceConfig struct {
	// ClientID overrides the derived MQTT session identifier when set.
	ClientID string `yaml:"client_id"`

	// ClientIDPrefix is prepended to the hardware-derived identifier.
	ClientIDPrefix string `yaml:"client_id_prefix"`

	// TopicPrefix is the namespace for every channel the node uses.
	TopicPrefix string `yaml:"topic_prefix"`
}

// NetworkConfig contains wireless link settings.
type NetworkConfig struct {
	// Interface is the network interface watched for link state (e.g. "wlan0").
	Interface string `yaml:"interface"`

	// SSID and Password are passed to nmcli when Join is "nmcli".
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`

	// Join selects how the link is brought up: "none" (the OS owns it) or "nmcli".
	Join string `yaml:"join"`

	// PollInterval is the wait between link checks while connecting.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// RetryInterval is the fixed wait between connection attempts.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// KeepAlive is the MQTT keepalive period.
	KeepAlive time.Duration `yaml:"keep_alive"`

	// InboxSize bounds the number of inbound messages queued between polls.
	InboxSize int `yaml:"inbox_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PublishConfig contains the sensor publish cadence.
type PublishConfig struct {
	Interval time.Duration `yaml:"interval"`

	// LoopInterval is the idle wait at the end of every loop step.
	LoopInterval time.Duration `yaml:"loop_interval"`
}

// HardwareConfig selects and configures the board backend.
type HardwareConfig struct {
	// Backend is "gpio" for a Linux board or "sim" for the simulated board.
	Backend string `yaml:"backend"`

	// Chip is the GPIO character device (e.g. "gpiochip0").
	Chip string `yaml:"chip"`

	Pins    PinConfig     `yaml:"pins"`
	I2C     I2CConfig     `yaml:"i2c"`
	Display DisplayConfig `yaml:"display"`
}

// PinConfig holds GPIO line offsets.
type PinConfig struct {
	Buzzer   int   `yaml:"buzzer"`
	LEDRed   int   `yaml:"led_red"`
	LEDGreen int   `yaml:"led_green"`
	LEDBlue  int   `yaml:"led_blue"`
	Buttons  []int `yaml:"buttons"`
}

// I2CConfig holds the I²C peripherals.
type I2CConfig struct {
	// LightChannel is the ADS1115 input the light sensor is wired to ("0".."3").
	LightChannel string `yaml:"light_channel"`
}

// DisplayConfig holds the SSD1306 display settings.
type DisplayConfig struct {
	Address int `yaml:"address"`
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
}

// AlertConfig holds the buzzer alert settings.
type AlertConfig struct {
	Duration         time.Duration `yaml:"duration"`
	DefaultFrequency int           `yaml:"default_frequency"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`

	// Timeout bounds a single blocking write, in seconds.
	Timeout int `yaml:"timeout"`

	// BreakerFailures is the number of consecutive write failures that opens the breaker.
	BreakerFailures int `yaml:"breaker_failures"`

	// BreakerTimeout is how long the breaker stays open before a trial write.
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
}

// MetricsConfig contains the Prometheus listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern GRAYLOGIC_NODE_<SECTION>_<KEY>,
// where KEY is the leaf YAML key (mqtt.broker.host is GRAYLOGIC_NODE_MQTT_HOST).
// For example: GRAYLOGIC_NODE_MQTT_HOST, GRAYLOGIC_NODE_NETWORK_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the values the original device shipped with.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ClientIDPrefix: "esp32",
			TopicPrefix:    "IFCE_Iran",
		},
		Network: NetworkConfig{
			Interface:    "wlan0",
			Join:         "none",
			PollInterval: 500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "broker.hivemq.com",
				Port: 1883,
			},
			QoS:           0,
			RetryInterval: 3 * time.Second,
			KeepAlive:     15 * time.Second,
			InboxSize:     64,
		},
		Publish: PublishConfig{
			Interval:     10 * time.Second,
			LoopInterval: 50 * time.Millisecond,
		},
		Hardware: HardwareConfig{
			Backend: "gpio",
			Chip:    "gpiochip0",
			Pins: PinConfig{
				Buzzer:   17,
				LEDRed:   14,
				LEDGreen: 13,
				LEDBlue:  12,
				Buttons:  []int{7, 6, 5, 4, 3, 2},
			},
			I2C: I2CConfig{
				LightChannel: "0",
			},
			Display: DisplayConfig{
				Address: 0x3C,
				Width:   128,
				Height:  64,
			},
		},
		Alert: AlertConfig{
			Duration:         time.Second,
			DefaultFrequency: 400,
		},
		InfluxDB: InfluxDBConfig{
			Timeout:         2,
			BreakerFailures: 3,
			BreakerTimeout:  time.Minute,
		},
		Metrics: MetricsConfig{
			Listen: ":9100",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern GRAYLOGIC_NODE_<SECTION>_<KEY>,
// where KEY is the leaf YAML key (mqtt.broker.host is GRAYLOGIC_NODE_MQTT_HOST).
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("GRAYLOGIC_NODE_DEVICE_CLIENT_ID"); v != "" {
		cfg.Device.ClientID = v
	}

	// Network
	if v := os.Getenv("GRAYLOGIC_NODE_NETWORK_SSID"); v != "" {
		cfg.Network.SSID = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_NETWORK_PASSWORD"); v != "" {
		cfg.Network.Password = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Hardware
	if v := os.Getenv("GRAYLOGIC_NODE_HARDWARE_BACKEND"); v != "" {
		cfg.Hardware.Backend = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_NODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.TopicPrefix == "" {
		errs = append(errs, "device.topic_prefix is required")
	}
	if c.Device.ClientID == "" && c.Device.ClientIDPrefix == "" {
		errs = append(errs, "device.client_id or device.client_id_prefix is required")
	}

	// Network validation
	switch c.Network.Join {
	case "none", "nmcli":
	default:
		errs = append(errs, "network.join must be none or nmcli")
	}
	if c.Network.Join == "nmcli" && c.Network.SSID == "" {
		errs = append(errs, "network.ssid is required when network.join is nmcli")
	}
	if c.Network.PollInterval <= 0 {
		errs = append(errs, "network.poll_interval must be positive")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.RetryInterval <= 0 {
		errs = append(errs, "mqtt.retry_interval must be positive")
	}
	if c.MQTT.InboxSize < 1 {
		errs = append(errs, "mqtt.inbox_size must be at least 1")
	}

	// Publish validation
	if c.Publish.Interval <= 0 {
		errs = append(errs, "publish.interval must be positive")
	}
	if c.Publish.LoopInterval < 0 {
		errs = append(errs, "publish.loop_interval must not be negative")
	}

	// Hardware validation
	switch c.Hardware.Backend {
	case "gpio":
		if c.Hardware.Chip == "" {
			errs = append(errs, "hardware.chip is required for the gpio backend")
		}
		if len(c.Hardware.Pins.Buttons) != ButtonCount {
			errs = append(errs, fmt.Sprintf("hardware.pins.buttons must list %d pins", ButtonCount))
		}
	case "sim":
	default:
		errs = append(errs, "hardware.backend must be gpio or sim")
	}
	if c.Hardware.Display.Width <= 0 || c.Hardware.Display.Height <= 0 {
		errs = append(errs, "hardware.display width and height must be positive")
	}

	// Alert validation
	if c.Alert.Duration <= 0 {
		errs = append(errs, "alert.duration must be positive")
	}
	if c.Alert.DefaultFrequency <= 0 {
		errs = append(errs, "alert.default_frequency must be positive")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Metrics validation
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ButtonCount is the number of button inputs the node samples.
const ButtonCount = 6

// BrokerAddress returns host:port of the configured broker.
func (c MQTTConfig) BrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.Broker.Host, c.Broker.Port)
}
