package mqtt

// DefaultTopicPrefix is the namespace the node's channels live under.
const DefaultTopicPrefix = "IFCE_Iran"

// Channel names appended to the prefix.
const (
	channelTemperature = "temperatura"
	channelHumidity    = "umidade"
	channelLight       = "ldr"
	channelButtons     = "botoes"
	channelLEDs        = "leds"
	channelCommand     = "cmd"
	channelStatus      = "status"
	channelMessage     = "msg"
)

// Topics builds the node's topic names from a prefix.
//
//	topics := mqtt.Topics{Prefix: "IFCE_Iran"}
//	topics.Temperature() // "IFCE_Iran/temperatura"
type Topics struct {
	Prefix string
}

func (t Topics) join(channel string) string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + channel
}

// Temperature is the outbound temperature channel.
func (t Topics) Temperature() string { return t.join(channelTemperature) }

// Humidity is the outbound relative humidity channel.
func (t Topics) Humidity() string { return t.join(channelHumidity) }

// Light is the outbound light level channel.
func (t Topics) Light() string { return t.join(channelLight) }

// Buttons is the outbound button state channel.
func (t Topics) Buttons() string { return t.join(channelButtons) }

// LEDs is the outbound LED state channel.
func (t Topics) LEDs() string { return t.join(channelLEDs) }

// Command is the inbound command channel.
func (t Topics) Command() string { return t.join(channelCommand) }

// Status carries the retained online/offline presence.
func (t Topics) Status() string { return t.join(channelStatus) }

// Message is the inbound display text channel.
func (t Topics) Message() string { return t.join(channelMessage) }
