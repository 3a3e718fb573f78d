// Package command parses the text commands the node accepts on its command
// channel.
//
//	publish_now          publish a reading immediately
//	buzzer[<freq>]       sound the alert, default 400 Hz; trailing units are ignored
//	led_vermelho<0|1>    red LED off/on
//	led_verde<0|1>       green LED off/on
//	led_azul<0|1>        blue LED off/on
//
// Anything else parses to KindUnknown and is ignored by the node.
package command

import (
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
)

// DefaultBuzzerFrequency is used when a buzzer command carries no usable frequency.
const DefaultBuzzerFrequency = 400

// Kind identifies a command.
type Kind int

const (
	KindUnknown Kind = iota
	KindPublishNow
	KindBuzzer
	KindLED
)

func (k Kind) String() string {
	switch k {
	case KindPublishNow:
		return "publish_now"
	case KindBuzzer:
		return "buzzer"
	case KindLED:
		return "led"
	default:
		return "unknown"
	}
}

// Command is a parsed command.
type Command struct {
	Kind Kind

	// Frequency is set for KindBuzzer.
	Frequency int

	// Channel and On are set for KindLED.
	Channel actuator.Channel
	On      bool

	// Raw is the trimmed input.
	Raw string
}

const (
	tokenPublishNow = "publish_now"
	tokenBuzzer     = "buzzer"
)

var ledPrefixes = []struct {
	prefix  string
	channel actuator.Channel
}{
	{"led_vermelho", actuator.Red},
	{"led_verde", actuator.Green},
	{"led_azul", actuator.Blue},
}

// Parser parses commands with a configurable buzzer default.
type Parser struct {
	// DefaultFrequency replaces a missing or unusable buzzer frequency.
	// Zero means DefaultBuzzerFrequency.
	DefaultFrequency int
}

// Parse interprets one command payload with the package defaults.
func Parse(payload string) Command {
	return Parser{}.Parse(payload)
}

// Parse interprets one command payload. Surrounding whitespace is ignored
// and tokens are case-sensitive.
func (p Parser) Parse(payload string) Command {
	raw := strings.TrimSpace(payload)
	cmd := Command{Kind: KindUnknown, Raw: raw}

	switch {
	case raw == tokenPublishNow:
		cmd.Kind = KindPublishNow

	case strings.HasPrefix(raw, tokenBuzzer):
		cmd.Kind = KindBuzzer
		cmd.Frequency = parseFrequency(raw[len(tokenBuzzer):], p.defaultFrequency())

	default:
		for _, led := range ledPrefixes {
			if !strings.HasPrefix(raw, led.prefix) {
				continue
			}
			switch raw[len(led.prefix):] {
			case "1":
				cmd.Kind, cmd.Channel, cmd.On = KindLED, led.channel, true
			case "0":
				cmd.Kind, cmd.Channel, cmd.On = KindLED, led.channel, false
			}
			return cmd
		}
	}

	return cmd
}

func (p Parser) defaultFrequency() int {
	if p.DefaultFrequency > 0 {
		return p.DefaultFrequency
	}
	return DefaultBuzzerFrequency
}

// parseFrequency reads the run of digits after the buzzer token, allowing a
// separator, and ignores whatever follows it ("buzzer 250Hz" is 250 Hz).
// Missing, overflowing or zero values give def.
func parseFrequency(rest string, def int) int {
	rest = strings.TrimLeft(rest, " :=")
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(rest)
	}
	if end == 0 {
		return def
	}
	freq, err := strconv.Atoi(rest[:end])
	if err != nil || freq <= 0 {
		return def
	}
	return freq
}
