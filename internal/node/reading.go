package node

import (
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

// Reading is one publish cycle's worth of state.
type Reading struct {
	Temperature float64
	Humidity    float64
	Light       int
	Buttons     sensor.ButtonMask
	LEDs        actuator.LEDMask
	At          time.Time
}

// newReading combines a sensor sample with the LED state.
func newReading(s sensor.Sample, leds actuator.LEDMask, at time.Time) Reading {
	return Reading{
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Light:       s.Light,
		Buttons:     s.Buttons,
		LEDs:        leds,
		At:          at,
	}
}

// payload is one topic and its text.
type payload struct {
	topic string
	text  string
}

// formatMeasurement renders a value the way the device always has: %4.2f.
func formatMeasurement(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// payloads returns the retained messages for r, in publish order.
func (r Reading) payloads(t mqtt.Topics) []payload {
	return []payload{
		{t.Temperature(), formatMeasurement(r.Temperature)},
		{t.Humidity(), formatMeasurement(r.Humidity)},
		{t.Light(), strconv.Itoa(r.Light)},
		{t.Buttons(), r.Buttons.String()},
		{t.LEDs(), r.LEDs.String()},
	}
}

// point converts r for the telemetry mirror.
func (r Reading) point(clientID string) influxdb.EnvironmentPoint {
	return influxdb.EnvironmentPoint{
		ClientID:    clientID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Light:       r.Light,
		Buttons:     r.Buttons.String(),
		LEDs:        r.LEDs.String(),
		Time:        r.At,
	}
}
