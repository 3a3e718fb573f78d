// Package sensor samples the node's inputs: temperature and humidity, the
// light level and six push buttons.
//
// Hardware is reached through small interfaces so the same Reader serves the
// GPIO/I²C board, the simulated board and test fakes.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// ButtonCount is the number of buttons sampled.
const ButtonCount = config.ButtonCount

// ErrReadFailed is returned when a sensor returns no usable value.
var ErrReadFailed = errors.New("sensor: read failed")

// Climate reports temperature (°C) and relative humidity (%).
// A failed conversion may be reported as NaN instead of an error.
type Climate interface {
	ReadClimate() (temperature, humidity float64, err error)
}

// LightSensor reports the raw analog light value.
type LightSensor interface {
	ReadLight() (int, error)
}

// ButtonBank reports the raw electrical level of each button input,
// button 1 first. Inputs are pulled up, so true means released.
type ButtonBank interface {
	Levels() ([]bool, error)
}

// Environment is one temperature and humidity sample.
type Environment struct {
	Temperature float64
	Humidity    float64
}

// ButtonMask has bit i set when button i+1 is pressed.
type ButtonMask uint8

// Pressed reports whether button n (1-based) is pressed.
func (m ButtonMask) Pressed(n int) bool {
	if n < 1 || n > ButtonCount {
		return false
	}
	return m&(1<<(n-1)) != 0
}

// String renders the mask as six '0'/'1' characters, button 1 first.
func (m ButtonMask) String() string {
	var b strings.Builder
	b.Grow(ButtonCount)
	for i := 1; i <= ButtonCount; i++ {
		if m.Pressed(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Sample is one reading of every input.
type Sample struct {
	Environment
	Light   int
	Buttons ButtonMask
}

// Reader samples the node's inputs.
type Reader struct {
	climate Climate
	light   LightSensor
	buttons ButtonBank
}

// NewReader returns a Reader over the given inputs.
func NewReader(climate Climate, light LightSensor, buttons ButtonBank) *Reader {
	return &Reader{
		climate: climate,
		light:   light,
		buttons: buttons,
	}
}

// ReadEnvironment samples temperature and humidity.
//
// Returns ErrReadFailed (wrapped) if the sensor errors or either value is NaN.
func (r *Reader) ReadEnvironment() (Environment, error) {
	t, h, err := r.climate.ReadClimate()
	if err != nil {
		return Environment{}, fmt.Errorf("%w: climate: %w", ErrReadFailed, err)
	}
	if math.IsNaN(t) || math.IsNaN(h) {
		return Environment{}, fmt.Errorf("%w: climate returned NaN", ErrReadFailed)
	}
	return Environment{Temperature: t, Humidity: h}, nil
}

// ReadLight samples the raw light level.
func (r *Reader) ReadLight() (int, error) {
	v, err := r.light.ReadLight()
	if err != nil {
		return 0, fmt.Errorf("%w: light: %w", ErrReadFailed, err)
	}
	return v, nil
}

// ReadButtons samples the six active-low buttons into a mask.
func (r *Reader) ReadButtons() (ButtonMask, error) {
	levels, err := r.buttons.Levels()
	if err != nil {
		return 0, fmt.Errorf("%w: buttons: %w", ErrReadFailed, err)
	}
	if len(levels) != ButtonCount {
		return 0, fmt.Errorf("%w: buttons: got %d levels, want %d", ErrReadFailed, len(levels), ButtonCount)
	}

	var m ButtonMask
	for i, high := range levels {
		if !high {
			m |= 1 << i
		}
	}
	return m, nil
}

// Sample reads every input. Any failure aborts the whole sample.
func (r *Reader) Sample() (Sample, error) {
	env, err := r.ReadEnvironment()
	if err != nil {
		return Sample{}, err
	}
	light, err := r.ReadLight()
	if err != nil {
		return Sample{}, err
	}
	buttons, err := r.ReadButtons()
	if err != nil {
		return Sample{}, err
	}
	return Sample{Environment: env, Light: light, Buttons: buttons}, nil
}
