// Package hardware opens the node's physical (or simulated) peripherals.
//
// Backend "gpio" targets a Raspberry Pi class board: buttons, LEDs and the
// buzzer on the GPIO character device through go-gpiocdev, and the SHT2x,
// ADS1115 and SSD1306 on the I²C bus through gobot. Backend "sim" keeps
// everything in memory.
package hardware

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

// Backend names.
const (
	BackendGPIO = "gpio"
	BackendSim  = "sim"
)

var (
	// ErrUnknownBackend is returned for a backend other than gpio or sim.
	ErrUnknownBackend = errors.New("hardware: unknown backend")

	// ErrDisplayInit is returned when the display does not start.
	ErrDisplayInit = errors.New("hardware: display initialisation failed")
)

// Board groups every peripheral the node uses.
type Board struct {
	Climate sensor.Climate
	Light   sensor.LightSensor
	Buttons sensor.ButtonBank

	LEDs    actuator.Indicators
	Tone    actuator.ToneGenerator
	Display actuator.Display

	// Sim is set for the simulated backend.
	Sim *Sim

	closers []func() error
}

// Open opens the configured backend.
func Open(cfg config.HardwareConfig) (*Board, error) {
	switch cfg.Backend {
	case BackendSim:
		return NewSimBoard(cfg.Display), nil
	case BackendGPIO:
		return openLinux(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// NewSimBoard returns a Board backed by a fresh Sim.
func NewSimBoard(display config.DisplayConfig) *Board {
	sim := NewSim(display)
	return &Board{
		Climate: sim,
		Light:   sim,
		Buttons: sim,
		LEDs:    sim,
		Tone:    sim,
		Display: sim,
		Sim:     sim,
	}
}

func openLinux(cfg config.HardwareConfig) (*Board, error) {
	gpio, err := openGPIO(cfg)
	if err != nil {
		return nil, fmt.Errorf("hardware: %w", err)
	}

	bus, err := openI2C(cfg)
	if err != nil {
		_ = gpio.Close()
		return nil, fmt.Errorf("hardware: %w", err)
	}

	return &Board{
		Climate: bus,
		Light:   bus,
		Buttons: gpio,
		LEDs:    gpio,
		Tone:    gpio,
		Display: bus.display,
		closers: []func() error{bus.Close, gpio.Close},
	}, nil
}

// Close releases every peripheral.
func (b *Board) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
