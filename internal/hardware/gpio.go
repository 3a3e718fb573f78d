package hardware

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// consumer labels every requested line in the kernel's line info.
const consumer = "graylogic-node"

// gpioBank holds the node's GPIO lines on one chip.
type gpioBank struct {
	chip    *gpiod.Chip
	buttons *gpiod.Lines
	leds    [actuator.ChannelCount]*gpiod.Line
	buzzer  *squareWave
}

// openGPIO requests the button inputs, LED outputs and buzzer output.
// On error every line already requested is released.
func openGPIO(cfg config.HardwareConfig) (_ *gpioBank, err error) {
	chip, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", cfg.Chip, err)
	}

	g := &gpioBank{chip: chip}
	defer func() {
		if err != nil {
			_ = g.Close()
		}
	}()

	g.buttons, err = chip.RequestLines(cfg.Pins.Buttons, gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request button pins %v: %w", cfg.Pins.Buttons, err)
	}

	pins := [actuator.ChannelCount]int{
		actuator.Red:   cfg.Pins.LEDRed,
		actuator.Green: cfg.Pins.LEDGreen,
		actuator.Blue:  cfg.Pins.LEDBlue,
	}
	for ch, pin := range pins {
		line, lerr := chip.RequestLine(pin, gpiod.AsOutput(0))
		if lerr != nil {
			return nil, fmt.Errorf("request %s led pin %d: %w", actuator.Channel(ch), pin, lerr)
		}
		g.leds[ch] = line
	}

	buzzer, err := chip.RequestLine(cfg.Pins.Buzzer, gpiod.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request buzzer pin %d: %w", cfg.Pins.Buzzer, err)
	}
	g.buzzer = newSquareWave(buzzer)

	return g, nil
}

// Levels returns the raw button levels, button 1 first.
func (g *gpioBank) Levels() ([]bool, error) {
	values := make([]int, len(g.buttons.Offsets()))
	if err := g.buttons.Values(values); err != nil {
		return nil, fmt.Errorf("read buttons: %w", err)
	}
	levels := make([]bool, len(values))
	for i, v := range values {
		levels[i] = v != 0
	}
	return levels, nil
}

// Set drives one LED output.
func (g *gpioBank) Set(ch actuator.Channel, on bool) error {
	if !ch.Valid() {
		return actuator.ErrInvalidChannel
	}
	v := 0
	if on {
		v = 1
	}
	return g.leds[ch].SetValue(v)
}

// Start sounds the buzzer at frequency Hz.
func (g *gpioBank) Start(frequency int) error {
	return g.buzzer.Start(frequency)
}

// Stop silences the buzzer.
func (g *gpioBank) Stop() error {
	return g.buzzer.Stop()
}

// Close releases every line and the chip.
func (g *gpioBank) Close() error {
	var errs []error

	if g.buzzer != nil {
		if err := g.buzzer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buzzer line: %w", err))
		}
	}
	for ch, line := range g.leds {
		if line == nil {
			continue
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s led line: %w", actuator.Channel(ch), err))
		}
	}
	if g.buttons != nil {
		if err := g.buttons.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button lines: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

// outputLine is the part of *gpiod.Line the square wave drives.
type outputLine interface {
	SetValue(value int) error
	Close() error
}

// squareWave toggles an output line at a given frequency on its own goroutine.
type squareWave struct {
	line outputLine

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newSquareWave(line outputLine) *squareWave {
	return &squareWave{line: line}
}

// Start begins toggling at frequency Hz, replacing any running tone.
func (w *squareWave) Start(frequency int) error {
	if frequency <= 0 {
		return fmt.Errorf("invalid tone frequency %d", frequency)
	}
	if err := w.Stop(); err != nil {
		return err
	}

	half := time.Second / time.Duration(2*frequency)
	if half <= 0 {
		half = time.Microsecond
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(half, w.stop, w.done)
	return nil
}

func (w *squareWave) run(half time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(half)
	defer ticker.Stop()

	level := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			level ^= 1
			_ = w.line.SetValue(level)
		}
	}
}

// Stop ends the tone and leaves the line low.
func (w *squareWave) Stop() error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return w.line.SetValue(0)
}

// Close stops the tone and releases the line.
func (w *squareWave) Close() error {
	stopErr := w.Stop()
	return errors.Join(stopErr, w.line.Close())
}
