// Package actuator drives the node's outputs: a buzzer, three LED channels
// and a small text display.
package actuator

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
)

// Channel is one LED colour.
type Channel int

// LED channels, in the order they appear in the published mask.
const (
	Red Channel = iota
	Green
	Blue
)

// ChannelCount is the number of LED channels.
const ChannelCount = 3

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Valid reports whether c names a real channel.
func (c Channel) Valid() bool {
	return c >= Red && c <= Blue
}

// LEDMask has bit c set when channel c is on.
type LEDMask uint8

// On reports whether ch is on.
func (m LEDMask) On(ch Channel) bool {
	return ch.Valid() && m&(1<<ch) != 0
}

func (m LEDMask) with(ch Channel, on bool) LEDMask {
	if on {
		return m | 1<<ch
	}
	return m &^ (1 << ch)
}

// String renders the mask as three '0'/'1' characters: red, green, blue.
func (m LEDMask) String() string {
	out := []byte("000")
	for ch := Red; ch <= Blue; ch++ {
		if m.On(ch) {
			out[ch] = '1'
		}
	}
	return string(out)
}

// ErrInvalidChannel is returned for a channel outside red, green and blue.
var ErrInvalidChannel = errors.New("actuator: invalid channel")

// Indicators switches LED outputs.
type Indicators interface {
	Set(ch Channel, on bool) error
}

// ToneGenerator drives the buzzer.
type ToneGenerator interface {
	Start(frequency int) error
	Stop() error
}

// Display shows a page of text.
type Display interface {
	Clear() error
	ShowText(text string) error
}

// Controller owns every output. It is not safe for concurrent use; the node
// loop is its only caller.
type Controller struct {
	leds    Indicators
	tone    ToneGenerator
	display Display
	clock   clock.Clock
	logger  *logging.Logger

	alertDuration time.Duration
	mask          LEDMask
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock sets the clock timing the alert.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// NewController returns a Controller with every LED assumed off.
func NewController(leds Indicators, tone ToneGenerator, display Display, alertDuration time.Duration, opts ...Option) *Controller {
	c := &Controller{
		leds:          leds,
		tone:          tone,
		display:       display,
		clock:         clock.System(),
		logger:        logging.Discard(),
		alertDuration: alertDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SoundAlert holds red on and sounds the buzzer at frequency for the alert
// duration, then silences the buzzer and switches red off. It blocks for the
// whole alert.
func (c *Controller) SoundAlert(frequency int) error {
	if err := c.SetChannel(Red, true); err != nil {
		return err
	}

	var errs []error
	if err := c.tone.Start(frequency); err != nil {
		errs = append(errs, fmt.Errorf("tone start: %w", err))
	} else {
		c.clock.Sleep(c.alertDuration)
		if err := c.tone.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("tone stop: %w", err))
		}
	}

	if err := c.SetChannel(Red, false); err != nil {
		errs = append(errs, err)
	}

	c.logger.Debug("alert sounded", "frequency", frequency, "duration", c.alertDuration)
	return errors.Join(errs...)
}

// SetChannel switches one LED channel.
func (c *Controller) SetChannel(ch Channel, on bool) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, int(ch))
	}
	if err := c.leds.Set(ch, on); err != nil {
		return fmt.Errorf("led %s: %w", ch, err)
	}
	c.mask = c.mask.with(ch, on)
	return nil
}

// ShowText clears the display and draws msg from the top-left corner.
func (c *Controller) ShowText(msg string) error {
	if err := c.display.ShowText(msg); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	return nil
}

// ClearDisplay blanks the display.
func (c *Controller) ClearDisplay() error {
	if err := c.display.Clear(); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	return nil
}

// LEDs returns the current indicator mask.
func (c *Controller) LEDs() LEDMask {
	return c.mask
}
