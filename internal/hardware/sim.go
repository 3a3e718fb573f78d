package hardware

import (
	"image"
	"sync"

	"github.com/nerrad567/gray-logic-node/internal/actuator"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// Sim is an in-memory board. Inputs are set by the caller; outputs are
// recorded so they can be inspected.
//
// Thread Safety: all methods are safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	temperature float64
	humidity    float64
	light       int
	pressed     [config.ButtonCount]bool

	leds      [actuator.ChannelCount]bool
	toneFreq  int
	toneCount int

	screen *Screen
	frame  image.Image
}

// NewSim returns a simulated board with a mild indoor climate and every
// button released.
func NewSim(display config.DisplayConfig) *Sim {
	s := &Sim{
		temperature: 22.5,
		humidity:    45,
		light:       1024,
	}
	s.screen = NewScreen(simPanel{s}, display.Width, display.Height)
	return s
}

// SetClimate sets the next temperature and humidity reading.
func (s *Sim) SetClimate(temperature, humidity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temperature, s.humidity = temperature, humidity
}

// SetLight sets the next light reading.
func (s *Sim) SetLight(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.light = v
}

// Press sets whether button n (1-based) is held down.
func (s *Sim) Press(n int, down bool) {
	if n < 1 || n > config.ButtonCount {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed[n-1] = down
}

// ReadClimate implements sensor.Climate.
func (s *Sim) ReadClimate() (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature, s.humidity, nil
}

// ReadLight implements sensor.LightSensor.
func (s *Sim) ReadLight() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.light, nil
}

// Levels implements sensor.ButtonBank. Buttons are pulled up, so a held
// button reads low.
func (s *Sim) Levels() ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	levels := make([]bool, config.ButtonCount)
	for i, down := range s.pressed {
		levels[i] = !down
	}
	return levels, nil
}

// Set implements actuator.Indicators.
func (s *Sim) Set(ch actuator.Channel, on bool) error {
	if !ch.Valid() {
		return actuator.ErrInvalidChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leds[ch] = on
	return nil
}

// LED reports whether ch is lit.
func (s *Sim) LED(ch actuator.Channel) bool {
	if !ch.Valid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leds[ch]
}

// Start implements actuator.ToneGenerator.
func (s *Sim) Start(frequency int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toneFreq = frequency
	s.toneCount++
	return nil
}

// Stop implements actuator.ToneGenerator.
func (s *Sim) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toneFreq = 0
	return nil
}

// Tone returns the sounding frequency (0 when silent) and how many tones
// have been started.
func (s *Sim) Tone() (frequency, started int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toneFreq, s.toneCount
}

// ShowText implements actuator.Display.
func (s *Sim) ShowText(text string) error {
	return s.screen.ShowText(text)
}

// Clear implements actuator.Display.
func (s *Sim) Clear() error {
	return s.screen.Clear()
}

// Text returns the text on the simulated display.
func (s *Sim) Text() string {
	return s.screen.Text()
}

// Frame returns the last rendered display frame.
func (s *Sim) Frame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// simPanel stores rendered frames on the Sim.
type simPanel struct{ s *Sim }

func (p simPanel) ShowImage(img image.Image) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.frame = img
	return nil
}

func (p simPanel) Display() error { return nil }
