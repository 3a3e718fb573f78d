package hardware

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// face is the fixed text face used on the display.
var face = basicfont.Face7x13

// RenderText draws text onto a blank width×height frame from the top-left
// corner. Each "\n" starts a new line; text running past the right or
// bottom edge is clipped.
func RenderText(text string, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 0xff}),
		Face: face,
	}

	ascent := face.Ascent
	lineHeight := face.Height
	for i, line := range strings.Split(text, "\n") {
		baseline := ascent + i*lineHeight
		if baseline-ascent >= height {
			break
		}
		d.Dot = fixed.P(0, baseline)
		d.DrawString(line)
	}

	return img
}

// Screen renders text frames onto an SSD1306-style display.
type Screen struct {
	dev           oled
	width, height int

	mu   sync.Mutex
	text string
}

// NewScreen wraps dev, a display of width×height pixels.
func NewScreen(dev oled, width, height int) *Screen {
	return &Screen{dev: dev, width: width, height: height}
}

// ShowText clears the display and draws text.
func (s *Screen) ShowText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dev.ShowImage(RenderText(text, s.width, s.height)); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := s.dev.Display(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	s.text = text
	return nil
}

// Clear blanks the display.
func (s *Screen) Clear() error {
	return s.ShowText("")
}

// Text returns the text currently shown.
func (s *Screen) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}
