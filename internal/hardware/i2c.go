package hardware

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// oled is the part of the SSD1306 driver the display uses.
type oled interface {
	ShowImage(img image.Image) error
	Display() error
}

// i2cBus holds the I²C peripherals on the Raspberry Pi bus.
type i2cBus struct {
	adaptor      *raspi.Adaptor
	sht2x        *i2c.SHT2xDriver
	ads1115      *i2c.ADS1x15Driver
	ssd1306      *i2c.SSD1306Driver
	lightChannel string
	display      *Screen
}

// openI2C connects the adaptor and starts each driver. A display that fails
// to start is an error like any other peripheral.
func openI2C(cfg config.HardwareConfig) (_ *i2cBus, err error) {
	adaptor := raspi.NewAdaptor()
	if err := adaptor.Connect(); err != nil {
		return nil, fmt.Errorf("connect i2c adaptor: %w", err)
	}

	b := &i2cBus{adaptor: adaptor, lightChannel: cfg.I2C.LightChannel}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	b.sht2x = i2c.NewSHT2xDriver(adaptor)
	if err = b.sht2x.Start(); err != nil {
		return nil, fmt.Errorf("start sht2x: %w", err)
	}

	b.ads1115 = i2c.NewADS1115Driver(adaptor)
	if err = b.ads1115.Start(); err != nil {
		return nil, fmt.Errorf("start ads1115: %w", err)
	}

	b.ssd1306 = i2c.NewSSD1306Driver(adaptor,
		i2c.WithAddress(cfg.Display.Address),
		i2c.WithSSD1306DisplayWidth(cfg.Display.Width),
		i2c.WithSSD1306DisplayHeight(cfg.Display.Height),
	)
	if err = b.ssd1306.Start(); err != nil {
		b.ssd1306 = nil
		return nil, fmt.Errorf("%w: %w", ErrDisplayInit, err)
	}
	b.display = NewScreen(b.ssd1306, cfg.Display.Width, cfg.Display.Height)

	return b, nil
}

// ReadClimate reads the SHT2x. A failed conversion is reported as NaN so
// the sensor reader treats it the same way as a bad value.
func (b *i2cBus) ReadClimate() (float64, float64, error) {
	t, err := b.sht2x.Temperature()
	if err != nil {
		return math.NaN(), math.NaN(), fmt.Errorf("sht2x temperature: %w", err)
	}
	h, err := b.sht2x.Humidity()
	if err != nil {
		return math.NaN(), math.NaN(), fmt.Errorf("sht2x humidity: %w", err)
	}
	return float64(t), float64(h), nil
}

// ReadLight reads the configured ADS1115 channel.
func (b *i2cBus) ReadLight() (int, error) {
	v, err := b.ads1115.AnalogRead(b.lightChannel)
	if err != nil {
		return 0, fmt.Errorf("ads1115 channel %s: %w", b.lightChannel, err)
	}
	return v, nil
}

// Close halts the drivers and finalizes the adaptor.
func (b *i2cBus) Close() error {
	var errs []error
	if b.sht2x != nil {
		if err := b.sht2x.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt sht2x: %w", err))
		}
	}
	if b.ads1115 != nil {
		if err := b.ads1115.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt ads1115: %w", err))
		}
	}
	if b.ssd1306 != nil {
		if err := b.ssd1306.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt ssd1306: %w", err))
		}
	}
	if err := b.adaptor.Finalize(); err != nil {
		errs = append(errs, fmt.Errorf("finalize adaptor: %w", err))
	}
	return errors.Join(errs...)
}
