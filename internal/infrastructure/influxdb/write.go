package influxdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"
)

// measurementEnvironment is the measurement every reading is written to.
const measurementEnvironment = "environment"

// EnvironmentPoint is one published reading as mirrored into InfluxDB.
type EnvironmentPoint struct {
	ClientID    string
	Temperature float64
	Humidity    float64
	Light       int
	Buttons     string
	LEDs        string
	Time        time.Time
}

// toPoint builds the line-protocol point for p.
func (p EnvironmentPoint) toPoint() *write.Point {
	return write.NewPoint(
		measurementEnvironment,
		map[string]string{
			"client_id": p.ClientID,
		},
		map[string]interface{}{
			"temperature": p.Temperature,
			"humidity":    p.Humidity,
			"light":       p.Light,
			"buttons":     p.Buttons,
			"leds":        p.LEDs,
		},
		p.Time,
	)
}

// WriteEnvironment writes one reading through the circuit breaker.
//
// Returns:
//   - nil on success
//   - ErrBreakerOpen if recent writes kept failing
//   - ErrWriteFailed wrapping the server error otherwise
func (c *Client) WriteEnvironment(ctx context.Context, p EnvironmentPoint) error {
	point := p.toPoint()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		writeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return nil, c.writer.WritePoint(writeCtx, point)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrBreakerOpen
	default:
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
}
