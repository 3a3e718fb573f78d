package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeSleepAdvancesTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	c.Sleep(3 * time.Second)
	c.Advance(time.Second)

	assert.Equal(t, start.Add(4*time.Second), c.Now())
	assert.Equal(t, []time.Duration{3 * time.Second}, c.Sleeps())
}

func TestFakeTimerFiresImmediately(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	timer := c.NewTimer()
	timer.Start(500 * time.Millisecond)

	select {
	case fired := <-timer.C():
		assert.Equal(t, start.Add(500*time.Millisecond), fired)
	default:
		require.Fail(t, "fake timer did not fire")
	}
	timer.Stop()
}

func TestSystemClockSleep(t *testing.T) {
	c := System()
	before := c.Now()
	c.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, c.Now().Sub(before), 5*time.Millisecond)
}
