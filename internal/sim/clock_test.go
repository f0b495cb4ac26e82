package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowConstants(t *testing.T) {
	assert.Equal(t, 32400, StartSec)
	assert.Equal(t, 64799, EndSec)
}

func TestClockStartsPausedAtWindowStart(t *testing.T) {
	c := NewClock(0)
	assert.False(t, c.Playing())
	assert.Equal(t, float64(StartSec), c.Now())
	assert.Equal(t, 1.0, c.Speed())
	assert.Equal(t, 9, c.Hour())
}

func TestClockTickScalesBySpeed(t *testing.T) {
	c := NewClock(60)

	ch := c.Tick(time.Second)
	assert.Equal(t, ch.From, ch.To, "paused clock does not move")

	c.Play()
	ch = c.Tick(500 * time.Millisecond)
	assert.Equal(t, float64(StartSec+30), ch.To)
	assert.False(t, ch.HourChanged)
	assert.True(t, c.Playing())
}

func TestClockTickPastEndPauses(t *testing.T) {
	c := NewClock(600)
	c.SetTime(EndSec - 10)
	c.Play()

	ch := c.Tick(time.Second)
	assert.Equal(t, float64(EndSec), ch.To)
	assert.Equal(t, float64(EndSec), c.Now())
	assert.False(t, c.Playing())
}

func TestClockPlayAtEndRewinds(t *testing.T) {
	c := NewClock(1)
	c.SetTime(EndSec)
	assert.False(t, c.Playing())

	ch := c.Play()
	assert.Equal(t, float64(EndSec), ch.From)
	assert.Equal(t, float64(StartSec), ch.To)
	assert.True(t, ch.HourChanged)
	assert.Equal(t, float64(StartSec), c.Now())
	assert.True(t, c.Playing())
}

func TestClockSetTimeClamps(t *testing.T) {
	c := NewClock(1)
	assert.Equal(t, float64(StartSec), c.SetTime(0).To)
	assert.Equal(t, float64(EndSec), c.SetTime(90000).To)
	assert.Equal(t, 40000.5, c.SetTime(40000.5).To)
}

func TestClockSetTimeWhilePlaying(t *testing.T) {
	c := NewClock(1)
	c.Play()
	c.SetTime(50000)
	assert.True(t, c.Playing())
	assert.Equal(t, 50000.0, c.Now())
}

func TestClockHourBoundary(t *testing.T) {
	c := NewClock(1)
	c.now = 32399

	ch := c.SetTime(32400)
	assert.True(t, ch.HourChanged)

	ch = c.SetTime(32400 + 1800)
	assert.False(t, ch.HourChanged)

	ch = c.SetTime(36000)
	assert.True(t, ch.HourChanged)
}

func TestClockToggleAndSpeed(t *testing.T) {
	c := NewClock(1)
	c.Toggle()
	assert.True(t, c.Playing())
	c.Toggle()
	assert.False(t, c.Playing())

	c.SetSpeed(-3)
	assert.Equal(t, 1.0, c.Speed())
	c.SetSpeed(120)
	assert.Equal(t, 120.0, c.Speed())
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "09:00:00", FormatClock(StartSec))
	assert.Equal(t, "17:59:59", FormatClock(EndSec))
	assert.Equal(t, "12:34:56", FormatClock(45296.9))
	assert.Equal(t, "09:00–09:59", HourWindow(9))
}

func TestClockIgnoresNonFiniteInput(t *testing.T) {
	c := NewClock(60)
	c.SetTime(36000)

	ch := c.SetTime(math.NaN())
	assert.Equal(t, 36000.0, ch.To)
	assert.False(t, ch.HourChanged)
	assert.Equal(t, 36000.0, c.Now())

	c.SetSpeed(math.NaN())
	c.SetSpeed(math.Inf(1))
	assert.Equal(t, 60.0, c.Speed())

	c.Play()
	c.Tick(time.Second)
	assert.Equal(t, 36060.0, c.Now())
	assert.Equal(t, 10, c.Hour())
}
