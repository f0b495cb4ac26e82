package sim

import (
	"fmt"
	"math"
	"time"
)

// Playback window. EndSec is the last second of the window.
const (
	StartHour = 9
	EndHour   = 18
	StartSec  = StartHour * 3600
	EndSec    = EndHour*3600 - 1
)

// Change describes one move of the simulation clock.
type Change struct {
	From        float64
	To          float64
	HourChanged bool
}

// Clock is the playback state machine. It starts paused at StartSec.
type Clock struct {
	now     float64
	speed   float64
	playing bool
}

func NewClock(speed float64) *Clock {
	if speed <= 0 {
		speed = 1
	}
	return &Clock{now: StartSec, speed: speed}
}

func (c *Clock) Now() float64   { return c.now }
func (c *Clock) Hour() int      { return HourOf(c.now) }
func (c *Clock) Playing() bool  { return c.playing }
func (c *Clock) Speed() float64 { return c.speed }
func (c *Clock) AtEnd() bool    { return c.now >= EndSec }

// SetSpeed ignores non-positive and non-finite multipliers.
func (c *Clock) SetSpeed(x float64) {
	if x > 0 && !math.IsInf(x, 1) {
		c.speed = x
	}
}

// SetTime moves the clock to t clamped into the window. Reaching the end of
// the window pauses playback. NaN leaves the clock where it is.
func (c *Clock) SetTime(t float64) Change {
	prev := c.now
	if math.IsNaN(t) {
		return Change{From: prev, To: prev}
	}
	c.now = clamp(t, StartSec, EndSec)
	if c.now >= EndSec {
		c.playing = false
	}
	return Change{From: prev, To: c.now, HourChanged: HourOf(prev) != HourOf(c.now)}
}

// Play starts playback, rewinding to StartSec first if the clock is at the
// end of the window.
func (c *Clock) Play() Change {
	ch := Change{From: c.now, To: c.now}
	if c.playing {
		return ch
	}
	if c.AtEnd() {
		ch = c.SetTime(StartSec)
	}
	c.playing = true
	return ch
}

func (c *Clock) Pause() { c.playing = false }

func (c *Clock) Toggle() Change {
	if c.playing {
		c.Pause()
		return Change{From: c.now, To: c.now}
	}
	return c.Play()
}

// Tick advances a playing clock by wall scaled by the speed multiplier.
func (c *Clock) Tick(wall time.Duration) Change {
	if !c.playing {
		return Change{From: c.now, To: c.now}
	}
	return c.SetTime(c.now + wall.Seconds()*c.speed)
}

func HourOf(t float64) int { return int(math.Floor(t / 3600)) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FormatClock renders seconds since midnight as HH:MM:SS.
func FormatClock(sec float64) string {
	s := int(math.Floor(clamp(sec, 0, 86399)))
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
}

// HourWindow renders an hour as "HH:MM–HH:MM".
func HourWindow(h int) string {
	start := float64(h * 3600)
	return FormatClock(start)[:5] + "–" + FormatClock(start + 3599)[:5]
}
