package main

import (
	"time"

	"github.com/devbret/trimet-gtfs-visualization/internal/bundle"
	"github.com/devbret/trimet-gtfs-visualization/internal/metrics"
	"github.com/devbret/trimet-gtfs-visualization/internal/publisher"
	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

// engineMetrics feeds engine, HTTP and SSE observations into the Collector.
type engineMetrics struct{ c *metrics.Collector }

func (m engineMetrics) HourRebuilt(_, trips int) {
	m.c.HourRebuilds.Inc()
	m.c.TripsInHour.Set(float64(trips))
}

func (m engineMetrics) FrameBuilt(d time.Duration, s sim.Summary, simTime float64) {
	m.c.FrameDuration.Observe(d.Seconds())
	m.c.ActiveVehicles.Set(float64(s.ActiveCount))
	m.c.SimTime.Set(simTime)
}

func (m engineMetrics) ControlsChanged(speed, trailSeconds float64) {
	m.c.SpeedMultiplier.Set(speed)
	m.c.TrailSeconds.Set(trailSeconds)
}

func (m engineMetrics) ControlRequested(action string) { m.c.Controls.WithLabelValues(action).Inc() }
func (m engineMetrics) SSEFrameSent()                  { m.c.SSEFrames.Inc() }

func observeUnpack(c *metrics.Collector, s bundle.UnpackStats) {
	c.TripsLoaded.Set(float64(s.Trips))
	c.EmptyTrips.Add(float64(s.Empty))
	c.DecodeFailures.Add(float64(len(s.Failures)))
}
