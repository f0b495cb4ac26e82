package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveVehicles prometheus.Gauge
	TripsInHour    prometheus.Gauge
	TripsLoaded    prometheus.Gauge

	DecodeFailures prometheus.Counter
	EmptyTrips     prometheus.Counter
	HourRebuilds   prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	SSEFrames prometheus.Counter
	Controls  *prometheus.CounterVec // action label: play|pause|toggle|seek|speed|trail

	FrameDuration   prometheus.Histogram
	PublishDuration prometheus.Histogram

	SimTime         prometheus.Gauge // seconds since midnight
	SpeedMultiplier prometheus.Gauge
	TrailSeconds    prometheus.Gauge
	PublishInterval prometheus.Gauge // seconds
}

func NewCollector(speedMultiplier float64, publishInterval time.Duration, trailSeconds float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_active_vehicles",
			Help: "Vehicles with a resolved position in the last frame.",
		}),
		TripsInHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_trips_in_hour",
			Help: "Trips indexed for the current simulated hour.",
		}),
		TripsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_trips_loaded",
			Help: "Trip records in the loaded bundle.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_decode_failures_total",
			Help: "Trips whose packed segments could not be decoded.",
		}),
		EmptyTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_empty_trips_total",
			Help: "Trips loaded without packed segments.",
		}),
		HourRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_hour_rebuilds_total",
			Help: "Times the per-hour trip set was rebuilt.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		SSEFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_sse_frames_total",
			Help: "Frames pushed to the server-sent events stream.",
		}),
		Controls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_controls_total",
			Help: "Playback control requests received over HTTP.",
		}, []string{"action"}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playback_frame_duration_seconds",
			Help:    "Duration of frame computations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playback_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SimTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_sim_time_seconds",
			Help: "Simulated time of day in seconds since midnight.",
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_speed_multiplier",
			Help: "Current speed multiplier.",
		}),
		TrailSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_trail_seconds",
			Help: "Current trail window in simulated seconds.",
		}),
		PublishInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_publish_interval_seconds",
			Help: "Publish interval in seconds.",
		}),
	}

	// Register
	reg.MustRegister(
		c.ActiveVehicles, c.TripsInHour, c.TripsLoaded,
		c.DecodeFailures, c.EmptyTrips, c.HourRebuilds,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.SSEFrames, c.Controls, c.FrameDuration, c.PublishDuration,
		c.SimTime, c.SpeedMultiplier, c.TrailSeconds, c.PublishInterval,
	)

	// Set static/dynamic gauges
	c.SpeedMultiplier.Set(speedMultiplier)
	c.TrailSeconds.Set(trailSeconds)
	c.PublishInterval.Set(publishInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
