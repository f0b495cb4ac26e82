package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/devbret/trimet-gtfs-visualization/internal/bundle"
	"github.com/devbret/trimet-gtfs-visualization/internal/config"
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
	"github.com/devbret/trimet-gtfs-visualization/internal/metrics"
	"github.com/devbret/trimet-gtfs-visualization/internal/server"
	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

func writeTestBundle(t *testing.T) string {
	t.Helper()
	sched := bundle.Schedule{
		Routes: []gtfs.Route{{ID: "90", ShortName: "MAX Red", Color: "#C41F3E"}},
		Stops: map[string]gtfs.Stop{
			"A": {StopID: "A", Lat: 45.50, Lon: -122.70},
			"B": {StopID: "B", Lat: 45.52, Lon: -122.68},
		},
		Trips: []gtfs.ScheduledTrip{{
			TripID: "t1", RouteID: "90", Headsign: "Airport",
			StopTimes: []gtfs.StopTime{
				{StopSequence: 1, ArrivalSec: 32400, DepartureSec: 32400, StopID: "A"},
				{StopSequence: 2, ArrivalSec: 33000, DepartureSec: 33000, StopID: "B"},
			},
		}},
	}
	path := filepath.Join(t.TempDir(), "all_trips.json")
	require.NoError(t, bundle.WriteFile(path, bundle.Build(sched, bundle.BuildOptions{
		Q: bundle.DefaultBuildScale, StartHour: 9, EndHour: 18,
	})))
	return path
}

func startPlayer(t *testing.T, r sim.Renderer) (*sim.Player, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	player := sim.NewPlayer(r, time.Millisecond, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- player.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return player, ctx
}

func TestLoadInstallsBundle(t *testing.T) {
	cfg := config.Defaults()
	cfg.BundleSource = writeTestBundle(t)
	mcol := metrics.NewCollector(cfg.SpeedMultiplier, cfg.PublishInterval, cfg.TrailSeconds)
	em := engineMetrics{c: mcol}

	stream := server.NewFrameStream(cfg.PublishInterval, em)
	defer stream.Close()
	player, ctx := startPlayer(t, sim.Renderers{stream})

	api := server.New(player, server.Options{Metrics: em, MetricsHandler: mcol.Handler(), Events: stream})
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	require.NoError(t, load(ctx, cfg, player, mcol, zerolog.Nop()))

	cat := player.Catalog()
	require.NotNil(t, cat)
	assert.Equal(t, 1, cat.Trips)
	assert.Equal(t, 1.0, testutil.ToFloat64(mcol.TripsLoaded))
	assert.Equal(t, 0.0, testutil.ToFloat64(mcol.DecodeFailures))
	require.NotNil(t, player.Latest())
	assert.False(t, player.Latest().Playing)

	resp, err := http.Post(srv.URL+"/api/seek?t=32700", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/gtfs-rt/vehicle-positions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var feed gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(body, &feed))
	require.NotEmpty(t, feed.Entity)
	assert.Equal(t, "t1", feed.Entity[0].GetVehicle().GetTrip().GetTripId())
	assert.InDelta(t, 45.51, feed.Entity[0].GetVehicle().GetPosition().GetLatitude(), 1e-3)
}

func TestLoadAutoplay(t *testing.T) {
	cfg := config.Defaults()
	cfg.BundleSource = writeTestBundle(t)
	cfg.Autoplay = true
	player, ctx := startPlayer(t, nil)

	require.NoError(t, load(ctx, cfg, player, metrics.NewCollector(1, time.Second, 0), zerolog.Nop()))
	require.NotNil(t, player.Latest())
	assert.True(t, player.Latest().Playing)
}

func TestLoadMissingBundle(t *testing.T) {
	cfg := config.Defaults()
	cfg.BundleSource = filepath.Join(t.TempDir(), "missing.json")
	player, ctx := startPlayer(t, nil)

	err := load(ctx, cfg, player, metrics.NewCollector(1, time.Second, 0), zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, player.Catalog())
}
