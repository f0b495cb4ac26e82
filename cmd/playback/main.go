package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devbret/trimet-gtfs-visualization/internal/bundle"
	"github.com/devbret/trimet-gtfs-visualization/internal/config"
	"github.com/devbret/trimet-gtfs-visualization/internal/logger"
	"github.com/devbret/trimet-gtfs-visualization/internal/metrics"
	"github.com/devbret/trimet-gtfs-visualization/internal/publisher"
	"github.com/devbret/trimet-gtfs-visualization/internal/server"
	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

func main() {
	// Load configuration from .env, PLAYBACK_CONFIG and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	writers := []io.Writer{logger.ConsoleWriter(os.Stdout)}
	if cfg.LogFile != "" {
		fw := logger.FileWriter(cfg.LogFile)
		defer fw.Close() // nolint:errcheck
		writers = append(writers, fw)
	}
	lg, err := logger.New(cfg.LogLevel, writers...)
	if err != nil {
		log.Fatal().Err(err).Msg("logger error")
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.SpeedMultiplier, cfg.PublishInterval, cfg.TrailSeconds)
	em := engineMetrics{c: mcol}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr, lg)
	}

	stream := server.NewFrameStream(cfg.PublishInterval, em)
	renderers := sim.Renderers{stream}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.PublishInterval, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), lg)
		if err != nil {
			lg.Fatal().Err(err).Msg("nats error")
		}
		defer pub.Close()
		renderers = append(renderers, pub)
	} else {
		lg.Info().Msg("NATS_URL not set; publisher disabled")
	}

	player := sim.NewPlayer(renderers, cfg.FrameInterval, lg)
	api := server.New(player, server.Options{
		Metrics:        em,
		MetricsHandler: mcol.Handler(),
		Events:         stream,
		Logger:         lg,
	})
	httpSrv := api.Serve(cfg.HTTPAddr)

	loopDone := make(chan error, 1)
	go func() { loopDone <- player.Run(ctx) }()

	go func() {
		if err := load(ctx, cfg, player, mcol, lg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, sim.ErrNotRunning) {
				return
			}
			lg.Fatal().Err(err).Str("source", cfg.BundleSource).Msg("bundle load failed")
		}
	}()

	<-ctx.Done()
	<-loopDone

	// SSE subscribers hold their connections open until the stream closes
	stream.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelShutdown()
	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	lg.Info().Msg("shutdown complete")
}

// load fetches and decodes the bundle, then hands a new engine to the player.
func load(ctx context.Context, cfg *config.Config, player *sim.Player, mcol *metrics.Collector, lg zerolog.Logger) error {
	start := time.Now()
	b, err := bundle.Open(ctx, cfg.BundleSource)
	if err != nil {
		return err
	}
	loaded := b.Unpack()
	observeUnpack(mcol, loaded.Stats)
	for _, f := range loaded.Stats.Failures {
		lg.Warn().Err(f.Err).Int("hour", f.Hour).Str("trip_id", f.TripID).Msg("skipping undecodable trip")
	}
	lg.Info().
		Str("source", cfg.BundleSource).
		Int("trips", loaded.Stats.Trips).
		Int("decoded", loaded.Stats.Decoded).
		Int("empty", loaded.Stats.Empty).
		Int("failed", len(loaded.Stats.Failures)).
		Dur("took", time.Since(start)).
		Msg("bundle loaded")

	engine := sim.NewEngine(loaded, sim.EngineOptions{
		Speed:        cfg.SpeedMultiplier,
		TrailSeconds: cfg.TrailSeconds,
		Metrics:      engineMetrics{c: mcol},
		Logger:       lg,
	})
	return player.Install(ctx, engine, cfg.Autoplay)
}
