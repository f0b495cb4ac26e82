package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devbret/trimet-gtfs-visualization/internal/bundle"
	"github.com/devbret/trimet-gtfs-visualization/internal/config"
	"github.com/devbret/trimet-gtfs-visualization/internal/db"
	"github.com/devbret/trimet-gtfs-visualization/internal/logger"
	"github.com/devbret/trimet-gtfs-visualization/internal/source"
)

func main() {
	cfg, err := config.LoadBundler()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	lg, err := logger.New(cfg.LogLevel, logger.ConsoleWriter(os.Stderr))
	if err != nil {
		log.Fatal().Err(err).Msg("logger error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	sched, err := loadSchedule(ctx, cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("load schedule")
	}
	lg.Info().
		Int("routes", len(sched.Routes)).
		Int("trips", len(sched.Trips)).
		Int("stops", len(sched.Stops)).
		Dur("took", time.Since(start)).
		Msg("schedule loaded")

	b := bundle.Build(sched, bundle.BuildOptions{
		Q:           cfg.Scale,
		StartHour:   cfg.StartHour,
		EndHour:     cfg.EndHour,
		RouteFilter: cfg.RouteFilter,
	})
	records := 0
	for _, h := range b.TripsByHour {
		records += len(h.Trips)
		lg.Debug().Int("hour", h.Hour).Int("trips", len(h.Trips)).Msg("hour built")
	}
	if err := bundle.WriteFile(cfg.Out, b); err != nil {
		lg.Fatal().Err(err).Str("out", cfg.Out).Msg("write bundle")
	}
	lg.Info().
		Str("out", cfg.Out).
		Int("routes", len(b.Routes)).
		Int("trip_records", records).
		Int("stops", len(b.StopsHourly)).
		Str("window", fmt.Sprintf("%02d-%02d", cfg.StartHour, cfg.EndHour)).
		Msg("bundle written")
}

func loadSchedule(ctx context.Context, cfg *config.BundlerConfig, lg zerolog.Logger) (bundle.Schedule, error) {
	if cfg.GTFSZip != "" {
		data, err := os.ReadFile(cfg.GTFSZip)
		if err != nil {
			return bundle.Schedule{}, fmt.Errorf("error reading GTFS data: %w", err)
		}
		return source.ParseStatic(data, source.StaticOptions{
			RouteFilter: cfg.RouteFilter,
			ServiceDate: cfg.ServiceDate,
		})
	}

	conn, name, err := db.ConnectCity(ctx, cfg.DatabaseURL, cfg.City)
	if err != nil {
		return bundle.Schedule{}, err
	}
	defer conn.Close()
	if name != "" {
		lg.Info().Str("db", name).Str("city", cfg.City).Msg("using city database")
	}
	return db.LoadSchedule(ctx, conn, db.ScheduleOptions{
		RouteFilter: cfg.RouteFilter,
		ServiceDate: cfg.ServiceDate,
	})
}
