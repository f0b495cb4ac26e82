package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config drives the playback service. Values come from an optional YAML
// file named by PLAYBACK_CONFIG, then from the environment (and .env).
type Config struct {
	BundleSource      string        `yaml:"bundle_source" validate:"required"`
	HTTPAddr          string        `yaml:"http_addr" validate:"required"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	NATSURL           string        `yaml:"nats_url"`
	NATSSubjectPrefix string        `yaml:"nats_subject_prefix" validate:"required"`
	PublishInterval   time.Duration `yaml:"publish_interval" validate:"gt=0"`
	FrameInterval     time.Duration `yaml:"frame_interval" validate:"gt=0"`
	SpeedMultiplier   float64       `yaml:"speed_multiplier" validate:"gt=0"`
	TrailSeconds      float64       `yaml:"trail_seconds" validate:"gte=0"`
	Autoplay          bool          `yaml:"autoplay"`
	LogLevel          string        `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	LogFile           string        `yaml:"log_file"`
	LogNATSSubjects   bool          `yaml:"log_nats_subjects"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		BundleSource:      "all_trips.json",
		HTTPAddr:          ":8080",
		NATSSubjectPrefix: "playback",
		PublishInterval:   time.Second,
		FrameInterval:     time.Second / 60,
		SpeedMultiplier:   60,
		TrailSeconds:      120,
		LogLevel:          "info",
	}
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("PLAYBACK_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) applyEnv() error {
	cfg.BundleSource = getenvDefault("BUNDLE_SOURCE", cfg.BundleSource)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	// Empty disables the metrics server.
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	// Empty disables the NATS publisher.
	cfg.NATSURL = getenvDefault("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = getenvDefault("LOG_FILE", cfg.LogFile)

	if v := os.Getenv("PUBLISH_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid PUBLISH_INTERVAL_MS: %q", v)
		}
		cfg.PublishInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("FRAME_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid FRAME_INTERVAL_MS: %q", v)
		}
		cfg.FrameInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("SPEED_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid SPEED_MULTIPLIER: %q", v)
		}
		cfg.SpeedMultiplier = f
	}
	if v := os.Getenv("TRAIL_SECONDS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid TRAIL_SECONDS: %q", v)
		}
		cfg.TrailSeconds = f
	}
	if v := os.Getenv("AUTOPLAY"); v != "" {
		cfg.Autoplay = parseBool(v)
	}
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}
	return nil
}

// BundlerConfig drives cmd/bundler. GTFSZip takes precedence over the
// database source.
type BundlerConfig struct {
	GTFSZip     string
	DatabaseURL string
	City        string
	Out         string `validate:"required"`
	Scale       int    `validate:"gt=0"`
	StartHour   int    `validate:"gte=0,lte=23"`
	EndHour     int    `validate:"gtfield=StartHour,lte=24"`
	RouteFilter string
	// ServiceDate restricts either source to services running that day.
	ServiceDate time.Time
	LogLevel    string `validate:"oneof=trace debug info warn error"`
}

func LoadBundler() (*BundlerConfig, error) {
	_ = godotenv.Load()

	cfg := &BundlerConfig{
		GTFSZip:     os.Getenv("GTFS_ZIP"),
		Out:         getenvDefault("BUNDLE_OUT", "all_trips.json"),
		Scale:       50000,
		StartHour:   9,
		EndHour:     18,
		RouteFilter: strings.TrimSpace(os.Getenv("ROUTE_FILTER")),
		LogLevel:    strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
	}
	if v := os.Getenv("LATLON_SCALE"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q <= 0 {
			return nil, fmt.Errorf("invalid LATLON_SCALE: %q", v)
		}
		cfg.Scale = q
	}
	if v := os.Getenv("START_HOUR"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid START_HOUR: %q", v)
		}
		cfg.StartHour = h
	}
	if v := os.Getenv("END_HOUR"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid END_HOUR: %q", v)
		}
		cfg.EndHour = h
	}

	if v := os.Getenv("SERVICE_DATE"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVICE_DATE: %q", v)
		}
		cfg.ServiceDate = d
	}

	if cfg.GTFSZip == "" {
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
		// City name for dynamic DB resolution
		cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate bundler config: %w", err)
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL() (string, error) {
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && os.Getenv("CITY") != "" {
		db = "postgres"
	}
	if db == "" {
		return "", errors.New("GTFS_ZIP, PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
