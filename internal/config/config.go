// Package config loads runtime settings with priority env > file > defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Engine   EngineConfig `yaml:"engine"`
	Relay    RelayConfig  `yaml:"relay"`
	LogLevel string       `yaml:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// EngineConfig configures conflict detection and resolution per document.
type EngineConfig struct {
	ConflictWindow     time.Duration `yaml:"conflict_window"`
	ActiveWindowSize   int           `yaml:"active_window_size"`
	PruneAfter         time.Duration `yaml:"prune_after"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	AutoResolve        bool          `yaml:"auto_resolve"`
	MinConfidence      float64       `yaml:"min_confidence"`
	NotificationBuffer int           `yaml:"notification_buffer"`
}

// RelayConfig configures the server-side sequencer. Capacity bounds how many
// document sessions stay in memory.
type RelayConfig struct {
	HistorySize int `yaml:"history_size"`
	Capacity    int `yaml:"capacity"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			ConflictWindow:     5 * time.Second,
			ActiveWindowSize:   10,
			PruneAfter:         5 * time.Minute,
			CleanupInterval:    30 * time.Second,
			AutoResolve:        false,
			MinConfidence:      0.6,
			NotificationBuffer: 64,
		},
		Relay: RelayConfig{
			HistorySize: 100,
			Capacity:    256,
		},
		LogLevel: "info",
	}
}

// Load builds a configuration from defaults, the optional YAML file at path,
// and OTMERGE_* environment variables, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // File doesn't exist, use defaults
		}

		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("OTMERGE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv("OTMERGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OTMERGE_CONFLICT_WINDOW", &cfg.Engine.ConflictWindow},
		{"OTMERGE_PRUNE_AFTER", &cfg.Engine.PruneAfter},
		{"OTMERGE_CLEANUP_INTERVAL", &cfg.Engine.CleanupInterval},
	}

	for _, e := range durations {
		if v := os.Getenv(e.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}

			*e.dst = d
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"OTMERGE_ACTIVE_WINDOW_SIZE", &cfg.Engine.ActiveWindowSize},
		{"OTMERGE_NOTIFICATION_BUFFER", &cfg.Engine.NotificationBuffer},
		{"OTMERGE_HISTORY_SIZE", &cfg.Relay.HistorySize},
		{"OTMERGE_CAPACITY", &cfg.Relay.Capacity},
	}

	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}

			*e.dst = n
		}
	}

	if v := os.Getenv("OTMERGE_AUTO_RESOLVE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OTMERGE_AUTO_RESOLVE: %w", err)
		}

		cfg.Engine.AutoResolve = b
	}

	if v := os.Getenv("OTMERGE_MIN_CONFIDENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OTMERGE_MIN_CONFIDENCE: %w", err)
		}

		cfg.Engine.MinConfidence = f
	}

	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error

	if c.Engine.ConflictWindow <= 0 {
		errs = append(errs, errors.New("engine.conflict_window must be positive"))
	}

	if c.Engine.ActiveWindowSize <= 0 {
		errs = append(errs, errors.New("engine.active_window_size must be positive"))
	}

	if c.Engine.PruneAfter <= 0 {
		errs = append(errs, errors.New("engine.prune_after must be positive"))
	}

	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		errs = append(errs, errors.New("engine.min_confidence must be within [0,1]"))
	}

	if c.Engine.NotificationBuffer < 0 {
		errs = append(errs, errors.New("engine.notification_buffer must not be negative"))
	}

	if c.Relay.HistorySize <= 0 {
		errs = append(errs, errors.New("relay.history_size must be positive"))
	}

	if c.Relay.Capacity <= 0 {
		errs = append(errs, errors.New("relay.capacity must be positive"))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", name, err)
	}

	return level, nil
}

// NewLogger builds the process logger for the configured level.
func (c Config) NewLogger() *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
