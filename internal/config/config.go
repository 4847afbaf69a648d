// Package config holds the YAML configuration surface of the daily runner
// and its tools.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Run      RunConfig      `yaml:"run"`
	Feed     FeedConfig     `yaml:"feed"`
	Beacon   BeaconConfig   `yaml:"beacon"`
	Extract  ExtractConfig  `yaml:"extract"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RunConfig scopes the daily protocol run.
type RunConfig struct {
	Tickers         []string          `yaml:"tickers"`
	DefaultExchange string            `yaml:"default_exchange"`
	Exchanges       map[string]string `yaml:"exchanges"` // ticker -> exchange overrides
	Predictor       string            `yaml:"predictor"` // momentum | always_up | always_down
	CommitKey       string            `yaml:"commit_key"`
}

// FeedConfig holds the market data provider settings.
type FeedConfig struct {
	BaseURL    string        `yaml:"base_url"`
	WSURL      string        `yaml:"ws_url"`
	Provider   string        `yaml:"provider"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// BeaconConfig holds the public randomness beacon settings.
type BeaconConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ExtractConfig holds extraction run defaults.
type ExtractConfig struct {
	OutBits int `yaml:"out_bits"`
	Window  int `yaml:"window"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend    string           `yaml:"backend"`  // memory | csv | postgres
	CSVPath    string           `yaml:"csv_path"` // directory holding the CSV archive files
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// PostgresConfig holds the round archive connection.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// ClickHouseConfig holds the optional minute-bar archive connection.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ScheduleConfig pins the phase windows in exchange-local wall-clock time.
type ScheduleConfig struct {
	Timezone     string        `yaml:"timezone"`
	CommitOpen   string        `yaml:"commit_open"`   // "15:54"
	CommitTarget string        `yaml:"commit_target"` // "15:55"
	CommitClose  string        `yaml:"commit_close"`  // "15:56"
	RevealOpen   string        `yaml:"reveal_open"`   // "16:04"
	RevealClose  string        `yaml:"reveal_close"`  // "16:12"
	BarTolerance time.Duration `yaml:"bar_tolerance"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// applyDefaults fills zero values with working defaults.
func (c *Config) applyDefaults() {
	if len(c.Run.Tickers) == 0 {
		c.Run.Tickers = []string{"SPY"}
	}
	if c.Run.DefaultExchange == "" {
		c.Run.DefaultExchange = "NYSE"
	}
	if c.Run.Predictor == "" {
		c.Run.Predictor = "momentum"
	}

	if c.Feed.Provider == "" {
		c.Feed.Provider = "http"
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = 30 * time.Second
	}
	if c.Feed.MaxRetries == 0 {
		c.Feed.MaxRetries = 3
	}
	if c.Feed.RetryDelay == 0 {
		c.Feed.RetryDelay = time.Second
	}

	if c.Beacon.URL == "" {
		c.Beacon.URL = "https://drand.cloudflare.com/public/latest"
	}
	if c.Beacon.Timeout == 0 {
		c.Beacon.Timeout = 10 * time.Second
	}
	if c.Beacon.MaxRetries == 0 {
		c.Beacon.MaxRetries = 2
	}

	if c.Extract.OutBits == 0 {
		c.Extract.OutBits = 128
	}
	if c.Extract.Window == 0 {
		c.Extract.Window = 64
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.CSVPath == "" {
		c.Storage.CSVPath = "archive"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}

	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "America/New_York"
	}
	if c.Schedule.CommitOpen == "" {
		c.Schedule.CommitOpen = "15:54"
	}
	if c.Schedule.CommitTarget == "" {
		c.Schedule.CommitTarget = "15:55"
	}
	if c.Schedule.CommitClose == "" {
		c.Schedule.CommitClose = "15:56"
	}
	if c.Schedule.RevealOpen == "" {
		c.Schedule.RevealOpen = "16:04"
	}
	if c.Schedule.RevealClose == "" {
		c.Schedule.RevealClose = "16:12"
	}
	if c.Schedule.BarTolerance == 0 {
		c.Schedule.BarTolerance = 90 * time.Second
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks invariants the defaults cannot repair.
func (c *Config) Validate() error {
	if c.Run.CommitKey == "" {
		return errors.New("run.commit_key is required")
	}
	switch c.Storage.Backend {
	case "memory", "csv":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Run.Predictor {
	case "momentum", "always_up", "always_down":
	default:
		return fmt.Errorf("unknown predictor %q", c.Run.Predictor)
	}
	if c.Extract.OutBits <= 0 || c.Extract.OutBits%4 != 0 || c.Extract.OutBits > 256 {
		return fmt.Errorf("extract.out_bits must be a positive multiple of 4, at most 256, got %d", c.Extract.OutBits)
	}
	if c.Extract.Window <= 0 {
		return fmt.Errorf("extract.window must be positive, got %d", c.Extract.Window)
	}
	if c.Feed.BaseURL == "" {
		return errors.New("feed.base_url is required")
	}
	return nil
}
