// Package main captures live minute bars off the market data WebSocket and
// archives them in ClickHouse, so commit-bar selection can later be audited
// against the bars that actually printed. Runs until interrupted, redialing
// the stream when it drops.
package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-entropy-lab/internal/config"
	"market-entropy-lab/internal/datafeed"
	"market-entropy-lab/internal/ingestion"
	chstore "market-entropy-lab/internal/storage/clickhouse"
	"market-entropy-lab/internal/storage/migrations"
)

const redialDelay = 5 * time.Second

func main() {
	loadEnvFile()

	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "Path to YAML config file")
	wsEndpoint := flag.String("ws-endpoint", "", "WebSocket bar stream endpoint (default: config feed.ws_url)")
	tickers := flag.String("tickers", "", "Comma-separated ticker override")
	flushInterval := flag.Duration("flush-interval", 15*time.Second, "Bar batch flush interval")
	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	endpoint := *wsEndpoint
	if endpoint == "" {
		endpoint = cfg.Feed.WSURL
	}
	if endpoint == "" {
		logger.Fatal("no WebSocket endpoint: set feed.ws_url or -ws-endpoint")
	}
	if cfg.Storage.ClickHouse.Addr == "" {
		logger.Fatal("no ClickHouse address: set storage.clickhouse.addr")
	}

	tickerSet := cfg.Run.Tickers
	if *tickers != "" {
		tickerSet = nil
		for _, t := range strings.Split(*tickers, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickerSet = append(tickerSet, t)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN(cfg))
	if err != nil {
		logger.Fatalf("clickhouse migrations: %v", err)
	}
	defer conn.Close()

	archive := chstore.NewBarStore(conn)

	location := time.UTC
	if cfg.Schedule.Timezone != "" {
		if location, err = time.LoadLocation(cfg.Schedule.Timezone); err != nil {
			logger.Fatalf("load timezone: %v", err)
		}
	}

	logger.Printf("capturing %v from %s", tickerSet, endpoint)

	for {
		if err := captureOnce(ctx, endpoint, tickerSet, archive, cfg.Feed.Provider, *flushInterval, location, logger); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Printf("stream ended: %v, redialing in %v", err, redialDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}

// captureOnce runs one stream session until it drops or the context ends.
func captureOnce(ctx context.Context, endpoint string, tickers []string, archive ingestion.BarArchive, provider string, flushInterval time.Duration, location *time.Location, logger *log.Logger) error {
	stream, err := datafeed.NewWSStream(ctx, endpoint, tickers, nil)
	if err != nil {
		return err
	}
	defer stream.Close()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:        stream,
		Archive:       archive,
		Provider:      provider,
		FlushInterval: flushInterval,
		Logger:        logger,
		Location:      location,
	})

	return runner.Run(ctx)
}

// clickhouseDSN assembles a native-protocol DSN from the config section.
func clickhouseDSN(cfg *config.Config) string {
	ch := cfg.Storage.ClickHouse
	u := url.URL{
		Scheme: "clickhouse",
		Host:   ch.Addr,
		Path:   "/" + ch.Database,
	}
	if ch.Username != "" {
		if ch.Password != "" {
			u.User = url.UserPassword(ch.Username, ch.Password)
		} else {
			u.User = url.User(ch.Username)
		}
	}
	return u.String()
}

// envOr returns the env var's value, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from a .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
