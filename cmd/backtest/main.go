// Package main evaluates predictors against historical daily closes, scored
// the way live rounds are scored: strictly-above-previous-close is 1, ties
// are 0. Useful for choosing the configured predictor before going live.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"market-entropy-lab/internal/backtest"
	"market-entropy-lab/internal/config"
	"market-entropy-lab/internal/datafeed"
	"market-entropy-lab/internal/predictor"
)

func main() {
	loadEnvFile()

	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "Path to YAML config file")
	predictors := flag.String("predictors", "momentum,always_up,always_down", "Comma-separated predictor types to evaluate")
	days := flag.Int("days", 20, "Sessions to evaluate")
	endStr := flag.String("end", "", "Last session YYYY-MM-DD (default: today)")
	timeline := flag.Bool("timeline", false, "Print the per-session timeline")
	flag.Parse()

	logger := log.New(os.Stdout, "[backtest] ", log.LstdFlags)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	end := time.Now()
	if *endStr != "" {
		if end, err = time.Parse("2006-01-02", *endStr); err != nil {
			logger.Fatalf("parse -end: %v", err)
		}
	}

	feed := datafeed.NewHTTPFeed(cfg.Feed.BaseURL, cfg.Feed.Provider,
		datafeed.WithFeedTimeout(cfg.Feed.Timeout),
		datafeed.WithFeedMaxRetries(cfg.Feed.MaxRetries),
		datafeed.WithFeedRetryDelay(cfg.Feed.RetryDelay),
	)
	runner := backtest.NewRunner(feed)

	ctx := context.Background()

	for _, kind := range strings.Split(*predictors, ",") {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		pred, err := predictor.FromConfig(kind, feed)
		if err != nil {
			logger.Fatalf("predictor %q: %v", kind, err)
		}

		fmt.Printf("=== %s over %d sessions ===\n", pred.ID(), *days)
		for _, ticker := range cfg.Run.Tickers {
			results, err := runner.Run(ctx, pred, ticker, end, *days)
			if err != nil {
				logger.Fatalf("evaluate %s on %s: %v", pred.ID(), ticker, err)
			}

			fmt.Printf("%-6s sessions %3d  hits %3d  ties %2d  hit rate %.3f\n",
				results.Ticker, results.Sessions, results.Hits, results.Ties, results.HitRate)

			if *timeline {
				for _, day := range results.Timeline {
					mark := " "
					if day.Hit {
						mark = "+"
					}
					fmt.Printf("  %s %s pred %d outcome %d tie %t\n",
						mark, day.Date, day.Prediction, day.Outcome, day.Tie)
				}
			}
		}
	}
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
