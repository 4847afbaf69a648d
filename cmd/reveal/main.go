// Package main reveals the day's committed rounds after the close: it
// re-derives every commitment from observed market data, moves matching
// rounds to revealed, and appends their symbols to the entropy log.
// Commitment mismatches reject the round and never reach the log.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-entropy-lab/internal/config"
	"market-entropy-lab/internal/workflow"
)

func main() {
	loadEnvFile()

	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "Path to YAML config file")
	dateStr := flag.String("date", "", "Trade date YYYY-MM-DD (default: today in the schedule timezone)")
	tickers := flag.String("tickers", "", "Comma-separated ticker override")
	force := flag.Bool("force", false, "Bypass trading-day and reveal-window gates")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[reveal] ", log.LstdFlags)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, cancelling", sig)
		cancel()
	}()

	schedule, err := workflow.NewSchedule(scheduleTimes(cfg))
	if err != nil {
		logger.Fatalf("build schedule: %v", err)
	}

	st, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer cleanup()

	runner, err := buildRunner(cfg, st, schedule, tickerList(*tickers, cfg), *force, *verbose)
	if err != nil {
		logger.Fatalf("build runner: %v", err)
	}

	date, err := resolveDate(*dateStr, schedule.Location)
	if err != nil {
		logger.Fatalf("resolve date: %v", err)
	}

	result, err := runner.RunReveal(ctx, date)
	if err != nil {
		logger.Fatalf("reveal run: %v", err)
	}

	fmt.Printf("Revealed %d rounds for %s (%d rejected)\n",
		len(result.Revealed), date.Format("2006-01-02"), result.Rejected)
	for _, r := range result.Revealed {
		fmt.Printf("  %s %-6s pred %d outcome %d  symbol %s  delta %s\n",
			r.Date, r.Ticker, r.Prediction, r.Outcome, r.Symbol.Hex(), r.Delta.String())
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		os.Exit(1)
	}
	if result.Rejected > 0 {
		os.Exit(1)
	}
}

// tickerList resolves the run's tickers: the -tickers flag wins over config.
func tickerList(flagValue string, cfg *config.Config) []string {
	if flagValue == "" {
		return cfg.Run.Tickers
	}
	var out []string
	for _, t := range strings.Split(flagValue, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// resolveDate parses -date, defaulting to today in the schedule's zone.
func resolveDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}
