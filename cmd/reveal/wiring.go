package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"market-entropy-lab/internal/beacon"
	"market-entropy-lab/internal/commitment"
	"market-entropy-lab/internal/config"
	"market-entropy-lab/internal/datafeed"
	"market-entropy-lab/internal/predictor"
	"market-entropy-lab/internal/reveal"
	"market-entropy-lab/internal/storage"
	"market-entropy-lab/internal/storage/csvlog"
	"market-entropy-lab/internal/storage/memory"
	"market-entropy-lab/internal/storage/migrations"
	pgstore "market-entropy-lab/internal/storage/postgres"
	"market-entropy-lab/internal/workflow"
)

// stores bundles the three archive stores a run needs.
type stores struct {
	rounds      storage.RoundStore
	entropyLog  storage.EntropyLog
	extractions storage.ExtractionStore
}

// openStores selects the storage backend from config. The returned cleanup
// must be called after the run completes.
func openStores(ctx context.Context, cfg *config.Config) (*stores, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.Postgres.DSN, int32(cfg.Storage.Postgres.MaxConns))
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return &stores{
			rounds:      pgstore.NewRoundStore(pool),
			entropyLog:  pgstore.NewEntropyLog(pool),
			extractions: pgstore.NewExtractionStore(pool),
		}, pool.Close, nil

	case "csv":
		dir := cfg.Storage.CSVPath
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create archive dir %s: %w", dir, err)
		}
		rounds, err := csvlog.NewRoundStore(filepath.Join(dir, "rounds.csv"))
		if err != nil {
			return nil, nil, err
		}
		entropyLog, err := csvlog.NewEntropyLog(filepath.Join(dir, "entropy_log.csv"))
		if err != nil {
			rounds.Close()
			return nil, nil, err
		}
		extractions, err := csvlog.NewExtractionStore(filepath.Join(dir, "extractions.csv"))
		if err != nil {
			rounds.Close()
			entropyLog.Close()
			return nil, nil, err
		}
		cleanup := func() {
			rounds.Close()
			entropyLog.Close()
			extractions.Close()
		}
		return &stores{rounds: rounds, entropyLog: entropyLog, extractions: extractions}, cleanup, nil

	default:
		return &stores{
			rounds:      memory.NewRoundStore(),
			entropyLog:  memory.NewEntropyLog(),
			extractions: memory.NewExtractionStore(),
		}, func() {}, nil
	}
}

// buildRunner wires the feed, predictor, commitment engine, reveal verifier
// and beacon client into a workflow runner.
func buildRunner(cfg *config.Config, st *stores, schedule workflow.Schedule, tickers []string, force, verbose bool) (*workflow.Runner, error) {
	feed := datafeed.NewHTTPFeed(cfg.Feed.BaseURL, cfg.Feed.Provider,
		datafeed.WithFeedTimeout(cfg.Feed.Timeout),
		datafeed.WithFeedMaxRetries(cfg.Feed.MaxRetries),
		datafeed.WithFeedRetryDelay(cfg.Feed.RetryDelay),
	)

	pred, err := predictor.FromConfig(cfg.Run.Predictor, feed)
	if err != nil {
		return nil, err
	}

	engine := commitment.NewEngine(commitment.Config{
		Rounds:          st.rounds,
		Salts:           commitment.NewHMACSaltDeriver([]byte(cfg.Run.CommitKey)),
		Exchanges:       cfg.Run.Exchanges,
		DefaultExchange: cfg.Run.DefaultExchange,
	})

	verifier := reveal.NewVerifier(reveal.Config{
		Rounds:   st.rounds,
		Log:      st.entropyLog,
		Provider: cfg.Feed.Provider,
	})

	seeder := beacon.NewClient(cfg.Beacon.URL,
		beacon.WithTimeout(cfg.Beacon.Timeout),
		beacon.WithMaxRetries(cfg.Beacon.MaxRetries),
	)

	return workflow.New(workflow.Options{
		Rounds:      st.rounds,
		Log:         st.entropyLog,
		Extractions: st.extractions,
		Engine:      engine,
		Verifier:    verifier,
		Feed:        feed,
		Predictor:   pred,
		Seeder:      seeder,
		Tickers:     tickers,
		Schedule:    schedule,
		Force:       force,
		Verbose:     verbose,
	}), nil
}

// scheduleTimes maps the config schedule section onto schedule inputs.
func scheduleTimes(cfg *config.Config) workflow.ScheduleTimes {
	return workflow.ScheduleTimes{
		Timezone:     cfg.Schedule.Timezone,
		CommitOpen:   cfg.Schedule.CommitOpen,
		CommitTarget: cfg.Schedule.CommitTarget,
		CommitClose:  cfg.Schedule.CommitClose,
		RevealOpen:   cfg.Schedule.RevealOpen,
		RevealClose:  cfg.Schedule.RevealClose,
		BarTolerance: cfg.Schedule.BarTolerance,
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
