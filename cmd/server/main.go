// Package main runs the daily round as a long-lived service: it fires the
// commit phase inside the pre-close window, the reveal phase after the
// close, and an extraction once the day's reveals are in, all gated on
// exchange trading days. A Prometheus endpoint exposes run counters, and an
// optional WebSocket capture archives the session's minute bars.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"market-entropy-lab/internal/config"
	"market-entropy-lab/internal/datafeed"
	"market-entropy-lab/internal/ingestion"
	"market-entropy-lab/internal/observability"
	chstore "market-entropy-lab/internal/storage/clickhouse"
	"market-entropy-lab/internal/storage/migrations"
	"market-entropy-lab/internal/workflow"
)

// Server drives the scheduled phases and tracks their progress.
type Server struct {
	runner   *workflow.Runner
	schedule workflow.Schedule
	window   int
	outBits  int
	logger   *log.Logger

	mu             sync.Mutex
	startedAt      time.Time
	commitDoneFor  string // trade date of the last completed commit run
	revealDoneFor  string
	extractDoneFor string
	commitRuns     int
	revealRuns     int
	extractRuns    int
	lastError      string
}

func main() {
	loadEnvFile()

	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "Path to YAML config file")
	tickInterval := flag.Duration("tick-interval", 30*time.Second, "Scheduler tick interval")
	captureBars := flag.Bool("capture-bars", false, "Archive streamed minute bars to ClickHouse")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedule, err := workflow.NewSchedule(scheduleTimes(cfg))
	if err != nil {
		logger.Fatalf("build schedule: %v", err)
	}

	st, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer cleanup()

	runner, err := buildRunner(cfg, st, schedule, cfg.Run.Tickers, false, *verbose)
	if err != nil {
		logger.Fatalf("build runner: %v", err)
	}

	server := &Server{
		runner:    runner,
		schedule:  schedule,
		window:    cfg.Extract.Window,
		outBits:   cfg.Extract.OutBits,
		logger:    logger,
		startedAt: time.Now(),
	}

	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, initiating graceful shutdown", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	// Metrics and status endpoint.
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, observability.Handler())
	mux.HandleFunc("/status", server.handleStatus)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.Printf("metrics listening on %s%s", httpServer.Addr, cfg.Metrics.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server: %v", err)
		}
	}()

	// Optional live bar capture alongside the scheduler.
	var captureWg sync.WaitGroup
	if *captureBars {
		if cfg.Feed.WSURL == "" || cfg.Storage.ClickHouse.Addr == "" {
			logger.Fatal("-capture-bars needs feed.ws_url and storage.clickhouse.addr")
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN(cfg))
		if err != nil {
			logger.Fatalf("clickhouse migrations: %v", err)
		}
		defer conn.Close()

		captureWg.Add(1)
		go func() {
			defer captureWg.Done()
			server.captureBars(ctx, cfg, chstore.NewBarStore(conn))
		}()
	}

	logger.Printf("scheduler started: commit %02d:%02d-%02d:%02d, reveal %02d:%02d-%02d:%02d (%s)",
		schedule.CommitWindowOpen.Hour, schedule.CommitWindowOpen.Minute,
		schedule.CommitWindowClose.Hour, schedule.CommitWindowClose.Minute,
		schedule.RevealWindowOpen.Hour, schedule.RevealWindowOpen.Minute,
		schedule.RevealWindowClose.Hour, schedule.RevealWindowClose.Minute,
		schedule.Location)

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			httpServer.Shutdown(shutdownCtx)
			shutdownCancel()
			captureWg.Wait()
			close(done)
			logger.Println("server stopped")
			return
		case <-ticker.C:
			server.tick(ctx)
		}
	}
}

// tick runs whichever phase the current instant calls for. Each phase runs
// at most once per trade date; re-ticks inside a window are no-ops.
func (s *Server) tick(ctx context.Context) {
	now := time.Now().In(s.schedule.Location)
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.schedule.Location)
	dateStr := date.Format("2006-01-02")

	if s.schedule.InCommitWindow(now) && s.markOnce(&s.commitDoneFor, dateStr) {
		result, err := s.runner.RunCommit(ctx, date)
		if err != nil {
			s.recordError("commit", dateStr, err)
			return
		}
		s.mu.Lock()
		s.commitRuns++
		s.mu.Unlock()
		s.logger.Printf("commit run for %s: %d committed, %d skipped, %d errors",
			dateStr, len(result.Committed), result.Skipped, len(result.Errors))
	}

	if s.schedule.InRevealWindow(now) && s.markOnce(&s.revealDoneFor, dateStr) {
		result, err := s.runner.RunReveal(ctx, date)
		if err != nil {
			s.recordError("reveal", dateStr, err)
			return
		}
		s.mu.Lock()
		s.revealRuns++
		s.mu.Unlock()
		s.logger.Printf("reveal run for %s: %d revealed, %d rejected, %d errors",
			dateStr, len(result.Revealed), result.Rejected, len(result.Errors))

		if len(result.Revealed) > 0 && s.markOnce(&s.extractDoneFor, dateStr) {
			rec, err := s.runner.RunExtract(ctx, date, s.window, s.outBits)
			if err != nil {
				s.recordError("extract", dateStr, err)
				return
			}
			s.mu.Lock()
			s.extractRuns++
			s.mu.Unlock()
			s.logger.Printf("extraction %s for %s: %s seed, %d/%d window, digest %s",
				rec.RunID, dateStr, rec.SeedMode, rec.EffectiveWindow, rec.RequestedWindow, rec.OutputHex)
		}
	}
}

// markOnce claims the phase for the date. Returns false when already run.
func (s *Server) markOnce(doneFor *string, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *doneFor == date {
		return false
	}
	*doneFor = date
	return true
}

// recordError logs a phase failure. Gate refusals (non-trading day) are
// expected and logged quietly; the phase stays claimed for the date either
// way, so a failed run is retried the next trade date, not the next tick.
func (s *Server) recordError(phase, date string, err error) {
	if errors.Is(err, workflow.ErrNotTradingDay) {
		s.logger.Printf("%s run for %s skipped: %v", phase, date, err)
		return
	}
	s.mu.Lock()
	s.lastError = fmt.Sprintf("%s %s: %v", phase, date, err)
	s.mu.Unlock()
	s.logger.Printf("%s run for %s failed: %v", phase, date, err)
}

// captureBars runs the minute bar capture loop, redialing on drops.
func (s *Server) captureBars(ctx context.Context, cfg *config.Config, archive *chstore.BarStore) {
	for {
		stream, err := datafeed.NewWSStream(ctx, cfg.Feed.WSURL, cfg.Run.Tickers, nil)
		if err == nil {
			runner := ingestion.NewRunner(ingestion.RunnerOptions{
				Source:   stream,
				Archive:  archive,
				Provider: cfg.Feed.Provider,
				Logger:   s.logger,
				Location: s.schedule.Location,
			})
			err = runner.Run(ctx)
			stream.Close()
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Printf("bar capture ended: %v, redialing in 5s", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// handleStatus serves a JSON snapshot of the scheduler state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := map[string]interface{}{
		"uptime":           time.Since(s.startedAt).String(),
		"commit_runs":      s.commitRuns,
		"reveal_runs":      s.revealRuns,
		"extract_runs":     s.extractRuns,
		"commit_done_for":  s.commitDoneFor,
		"reveal_done_for":  s.revealDoneFor,
		"extract_done_for": s.extractDoneFor,
		"last_error":       s.lastError,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
