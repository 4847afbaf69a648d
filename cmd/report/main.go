// Package main renders the archive into publishable artifacts: a markdown
// summary of the entropy log, round states, and extraction runs, plus the
// full log as a replay-ready CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"market-entropy-lab/internal/config"
	"market-entropy-lab/internal/reporting"
)

func main() {
	loadEnvFile()

	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "Path to YAML config file")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	verify := flag.Bool("verify", true, "Include a replay verification section")
	flag.Parse()

	logger := log.New(os.Stdout, "[report] ", log.LstdFlags)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	st, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer cleanup()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}

	gen := reporting.NewGenerator(st.rounds, st.entropyLog, st.extractions)
	report, err := gen.Generate(ctx, *verify)
	if err != nil {
		logger.Fatalf("generate report: %v", err)
	}

	mdPath := filepath.Join(*outputDir, "REPORT.md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		logger.Fatalf("write %s: %v", mdPath, err)
	}

	csvPath := filepath.Join(*outputDir, "entropy_log.csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderEntropyCSV(report.Entries)), 0o644); err != nil {
		logger.Fatalf("write %s: %v", csvPath, err)
	}

	fmt.Printf("Report written: %s, %s\n", mdPath, csvPath)
	fmt.Printf("  log entries: %d, hit rate: %.3f\n",
		report.LogSummary.TotalEntries, report.LogSummary.HitRate)
	if report.Verification != nil {
		fmt.Printf("  replay: %d/%d rounds matched\n",
			report.Verification.MatchedRounds, report.Verification.TotalRounds)
		if report.Verification.DivergentRounds > 0 {
			os.Exit(1)
		}
	}
}
