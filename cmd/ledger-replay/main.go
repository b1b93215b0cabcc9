package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/okian/stakingtier/internal/replay"
	"github.com/okian/stakingtier/pkg/logger"
)

const (
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	runTimeout     = 10 * time.Minute
	logFileMode    = 0o600
)

func main() {
	var (
		baseURL    = flag.String("url", replay.DefaultBaseURL, "Base URL of the service")
		owners     = flag.Int("owners", replay.DefaultOwners, "Number of stakers to generate")
		stakes     = flag.Int("stakes", replay.DefaultMaxStakesPerOwner, "Maximum stakes per owner")
		duplicates = flag.Float64("duplicates", 0.1, "Share of stakes submitted twice")
		unstakes   = flag.Float64("unstakes", 0.5, "Share of owners that unstake part of their balance")
		topN       = flag.Int("top", replay.DefaultTopN, "Ranking entries to check")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent requests")
		timeout    = flag.Duration("timeout", replay.DefaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", replay.DefaultSettleTimeout, "How long to wait for the service to apply the history")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for generated amounts")
		outputFile = flag.String("output", "", "Write the submitted events to this JSON file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		format     = flag.String("log-format", logger.FormatText, "Log format: text or json")
		verbose    = flag.Bool("verbose", false, "Log every rejected event and retry")
	)
	flag.Usage = usage
	flag.Parse()

	if err := setupLogging(*logFile, *format, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logging:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg := replay.Config{
		BaseURL:           *baseURL,
		Owners:            *owners,
		MaxStakesPerOwner: *stakes,
		DuplicateRatio:    *duplicates,
		UnstakeRatio:      *unstakes,
		TopN:              *topN,
		Workers:           *workers,
		Timeout:           *timeout,
		SettleTimeout:     *settle,
		Seed:              *seed,
		OutputFile:        *outputFile,
		Verbose:           *verbose,
	}
	if _, err := replay.Run(ctx, cfg, logger.Named("replay")); err != nil {
		logger.Get().Error(ctx, "replay failed", logger.Error(err))
		os.Exit(1)
	}
}

func setupLogging(logFile, format string, verbose bool) error {
	if err := logger.Init(); err != nil {
		return err
	}
	if err := logger.SetFormat(format); err != nil {
		return err
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile == "" {
		return nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return nil
}

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), `Ledger replay
=============

Submits a generated staking history to a running service and checks that
balances, tier progress, the ranking and the pool total match the history.
The service must not receive other ledger traffic during the run.

Usage:
  go run ./cmd/ledger-replay [options]

Options:
`)
	flag.PrintDefaults()
}
