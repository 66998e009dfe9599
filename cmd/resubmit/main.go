// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Support Request Portal resubmit command.
//
// Standalone CLI tool that retries submissions which failed to reach the
// helpdesk, e.g. after an outage. Ambiguous submissions are never retried;
// they need a manual check in the helpdesk.
//
// Usage:
//
//	go run ./cmd/resubmit/ [--max-attempts 5] [--limit 50]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcem/portal/internal/app"
	"github.com/bcem/portal/internal/config"
	"github.com/bcem/portal/internal/resubmit"
)

func main() {
	// Structured JSON logging
	app.SetupLogging(os.Getenv("LOG_LEVEL"))

	// --- CLI Flags ---
	maxAttemptsFlag := flag.Int("max-attempts", 0, "Skip submissions that already failed this many times (default: resubmit.max_attempts)")
	limitFlag := flag.Int("limit", 0, "Maximum submissions to retry in this run (default: resubmit.batch_size)")
	flag.Parse()

	if *maxAttemptsFlag < 0 || *limitFlag < 0 {
		fmt.Fprintf(os.Stderr, "Error: --max-attempts and --limit must not be negative\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.LogLevel)

	maxAttempts := cfg.Resubmit.MaxAttempts
	if *maxAttemptsFlag > 0 {
		maxAttempts = *maxAttemptsFlag
	}
	limit := cfg.Resubmit.BatchSize
	if *limitFlag > 0 {
		limit = *limitFlag
	}

	slog.Info("starting resubmit run", "max_attempts", maxAttempts, "limit", limit)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise portal", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Run Resubmit ---
	runner := resubmit.NewRunner(resubmit.RunnerConfig{
		Lister:      a.Store,
		Processor:   a.Processor,
		MaxAttempts: maxAttempts,
		BatchSize:   limit,
	})

	result, err := runner.Run(ctx)
	if err != nil {
		slog.Error("resubmit failed", "error", err)
		a.Close()
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("resubmit complete",
		"retried", result.Retried,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed", result.Elapsed,
	)

	if result.Failed > 0 {
		a.Close()
		os.Exit(2)
	}
}
