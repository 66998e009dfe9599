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

// Support Request Portal API server.
//
// Entry point for the portal service. It:
//  1. Loads configuration from .env, config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Checks the configured helpdesk mailbox
//  4. Serves the portal API (request types, submissions, health, metrics)
//  5. Retries failed submissions in the background
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcem/portal/internal/app"
	"github.com/bcem/portal/internal/config"
	"github.com/bcem/portal/internal/portal"
	"github.com/bcem/portal/internal/resubmit"
)

func main() {
	// Structured JSON logging
	app.SetupLogging(os.Getenv("LOG_LEVEL"))

	slog.Info("starting support request portal")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.LogLevel)

	slog.Info("configuration loaded",
		"helpdesk", cfg.Helpdesk.BaseURL,
		"mailbox_id", cfg.Helpdesk.MailboxID,
		"oauth", cfg.Helpdesk.UsesOAuth(),
		"custom_field_cache", cfg.Redis.CustomFieldCache,
		"resubmit_interval", cfg.Resubmit.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise portal", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// A bad mailbox is logged, not fatal: the portal can still accept and
	// store submissions for later retry.
	checkCtx, checkCancel := context.WithTimeout(ctx, cfg.Helpdesk.Timeout)
	if !a.Builder.ValidateMailboxID(checkCtx) {
		slog.Warn("helpdesk mailbox could not be validated; submissions will use the first listed mailbox or fail")
	}
	checkCancel()

	// --- Resubmit Poller ---
	runner := resubmit.NewRunner(resubmit.RunnerConfig{
		Lister:      a.Store,
		Processor:   a.Processor,
		MaxAttempts: cfg.Resubmit.MaxAttempts,
		BatchSize:   cfg.Resubmit.BatchSize,
		Delay:       500 * time.Millisecond,
	})
	go resubmit.NewPoller(runner, cfg.Resubmit.Interval).Run(ctx)

	// --- Portal API ---
	handler := portal.NewHandler(portal.Options{
		Schema:    a.Schema,
		Submitter: a.Processor,
		Records:   a.Store,
		Mailbox:   a.Builder,
		Checks: map[string]portal.Pinger{
			"postgres": a.Store,
			"redis":    a.Publisher,
		},
		SubmitRateLimit: cfg.SubmitRateLimit,
	})

	ready, stopped, err := portal.Serve(ctx, cfg.Port, handler, 15*time.Second)
	if err != nil {
		slog.Error("failed to start portal server", "error", err)
		os.Exit(1)
	}
	<-ready

	<-ctx.Done()
	slog.Info("received shutdown signal")

	<-stopped
	slog.Info("support request portal stopped")
}
