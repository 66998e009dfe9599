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

// Package resubmit retries submissions that failed to reach the helpdesk,
// either once from the CLI or periodically from the server.
package resubmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/portal/internal/submission"
)

// Lister finds failed submissions that may be retried.
type Lister interface {
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]submission.Record, error)
}

// Reprocessor retries a single submission.
type Reprocessor interface {
	Reprocess(ctx context.Context, rec *submission.Record) (*submission.Result, error)
}

// Result summarises a completed run.
type Result struct {
	Retried   int
	Succeeded int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
}

// Runner performs one retry pass.
type Runner struct {
	lister      Lister
	processor   Reprocessor
	maxAttempts int
	batchSize   int
	delay       time.Duration // pause between submissions to avoid throttling
}

// RunnerConfig holds dependencies for the resubmit runner.
type RunnerConfig struct {
	Lister      Lister
	Processor   Reprocessor
	MaxAttempts int
	BatchSize   int
	Delay       time.Duration
}

// NewRunner creates a resubmit runner.
func NewRunner(cfg RunnerConfig) *Runner {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Runner{
		lister:      cfg.Lister,
		processor:   cfg.Processor,
		maxAttempts: maxAttempts,
		batchSize:   batch,
		delay:       cfg.Delay,
	}
}

// Run retries up to one batch of failed submissions. Individual failures
// are counted, not returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	records, err := r.lister.ListRetryable(ctx, r.maxAttempts, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list retryable submissions: %w", err)
	}

	result := &Result{}
	if len(records) == 0 {
		slog.Debug("no submissions to retry")
		return result, nil
	}

	slog.Info("retrying failed submissions",
		"count", len(records),
		"max_attempts", r.maxAttempts,
	)

	for i := range records {
		if i > 0 && r.delay > 0 {
			select {
			case <-ctx.Done():
				result.Elapsed = time.Since(start)
				return result, ctx.Err()
			case <-time.After(r.delay):
			}
		}

		rec := &records[i]
		res, err := r.processor.Reprocess(ctx, rec)
		switch {
		case errors.Is(err, submission.ErrNotRetryable):
			result.Skipped++
			continue
		case err != nil && res == nil:
			slog.Error("resubmit failed", "submission_id", rec.ID, "error", err)
			result.Skipped++
			continue
		}

		result.Retried++
		if res.Status == submission.StatusSubmitted {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("resubmit pass complete",
		"retried", result.Retried,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// Poller runs the Runner on a fixed interval.
type Poller struct {
	runner   *Runner
	interval time.Duration
}

// DefaultInterval is used when a poller is created without a positive
// interval.
const DefaultInterval = 5 * time.Minute

// NewPoller creates a poller that retries at the given interval.
func NewPoller(runner *Runner, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{runner: runner, interval: interval}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("resubmit poller starting", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("resubmit poller stopping")
			return
		case <-ticker.C:
			if _, err := p.runner.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("resubmit pass failed", "error", err)
			}
		}
	}
}
