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

package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/bcem/portal/internal/helpdesk"
	"github.com/bcem/portal/internal/metrics"
	"github.com/bcem/portal/internal/models"
	"github.com/bcem/portal/internal/queue"
)

var (
	// ErrDuplicate means the idempotency key was already used.
	ErrDuplicate = errors.New("duplicate submission")

	// ErrNotRetryable means a record is no longer in the failed state.
	ErrNotRetryable = errors.New("submission is not awaiting retry")
)

// ValidationError carries one message per rejected form field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid submission: " + strings.Join(names, ", ")
}

// Builder turns a form into a conversation payload.
type Builder interface {
	BuildTicketData(ctx context.Context, form *models.FormSubmission, requestType string) (*models.TicketPayload, error)
}

// Creator creates the conversation in the helpdesk.
type Creator interface {
	CreateConversation(ctx context.Context, payload *models.TicketPayload) (int, error)
}

// Validator checks a form against its schema.
type Validator interface {
	Validate(sub *models.FormSubmission) map[string]string
}

// Repository persists submission state.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	MarkSubmitted(ctx context.Context, id string, ticketID int) error
	MarkFailed(ctx context.Context, id, reason string) error
	MarkAmbiguous(ctx context.Context, id, reason string) error
	MarkRetrying(ctx context.Context, id string) (bool, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]Record, error)
}

// Deduper remembers idempotency keys.
type Deduper interface {
	Claim(ctx context.Context, key, submissionID string) (bool, string, error)
	Release(ctx context.Context, key string) error
}

// EventPublisher announces final submission states.
type EventPublisher interface {
	PublishSubmissionEvent(ctx context.Context, evt queue.SubmissionEvent) error
}

// Result is the outcome of processing one submission.
type Result struct {
	ID       string
	Status   string
	TicketID int
}

// Processor runs submissions end to end. Dedup and Events are optional.
type Processor struct {
	Builder   Builder
	Creator   Creator
	Validator Validator
	Store     Repository
	Dedup     Deduper
	Events    EventPublisher
}

// Submit validates, persists and forwards a new submission. A non-empty
// idemKey makes repeated submits return ErrDuplicate together with the
// id of the first submission.
func (p *Processor) Submit(ctx context.Context, form *models.FormSubmission, idemKey string) (*Result, error) {
	id := uuid.New().String()

	if idemKey != "" && p.Dedup != nil {
		claimed, existing, err := p.Dedup.Claim(ctx, idemKey, id)
		switch {
		case err != nil:
			slog.Warn("idempotency check failed, processing anyway", "error", err)
			idemKey = ""
		case !claimed:
			slog.Info("duplicate submission", "submission_id", existing)
			return &Result{ID: existing}, ErrDuplicate
		}
	}

	if errs := p.Validator.Validate(form); len(errs) > 0 {
		p.release(ctx, idemKey)
		return nil, &ValidationError{Fields: errs}
	}

	rec := &Record{
		ID:             id,
		RequestType:    form.RequestType,
		RequesterEmail: form.RequesterEmail,
		Form:           *form,
		Status:         StatusPending,
	}
	if err := p.Store.Create(ctx, rec); err != nil {
		p.release(ctx, idemKey)
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	slog.Info("submission accepted",
		"submission_id", id,
		"request_type", rec.RequestType,
		"fields", len(form.Fields),
		"attachments", len(form.Attachments),
	)

	return p.process(ctx, rec)
}

// Reprocess retries a failed submission.
func (p *Processor) Reprocess(ctx context.Context, rec *Record) (*Result, error) {
	ok, err := p.Store.MarkRetrying(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("claim submission %s: %w", rec.ID, err)
	}
	if !ok {
		return nil, ErrNotRetryable
	}

	slog.Info("retrying submission", "submission_id", rec.ID, "attempt", rec.Attempts+1)
	return p.process(ctx, rec)
}

func (p *Processor) process(ctx context.Context, rec *Record) (*Result, error) {
	payload, err := p.Builder.BuildTicketData(ctx, &rec.Form, rec.RequestType)
	if err != nil {
		return p.fail(ctx, rec, fmt.Errorf("build ticket: %w", err))
	}
	payload.AttachFiles(rec.Form.Attachments)

	ticketID, err := p.Creator.CreateConversation(ctx, payload)
	if errors.Is(err, helpdesk.ErrCreationAmbiguous) {
		slog.Error("conversation may exist without a known id, manual follow-up needed",
			"submission_id", rec.ID,
			"error", err,
		)
		if markErr := p.Store.MarkAmbiguous(ctx, rec.ID, err.Error()); markErr != nil {
			slog.Error("failed to mark submission ambiguous", "submission_id", rec.ID, "error", markErr)
		}
		p.finish(ctx, rec, StatusAmbiguous, 0, err)
		return &Result{ID: rec.ID, Status: StatusAmbiguous}, err
	}
	if err != nil {
		return p.fail(ctx, rec, err)
	}

	if err := p.Store.MarkSubmitted(ctx, rec.ID, ticketID); err != nil {
		// The ticket exists; leaving the record pending keeps it out of
		// the retry queue.
		slog.Error("failed to record ticket id", "submission_id", rec.ID, "ticket_id", ticketID, "error", err)
	}
	p.finish(ctx, rec, StatusSubmitted, ticketID, nil)

	return &Result{ID: rec.ID, Status: StatusSubmitted, TicketID: ticketID}, nil
}

func (p *Processor) fail(ctx context.Context, rec *Record, cause error) (*Result, error) {
	slog.Error("submission failed",
		"submission_id", rec.ID,
		"request_type", rec.RequestType,
		"retryable", errors.Is(cause, helpdesk.ErrUnavailable),
		"error", cause,
	)
	if err := p.Store.MarkFailed(ctx, rec.ID, cause.Error()); err != nil {
		slog.Error("failed to mark submission failed", "submission_id", rec.ID, "error", err)
	}
	p.finish(ctx, rec, StatusFailed, 0, cause)
	return &Result{ID: rec.ID, Status: StatusFailed}, cause
}

func (p *Processor) finish(ctx context.Context, rec *Record, status string, ticketID int, cause error) {
	metrics.Get().Submissions.WithLabelValues(status).Inc()

	if p.Events == nil {
		return
	}
	evt := queue.SubmissionEvent{
		SubmissionID: rec.ID,
		RequestType:  rec.RequestType,
		Status:       status,
		TicketID:     ticketID,
	}
	if cause != nil {
		evt.Error = cause.Error()
	}
	if err := p.Events.PublishSubmissionEvent(ctx, evt); err != nil {
		slog.Warn("failed to publish submission event", "submission_id", rec.ID, "error", err)
	}
}

func (p *Processor) release(ctx context.Context, key string) {
	if key == "" || p.Dedup == nil {
		return
	}
	if err := p.Dedup.Release(ctx, key); err != nil {
		slog.Warn("failed to release idempotency key", "error", err)
	}
}
