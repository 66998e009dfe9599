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

// Package submission persists portal submissions in Postgres and drives
// each one through ticket building and conversation creation.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/portal/internal/models"
)

// Submission statuses.
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
	StatusAmbiguous = "ambiguous"
)

// Record is one submission persisted in Postgres.
type Record struct {
	ID             string
	RequestType    string
	RequesterEmail string
	Form           models.FormSubmission
	Status         string
	TicketID       *int
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store provides CRUD operations for submission records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a submission store backed by the given Postgres pool.
// It ensures the submissions table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure submission schema: %w", err)
	}
	slog.Info("submission store initialised")
	return s, nil
}

// form_data is JSON rather than JSONB: JSONB does not keep key order and
// the ticket body is rendered in submission order.
func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id              UUID PRIMARY KEY,
			request_type    TEXT NOT NULL,
			requester_email TEXT NOT NULL,
			form_data       JSON NOT NULL,
			status          TEXT NOT NULL DEFAULT 'pending',
			ticket_id       INTEGER,
			attempts        INTEGER NOT NULL DEFAULT 0,
			last_error      TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status, attempts);
		CREATE INDEX IF NOT EXISTS idx_submissions_email ON submissions(requester_email);
	`)
	return err
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Create inserts a new record with status pending.
func (s *Store) Create(ctx context.Context, r *Record) error {
	form, err := json.Marshal(r.Form)
	if err != nil {
		return fmt.Errorf("marshal form data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (id, request_type, requester_email, form_data, status)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.RequestType, r.RequesterEmail, string(form), StatusPending)
	return err
}

// Get retrieves a single submission. It returns nil, nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, request_type, requester_email, form_data, status,
		       ticket_id, attempts, last_error, created_at, updated_at
		FROM submissions
		WHERE id = $1
	`, id)
	return scanRecord(row)
}

// MarkSubmitted records the conversation created for a submission.
func (s *Store) MarkSubmitted(ctx context.Context, id string, ticketID int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET status = $1, ticket_id = $2, last_error = '', updated_at = NOW()
		WHERE id = $3
	`, StatusSubmitted, ticketID, id)
	return err
}

// MarkFailed records a failed attempt.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`, StatusFailed, reason, id)
	return err
}

// MarkAmbiguous records that a conversation may exist without a known id.
// Ambiguous submissions are never retried automatically.
func (s *Store) MarkAmbiguous(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`, StatusAmbiguous, reason, id)
	return err
}

// MarkRetrying moves a failed submission back to pending. It reports false
// when the submission is not failed, e.g. because another worker took it.
func (s *Store) MarkRetrying(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, StatusPending, id, StatusFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListRetryable returns failed submissions with fewer than maxAttempts
// attempts, oldest first.
func (s *Store) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, request_type, requester_email, form_data, status,
		       ticket_id, attempts, last_error, created_at, updated_at
		FROM submissions
		WHERE status = $1 AND attempts < $2
		ORDER BY updated_at
		LIMIT $3
	`, StatusFailed, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// scanRecord scans a single row into a Record.
func scanRecord(row pgx.Row) (*Record, error) {
	r, err := scan(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// collectRecords scans multiple rows into a slice of Records.
func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func scan(row pgx.Row) (*Record, error) {
	var (
		r    Record
		form []byte
	)
	if err := row.Scan(
		&r.ID, &r.RequestType, &r.RequesterEmail, &form, &r.Status,
		&r.TicketID, &r.Attempts, &r.LastError, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(form, &r.Form); err != nil {
		return nil, fmt.Errorf("decode form data of %s: %w", r.ID, err)
	}
	return &r, nil
}
