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
	"sync"
	"testing"

	"github.com/bcem/portal/internal/helpdesk"
	"github.com/bcem/portal/internal/models"
	"github.com/bcem/portal/internal/queue"
)

// memStore implements Repository in memory.
type memStore struct {
	mu         sync.Mutex
	records    map[string]*Record
	failCreate error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (m *memStore) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) MarkSubmitted(_ context.Context, id string, ticketID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	r.Status = StatusSubmitted
	r.TicketID = &ticketID
	r.LastError = ""
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	r.Status = StatusFailed
	r.Attempts++
	r.LastError = reason
	return nil
}

func (m *memStore) MarkAmbiguous(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	r.Status = StatusAmbiguous
	r.Attempts++
	r.LastError = reason
	return nil
}

func (m *memStore) MarkRetrying(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Status != StatusFailed {
		return false, nil
	}
	r.Status = StatusPending
	return true, nil
}

func (m *memStore) ListRetryable(_ context.Context, maxAttempts, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Status == StatusFailed && r.Attempts < maxAttempts && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Status
}

type fakeBuilder struct {
	err error
}

func (f *fakeBuilder) BuildTicketData(_ context.Context, form *models.FormSubmission, requestType string) (*models.TicketPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.TicketPayload{
		Subject: requestType,
		Threads: []models.Thread{{Type: models.ThreadTypeCustomer, Text: form.Value("description")}},
	}, nil
}

type fakeCreator struct {
	id       int
	err      error
	received []*models.TicketPayload
}

func (f *fakeCreator) CreateConversation(_ context.Context, payload *models.TicketPayload) (int, error) {
	f.received = append(f.received, payload)
	return f.id, f.err
}

type fakeValidator map[string]string

func (f fakeValidator) Validate(*models.FormSubmission) map[string]string { return f }

type fakeDedup struct {
	keys     map[string]string
	released []string
	err      error
}

func (f *fakeDedup) Claim(_ context.Context, key, id string) (bool, string, error) {
	if f.err != nil {
		return false, "", f.err
	}
	if existing, ok := f.keys[key]; ok {
		return false, existing, nil
	}
	f.keys[key] = id
	return true, id, nil
}

func (f *fakeDedup) Release(_ context.Context, key string) error {
	delete(f.keys, key)
	f.released = append(f.released, key)
	return nil
}

type fakeEvents struct {
	events []queue.SubmissionEvent
}

func (f *fakeEvents) PublishSubmissionEvent(_ context.Context, evt queue.SubmissionEvent) error {
	f.events = append(f.events, evt)
	return nil
}

func testForm() *models.FormSubmission {
	return &models.FormSubmission{
		RequesterName:  "Alice Smith",
		RequesterEmail: "alice@example.com",
		RequestType:    "problem",
		Fields:         []models.FormField{{Name: "description", Values: []string{"Printer jammed"}}},
		Attachments:    []models.Attachment{{FileName: "jam.png", MimeType: "image/png", Data: "aGk="}},
	}
}

type harness struct {
	store   *memStore
	creator *fakeCreator
	dedup   *fakeDedup
	events  *fakeEvents
	proc    *Processor
}

func newHarness() *harness {
	h := &harness{
		store:   newMemStore(),
		creator: &fakeCreator{id: 501},
		dedup:   &fakeDedup{keys: make(map[string]string)},
		events:  &fakeEvents{},
	}
	h.proc = &Processor{
		Builder:   &fakeBuilder{},
		Creator:   h.creator,
		Validator: fakeValidator(nil),
		Store:     h.store,
		Dedup:     h.dedup,
		Events:    h.events,
	}
	return h
}

// TestSubmit_Success verifies the happy path end to end.
func TestSubmit_Success(t *testing.T) {
	h := newHarness()

	res, err := h.proc.Submit(context.Background(), testForm(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSubmitted || res.TicketID != 501 {
		t.Errorf("result = %+v", res)
	}

	rec, _ := h.store.Get(context.Background(), res.ID)
	if rec == nil || rec.Status != StatusSubmitted || rec.TicketID == nil || *rec.TicketID != 501 {
		t.Errorf("record = %+v", rec)
	}

	if len(h.creator.received) != 1 {
		t.Fatalf("conversations created = %d", len(h.creator.received))
	}
	atts := h.creator.received[0].Threads[0].Attachments
	if len(atts) != 1 || atts[0].FileName != "jam.png" {
		t.Errorf("attachments not merged into the thread: %+v", atts)
	}

	if len(h.events.events) != 1 || h.events.events[0].Status != StatusSubmitted || h.events.events[0].TicketID != 501 {
		t.Errorf("events = %+v", h.events.events)
	}
}

// TestSubmit_Duplicate verifies a reused key returns the first submission.
func TestSubmit_Duplicate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.proc.Submit(ctx, testForm(), "key-1")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, err := h.proc.Submit(ctx, testForm(), "key-1")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate id = %q, want %q", second.ID, first.ID)
	}
	if len(h.creator.received) != 1 {
		t.Errorf("conversations created = %d, want 1", len(h.creator.received))
	}
}

// TestSubmit_DedupUnavailable verifies Redis problems do not block submits.
func TestSubmit_DedupUnavailable(t *testing.T) {
	h := newHarness()
	h.dedup.err = errors.New("redis down")

	res, err := h.proc.Submit(context.Background(), testForm(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSubmitted {
		t.Errorf("status = %q", res.Status)
	}
}

// TestSubmit_ValidationReleasesKey verifies a corrected form can reuse the key.
func TestSubmit_ValidationReleasesKey(t *testing.T) {
	h := newHarness()
	h.proc.Validator = fakeValidator{"employee_name": "Employee name is required"}

	_, err := h.proc.Submit(context.Background(), testForm(), "key-1")

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if vErr.Fields["employee_name"] == "" {
		t.Errorf("fields = %v", vErr.Fields)
	}
	if len(h.dedup.released) != 1 || h.dedup.released[0] != "key-1" {
		t.Errorf("released = %v", h.dedup.released)
	}
	if len(h.store.records) != 0 {
		t.Error("invalid submissions must not be stored")
	}
}

// TestSubmit_Unavailable verifies a retryable failure is stored as failed.
func TestSubmit_Unavailable(t *testing.T) {
	h := newHarness()
	h.creator.err = fmt.Errorf("create conversation: %w", helpdesk.ErrUnavailable)

	res, err := h.proc.Submit(context.Background(), testForm(), "")
	if !errors.Is(err, helpdesk.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %q", res.Status)
	}

	rec, _ := h.store.Get(context.Background(), res.ID)
	if rec.Status != StatusFailed || rec.Attempts != 1 || rec.LastError == "" {
		t.Errorf("record = %+v", rec)
	}
	if len(h.events.events) != 1 || h.events.events[0].Status != StatusFailed || h.events.events[0].Error == "" {
		t.Errorf("events = %+v", h.events.events)
	}
}

// TestSubmit_BuildFailure verifies builder errors fail the submission
// without calling the helpdesk.
func TestSubmit_BuildFailure(t *testing.T) {
	h := newHarness()
	h.proc.Builder = &fakeBuilder{err: errors.New("no mailbox configured and none discoverable")}

	res, err := h.proc.Submit(context.Background(), testForm(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %q", res.Status)
	}
	if len(h.creator.received) != 0 {
		t.Error("helpdesk must not be called when the build fails")
	}
}

// TestSubmit_Ambiguous verifies an ambiguous creation is never retried.
func TestSubmit_Ambiguous(t *testing.T) {
	h := newHarness()
	h.creator.err = fmt.Errorf("create conversation: %w", helpdesk.ErrCreationAmbiguous)

	res, err := h.proc.Submit(context.Background(), testForm(), "")
	if !errors.Is(err, helpdesk.ErrCreationAmbiguous) {
		t.Fatalf("expected ErrCreationAmbiguous, got %v", err)
	}
	if res.Status != StatusAmbiguous {
		t.Errorf("status = %q", res.Status)
	}
	if got := h.store.status(res.ID); got != StatusAmbiguous {
		t.Errorf("stored status = %q", got)
	}

	retryable, _ := h.store.ListRetryable(context.Background(), 5, 10)
	if len(retryable) != 0 {
		t.Errorf("ambiguous submission listed for retry: %+v", retryable)
	}
}

// TestSubmit_StoreFailure verifies nothing is sent when the record cannot
// be persisted.
func TestSubmit_StoreFailure(t *testing.T) {
	h := newHarness()
	h.store.failCreate = errors.New("db down")

	_, err := h.proc.Submit(context.Background(), testForm(), "key-9")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(h.creator.received) != 0 {
		t.Error("helpdesk must not be called without a stored record")
	}
	if len(h.dedup.released) != 1 {
		t.Errorf("key should be released, released = %v", h.dedup.released)
	}
}

// TestReprocess verifies a failed record can be retried once.
func TestReprocess(t *testing.T) {
	h := newHarness()
	h.creator.err = helpdesk.ErrUnavailable
	ctx := context.Background()

	res, _ := h.proc.Submit(ctx, testForm(), "")
	rec, _ := h.store.Get(ctx, res.ID)

	h.creator.err = nil
	again, err := h.proc.Reprocess(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Status != StatusSubmitted || again.TicketID != 501 {
		t.Errorf("result = %+v", again)
	}

	if _, err := h.proc.Reprocess(ctx, rec); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("second reprocess: expected ErrNotRetryable, got %v", err)
	}
}

// TestValidationError_Message verifies field names are listed in order.
func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "x", "a": "y"}}
	if got := err.Error(); got != "invalid submission: a, b" {
		t.Errorf("Error() = %q", got)
	}
}
