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

package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestPublisher_Encode verifies the envelope fields.
func TestPublisher_Encode(t *testing.T) {
	p := NewPublisher(nil, "events")
	p.now = func() time.Time { return time.Date(2026, 5, 4, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600)) }

	id, data, err := p.encode(SubmissionEvent{
		SubmissionID: "sub-1",
		RequestType:  "problem",
		Status:       "submitted",
		TicketID:     42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("event id %q is not a uuid", id)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := map[string]any{
		"id":            id,
		"type":          "submission.submitted",
		"occurred_at":   "2026-05-04T07:30:00Z",
		"submission_id": "sub-1",
		"request_type":  "problem",
		"status":        "submitted",
		"ticket_id":     float64(42),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["error"]; ok {
		t.Error("error should be omitted when empty")
	}
}

// TestPublisher_EncodeFailure verifies failures carry the error text and no
// ticket id.
func TestPublisher_EncodeFailure(t *testing.T) {
	p := NewPublisher(nil, "events")

	_, data, err := p.encode(SubmissionEvent{SubmissionID: "sub-2", Status: "failed", Error: "helpdesk unavailable"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]any
	json.Unmarshal(data, &got)
	if got["type"] != "submission.failed" || got["error"] != "helpdesk unavailable" {
		t.Errorf("envelope = %v", got)
	}
	if _, ok := got["ticket_id"]; ok {
		t.Error("ticket_id should be omitted without a ticket")
	}
}
