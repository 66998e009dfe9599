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

package models

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestFormSubmission_PreservesFieldOrder verifies that decoding keeps the
// order in which fields were sent, not alphabetical order.
func TestFormSubmission_PreservesFieldOrder(t *testing.T) {
	body := `{
		"requester_name": "Alice Smith",
		"requester_email": "alice@example.com",
		"request_type": "problem",
		"fields": {
			"zeta": "last letter",
			"alpha": "first letter",
			"systems": ["vpn", "mail"],
			"count": 3,
			"urgent": true,
			"notes": null
		}
	}`

	var sub FormSubmission
	if err := json.Unmarshal([]byte(body), &sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, f := range sub.Fields {
		names = append(names, f.Name)
	}
	want := []string{"zeta", "alpha", "systems", "count", "urgent", "notes"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("field order = %v, want %v", names, want)
	}

	if got := sub.Value("systems"); got != "vpn, mail" {
		t.Errorf("systems = %q, want %q", got, "vpn, mail")
	}
	if got := sub.Value("count"); got != "3" {
		t.Errorf("count = %q, want 3", got)
	}
	if got := sub.Value("urgent"); got != "true" {
		t.Errorf("urgent = %q, want true", got)
	}
	if !sub.Has("notes") || sub.Value("notes") != "" {
		t.Errorf("notes should be present and blank")
	}
	if sub.RequestType != "problem" {
		t.Errorf("request type = %q", sub.RequestType)
	}
}

// TestFormSubmission_RoundTripKeepsOrder verifies that stored submissions
// decode back into the same order.
func TestFormSubmission_RoundTripKeepsOrder(t *testing.T) {
	sub := FormSubmission{
		RequesterEmail: "bob@example.com",
		Fields: []FormField{
			{Name: "b", Values: []string{"2"}},
			{Name: "a", Values: []string{"x", "y"}},
		},
	}

	data, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back FormSubmission
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back.Fields, sub.Fields) {
		t.Errorf("fields = %+v, want %+v", back.Fields, sub.Fields)
	}
}

// TestFormSubmission_RejectsNestedObjects verifies unsupported values fail.
func TestFormSubmission_RejectsNestedObjects(t *testing.T) {
	var sub FormSubmission
	err := json.Unmarshal([]byte(`{"fields": {"a": {"nested": 1}}}`), &sub)
	if err == nil {
		t.Fatal("expected error for nested object value")
	}
}

// TestFormSubmission_SetOverwritesInPlace verifies Set keeps positions.
func TestFormSubmission_SetOverwritesInPlace(t *testing.T) {
	var sub FormSubmission
	sub.Set("first", "1")
	sub.Set("second", "2")
	sub.Set("first", "one")

	if len(sub.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(sub.Fields))
	}
	if sub.Fields[0].Name != "first" || sub.Fields[0].Joined() != "one" {
		t.Errorf("first field = %+v", sub.Fields[0])
	}
}

// TestOrderedMap_OverwriteKeepsPosition verifies insertion order semantics.
func TestOrderedMap_OverwriteKeepsPosition(t *testing.T) {
	m := OrderedMapOf("priority", "Priority", "team", "Team")
	m.Set("priority", "Urgency")
	m.Set("site", "Site")

	want := []string{"priority", "team", "site"}
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if v, _ := m.Get("priority"); v != "Urgency" {
		t.Errorf("priority = %q, want Urgency", v)
	}

	clone := m.Clone()
	clone.Set("priority", "changed")
	if v, _ := m.Get("priority"); v != "Urgency" {
		t.Error("clone should not share storage with the original")
	}
}

// TestOrderedMap_UnmarshalYAML verifies document order is preserved.
func TestOrderedMap_UnmarshalYAML(t *testing.T) {
	doc := `
zulu: Z Field
alpha: A Field
mike: M Field
`
	var m OrderedMap
	if err := yaml.Unmarshal([]byte(doc), &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"zulu", "alpha", "mike"}
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

// TestExternalCustomField_OptionIDs verifies numeric ordering of options.
func TestExternalCustomField_OptionIDs(t *testing.T) {
	f := ExternalCustomField{Options: map[string]string{
		"10": "Low", "2": "High", "1": "Critical", "x": "Other",
	}}

	want := []string{"1", "2", "10", "x"}
	if got := f.OptionIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("OptionIDs = %v, want %v", got, want)
	}
}

// TestTicketPayload_AttachFiles verifies attachments land on the thread.
func TestTicketPayload_AttachFiles(t *testing.T) {
	p := TicketPayload{Threads: []Thread{{Type: ThreadTypeCustomer}}}
	p.AttachFiles([]Attachment{{FileName: "log.txt", MimeType: "text/plain", Data: "aGk="}})

	if len(p.Threads[0].Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(p.Threads[0].Attachments))
	}

	empty := TicketPayload{}
	empty.AttachFiles([]Attachment{{FileName: "x"}})
	if len(empty.Threads) != 0 {
		t.Error("payload without threads should be left untouched")
	}
}

// TestTicketCustomer_JSONKeys verifies the camelCase keys the helpdesk
// expects for the conversation customer.
func TestTicketCustomer_JSONKeys(t *testing.T) {
	got, err := json.Marshal(TicketCustomer{Email: "a@example.com", FirstName: "Ann", LastName: "Lee"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"email":"a@example.com","firstName":"Ann","lastName":"Lee"}`
	if string(got) != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}
