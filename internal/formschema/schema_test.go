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

package formschema

import (
	"reflect"
	"testing"

	"github.com/bcem/portal/internal/models"
)

const testSchema = `
request_types:
  problem:
    label: Report a problem
    tags: [technical]
    fields:
      - name: subject
        required: true
      - name: priority
        type: dropdown
        options: [Low, Normal, High]
        external_field: Priority
      - name: description
        label: Description
        required: true
      - name: internal_ref
        include_in_body: false
  onboarding:
    label: New employee
    tags: [hr, onboarding]
    fields:
      - name: employee_name
        required: true
      - name: systems
        type: multiselect
        options: [VPN, Mail, CRM]
`

func mustParse(t *testing.T) *Schema {
	t.Helper()
	s, err := Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return s
}

// TestParse_KeepsDocumentOrder verifies request types are listed in file order.
func TestParse_KeepsDocumentOrder(t *testing.T) {
	s := mustParse(t)

	if got := s.Keys(); !reflect.DeepEqual(got, []string{"problem", "onboarding"}) {
		t.Errorf("keys = %v", got)
	}

	rt, ok := s.RequestType("problem")
	if !ok {
		t.Fatal("expected problem request type")
	}
	if rt.Key != "problem" || rt.Label != "Report a problem" {
		t.Errorf("request type = %+v", rt)
	}
	if !reflect.DeepEqual(rt.Tags, []string{"technical"}) {
		t.Errorf("tags = %v", rt.Tags)
	}
}

// TestRequestType_FieldLookup verifies indexed field lookup.
func TestRequestType_FieldLookup(t *testing.T) {
	s := mustParse(t)
	rt, _ := s.RequestType("problem")

	f, ok := rt.Field("priority")
	if !ok {
		t.Fatal("expected priority field")
	}
	if f.ExternalField != "Priority" || f.Type != TypeDropdown {
		t.Errorf("priority = %+v", f)
	}

	if _, ok := rt.Field("missing"); ok {
		t.Error("unknown field should not be found")
	}
}

// TestRequestType_InclusionMap verifies include_in_body defaults to true.
func TestRequestType_InclusionMap(t *testing.T) {
	s := mustParse(t)
	rt, _ := s.RequestType("problem")

	m := rt.InclusionMap()
	if !m["subject"] || !m["priority"] || !m["description"] {
		t.Errorf("fields without include_in_body should default to true: %v", m)
	}
	if m["internal_ref"] {
		t.Error("internal_ref should be excluded from the body")
	}
}

// TestParse_RejectsDuplicates verifies field and type names are unique.
func TestParse_RejectsDuplicates(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "duplicate field",
			doc: `
request_types:
  a:
    fields:
      - name: x
      - name: x
`,
		},
		{
			name: "duplicate request type",
			doc: `
request_types:
  a:
    fields: []
  a:
    fields: []
`,
		},
		{
			name: "unnamed field",
			doc: `
request_types:
  a:
    fields:
      - label: No name
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("expected error, got none")
			}
		})
	}
}

// TestParse_EmptyDocument verifies an empty schema is valid.
func TestParse_EmptyDocument(t *testing.T) {
	s, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Errorf("expected no request types, got %v", s.Keys())
	}
}

// TestValidate verifies required fields and option checks.
func TestValidate(t *testing.T) {
	s := mustParse(t)

	tests := []struct {
		name     string
		sub      models.FormSubmission
		wantKeys []string
	}{
		{
			name: "valid problem",
			sub: models.FormSubmission{
				RequesterEmail: "a@example.com",
				RequestType:    "problem",
				Fields: []models.FormField{
					{Name: "subject", Values: []string{"Printer"}},
					{Name: "priority", Values: []string{" high "}},
					{Name: "description", Values: []string{"Jammed"}},
				},
			},
		},
		{
			name: "missing required and bad option",
			sub: models.FormSubmission{
				RequesterEmail: "a@example.com",
				RequestType:    "problem",
				Fields: []models.FormField{
					{Name: "subject", Values: []string{"  "}},
					{Name: "priority", Values: []string{"Whenever"}},
				},
			},
			wantKeys: []string{"description", "priority", "subject"},
		},
		{
			name: "multiselect option",
			sub: models.FormSubmission{
				RequesterEmail: "a@example.com",
				RequestType:    "onboarding",
				Fields: []models.FormField{
					{Name: "employee_name", Values: []string{"Alice"}},
					{Name: "systems", Values: []string{"VPN", "Fax"}},
				},
			},
			wantKeys: []string{"systems"},
		},
		{
			name:     "unknown request type",
			sub:      models.FormSubmission{RequestType: "nope"},
			wantKeys: []string{"request_type", "requester_email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := s.Validate(&tt.sub)
			if len(errs) != len(tt.wantKeys) {
				t.Fatalf("errors = %v, want keys %v", errs, tt.wantKeys)
			}
			for _, k := range tt.wantKeys {
				if _, ok := errs[k]; !ok {
					t.Errorf("missing error for %q in %v", k, errs)
				}
			}
		})
	}
}

func TestLoad_ExampleSchema(t *testing.T) {
	s, err := Load("../../config/forms.example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := s.Keys(), []string{"problem", "access"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	rt, _ := s.RequestType("problem")
	if rt.InclusionMap()["internal_note"] {
		t.Error("internal_note should be excluded from the body")
	}
}
