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

package app

import (
	"context"
	"log/slog"
	"reflect"
	"testing"

	"github.com/bcem/portal/internal/config"
	"github.com/bcem/portal/internal/models"
)

func TestTicketConfig(t *testing.T) {
	var mapping models.OrderedMap
	mapping.Set("request_type", "Request Type")
	mapping.Set("priority", "Priority")

	cfg := &config.Config{
		CustomFieldMapping: mapping,
		TagsByType:         map[string][]string{"problem": {"technical-issue"}},
		SubjectTemplates:   map[string]string{"problem": "Problem ( {priority} )"},
		RequestTypeValues:  map[string]string{"problem": "Technical problem"},
		BodyExcludedFields: []string{"internal_note"},
		DefaultEmailDomain: "example.com",
	}
	cfg.Helpdesk.MailboxID = 4

	tc := TicketConfig(cfg)
	if tc.MailboxID != 4 {
		t.Errorf("MailboxID = %d, want 4", tc.MailboxID)
	}
	if got := tc.CustomFieldMapping.Keys(); !reflect.DeepEqual(got, []string{"request_type", "priority"}) {
		t.Errorf("mapping keys = %v", got)
	}
	if tc.DefaultEmailDomain != "example.com" || tc.RequestTypeValues["problem"] != "Technical problem" {
		t.Errorf("unexpected config: %+v", tc)
	}
	if !reflect.DeepEqual(tc.BodyExcludedFields, []string{"internal_note"}) {
		t.Errorf("BodyExcludedFields = %v", tc.BodyExcludedFields)
	}
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		SetupLogging(tt.level)
		h := slog.Default().Handler()
		if !h.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %v not enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && h.Enabled(context.Background(), tt.want-1) {
			t.Errorf("level %q: below %v should be disabled", tt.level, tt.want)
		}
	}
}
