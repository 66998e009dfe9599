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

package ticket

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bcem/portal/internal/metrics"
	"github.com/bcem/portal/internal/models"
)

// resolveCustomFields walks the mapping in order and returns one value per
// form field that maps onto an existing custom field of the mailbox.
func (b *Builder) resolveCustomFields(ctx context.Context, mailboxID int, form *models.FormSubmission, requestType string, fieldMap models.OrderedMap) []models.CustomFieldValue {
	out := []models.CustomFieldValue{}
	if fieldMap.Len() == 0 {
		return out
	}

	var defs []models.ExternalCustomField
	if b.fields != nil {
		var err error
		defs, err = b.fields.CustomFields(ctx, mailboxID)
		if err != nil {
			slog.Warn("custom fields unavailable, sending ticket without them",
				"mailbox_id", mailboxID,
				"error", err,
			)
			metrics.Get().DroppedFields.WithLabelValues(ReasonFieldsUnavailable).Add(float64(fieldMap.Len()))
			return out
		}
	}

	byName := make(map[string]models.ExternalCustomField, len(defs))
	for _, d := range defs {
		if _, seen := byName[d.Name]; !seen {
			byName[d.Name] = d
		}
	}

	for _, formName := range fieldMap.Keys() {
		externalName, _ := fieldMap.Get(formName)

		// Text fields are sent as submitted; the trimmed value is only
		// used for matching.
		raw := form.Value(formName)
		value := strings.TrimSpace(raw)
		if value == "" && formName == requestTypeField {
			raw, value = requestType, strings.TrimSpace(requestType)
		}
		if value == "" {
			continue
		}

		def, ok := byName[externalName]
		if !ok {
			drop(mailboxID, &UnmappableFieldError{
				FormField:     formName,
				ExternalField: externalName,
				Value:         value,
				Reason:        ReasonMissingField,
			})
			continue
		}

		if formName == requestTypeField {
			if translated, ok := b.cfg.RequestTypeValues[value]; ok {
				raw, value = translated, translated
			}
		}

		if def.Type != models.CustomFieldDropdown {
			out = append(out, models.CustomFieldValue{ID: def.ID, Value: raw})
			continue
		}

		optionID, ok := matchOption(def, value)
		if !ok {
			drop(mailboxID, &UnmappableFieldError{
				FormField:     formName,
				ExternalField: externalName,
				Value:         value,
				Reason:        ReasonNoMatchingOption,
			})
			continue
		}
		out = append(out, models.CustomFieldValue{ID: def.ID, Value: optionID})
	}

	return out
}

// matchOption finds the option whose label equals value, ignoring case and
// surrounding whitespace. Numeric option ids are returned as ints.
func matchOption(def models.ExternalCustomField, value string) (any, bool) {
	value = strings.TrimSpace(value)
	for _, id := range def.OptionIDs() {
		if !strings.EqualFold(strings.TrimSpace(def.Options[id]), value) {
			continue
		}
		if n, err := strconv.Atoi(id); err == nil {
			return n, true
		}
		return id, true
	}
	return nil, false
}

func drop(mailboxID int, err *UnmappableFieldError) {
	slog.Warn("custom field dropped",
		"mailbox_id", mailboxID,
		"form_field", err.FormField,
		"custom_field", err.ExternalField,
		"reason", err.Reason,
		"error", err,
	)
	metrics.Get().DroppedFields.WithLabelValues(err.Reason).Inc()
}
