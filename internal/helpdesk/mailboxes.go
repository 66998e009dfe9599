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

package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bcem/portal/internal/models"
)

// mailboxesResponse is the GET /mailboxes envelope.
type mailboxesResponse struct {
	Embedded struct {
		Mailboxes []models.Mailbox `json:"mailboxes"`
	} `json:"_embedded"`
}

// customFieldsResponse is the GET /mailboxes/{id}/custom_fields envelope.
type customFieldsResponse struct {
	Embedded struct {
		CustomFields []customFieldJSON `json:"custom_fields"`
	} `json:"_embedded"`
}

type customFieldJSON struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Options optionSet `json:"options"`
}

// optionSet decodes dropdown options. The helpdesk sends an object of
// id -> label, but an option list that happens to be numbered from zero
// arrives as a plain array.
type optionSet map[string]string

func (o *optionSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}

	if data[0] == '[' {
		var labels []any
		if err := json.Unmarshal(data, &labels); err != nil {
			return fmt.Errorf("decode option list: %w", err)
		}
		out := make(optionSet, len(labels))
		for i, l := range labels {
			out[strconv.Itoa(i)] = labelString(l)
		}
		*o = out
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode option map: %w", err)
	}
	out := make(optionSet, len(raw))
	for id, l := range raw {
		out[id] = labelString(l)
	}
	*o = out
	return nil
}

func labelString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// ListMailboxes returns the mailboxes in the order the helpdesk reports them.
func (c *Client) ListMailboxes(ctx context.Context) ([]models.Mailbox, error) {
	data, err := c.do(ctx, "list_mailboxes", http.MethodGet, "mailboxes", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}

	var page mailboxesResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode mailboxes response: %w", err)
	}

	return page.Embedded.Mailboxes, nil
}

// ListMailboxCustomFields returns the custom field definitions of a mailbox.
func (c *Client) ListMailboxCustomFields(ctx context.Context, mailboxID int) ([]models.ExternalCustomField, error) {
	path := fmt.Sprintf("mailboxes/%d/custom_fields", mailboxID)

	data, err := c.do(ctx, "list_custom_fields", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list custom fields for mailbox %d: %w", mailboxID, err)
	}

	var page customFieldsResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode custom fields response: %w", err)
	}

	fields := make([]models.ExternalCustomField, 0, len(page.Embedded.CustomFields))
	for _, f := range page.Embedded.CustomFields {
		fields = append(fields, models.ExternalCustomField{
			ID:      f.ID,
			Name:    f.Name,
			Type:    f.Type,
			Options: map[string]string(f.Options),
		})
	}

	return fields, nil
}
