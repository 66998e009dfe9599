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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bcem/portal/internal/models"
)

// ResponseShape names the recognised layouts of a conversation create
// response.
type ResponseShape int

const (
	// ShapeTopLevel is {"id": N, ...}.
	ShapeTopLevel ResponseShape = iota + 1
	// ShapeEmbedded is {"_embedded": {"conversation": {"id": N, ...}}}.
	ShapeEmbedded
)

func (s ResponseShape) String() string {
	switch s {
	case ShapeTopLevel:
		return "top_level"
	case ShapeEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// CreatedConversation is a decoded conversation create response.
type CreatedConversation struct {
	Shape ResponseShape
	ID    int
}

// createdProbe holds both candidate id locations.
type createdProbe struct {
	ID       json.RawMessage `json:"id"`
	Embedded *struct {
		Conversation *struct {
			ID json.RawMessage `json:"id"`
		} `json:"conversation"`
	} `json:"_embedded"`
}

// DecodeCreatedConversation matches a response body against the two known
// shapes. Anything else, including both shapes carrying different ids,
// yields ErrCreationAmbiguous.
func DecodeCreatedConversation(data []byte) (CreatedConversation, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return CreatedConversation{}, fmt.Errorf("%w: empty body", ErrCreationAmbiguous)
	}

	var probe createdProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return CreatedConversation{}, fmt.Errorf("%w: %v", ErrCreationAmbiguous, err)
	}

	topID, topOK := parseID(probe.ID)

	var embeddedID int
	var embeddedOK bool
	if probe.Embedded != nil && probe.Embedded.Conversation != nil {
		embeddedID, embeddedOK = parseID(probe.Embedded.Conversation.ID)
	}

	switch {
	case topOK && embeddedOK && topID != embeddedID:
		return CreatedConversation{}, fmt.Errorf("%w: conflicting ids %d and %d", ErrCreationAmbiguous, topID, embeddedID)
	case topOK:
		return CreatedConversation{Shape: ShapeTopLevel, ID: topID}, nil
	case embeddedOK:
		return CreatedConversation{Shape: ShapeEmbedded, ID: embeddedID}, nil
	default:
		return CreatedConversation{}, fmt.Errorf("%w: unrecognised response shape", ErrCreationAmbiguous)
	}
}

// parseID accepts a positive JSON number or numeric string.
func parseID(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var n json.Number
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(s)
	} else if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}

	id, err := strconv.Atoi(n.String())
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CreateConversation posts the payload and returns the new conversation id.
func (c *Client) CreateConversation(ctx context.Context, payload *models.TicketPayload) (int, error) {
	data, err := c.do(ctx, "create_conversation", http.MethodPost, "conversations", nil, payload)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	created, err := DecodeCreatedConversation(data)
	if err != nil {
		slog.Error("conversation create response has no usable id",
			"mailbox_id", payload.MailboxID,
			"customer", payload.Customer.Email,
			"body", truncate(string(data), 512),
		)
		return 0, err
	}

	slog.Info("conversation created",
		"conversation_id", created.ID,
		"mailbox_id", payload.MailboxID,
		"response_shape", created.Shape.String(),
	)

	return created.ID, nil
}
