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

package portal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bcem/portal/internal/helpdesk"
	"github.com/bcem/portal/internal/models"
	"github.com/bcem/portal/internal/submission"
	"github.com/bcem/portal/internal/ticket"
)

const maxJSONBodyBytes = 32 << 20

// IdempotencyHeader lets clients retry a submit safely.
const IdempotencyHeader = "Idempotency-Key"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	healthy := true
	for name, p := range h.checks {
		if err := p.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "dependency", name, "error", err)
			checks[name] = "unavailable"
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (h *Handler) serveMailboxHealth(w http.ResponseWriter, r *http.Request) {
	valid := h.mailbox != nil && h.mailbox.ValidateMailboxID(r.Context())
	code := http.StatusOK
	if !valid {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]bool{"mailbox_valid": valid})
}

type fieldView struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type,omitempty"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type requestTypeView struct {
	Key    string      `json:"key"`
	Label  string      `json:"label"`
	Fields []fieldView `json:"fields"`
}

func (h *Handler) serveRequestTypes(w http.ResponseWriter, r *http.Request) {
	out := []requestTypeView{}
	for _, key := range h.schema.Keys() {
		rt, _ := h.schema.RequestType(key)
		view := requestTypeView{Key: key, Label: rt.Label, Fields: []fieldView{}}
		for _, f := range rt.Fields {
			view.Fields = append(view.Fields, fieldView{
				Name:     f.Name,
				Label:    f.Label,
				Type:     f.Type,
				Required: f.Required,
				Options:  f.Options,
			})
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_types": out})
}

type submitResponse struct {
	ID       string            `json:"id,omitempty"`
	Status   string            `json:"status,omitempty"`
	TicketID int               `json:"ticket_id,omitempty"`
	Error    string            `json:"error,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (h *Handler) serveSubmit(w http.ResponseWriter, r *http.Request) {
	form, status, err := h.decodeSubmission(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	// A started submission runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.submitter.Submit(ctx, form, strings.TrimSpace(r.Header.Get(IdempotencyHeader)))

	var resp submitResponse
	if res != nil {
		resp = submitResponse{ID: res.ID, Status: res.Status, TicketID: res.TicketID}
	}

	var vErr *submission.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, resp)
	case errors.As(err, &vErr):
		resp.Error = "validation failed"
		resp.Fields = vErr.Fields
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, submission.ErrDuplicate):
		resp.Error = "this request was already submitted"
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, helpdesk.ErrCreationAmbiguous):
		resp.Error = "the ticket may have been created but could not be confirmed; quote this id when contacting support"
		writeJSON(w, http.StatusBadGateway, resp)
	case errors.Is(err, helpdesk.ErrUnavailable):
		resp.Error = "the helpdesk is unavailable, please try again later"
		writeJSON(w, http.StatusServiceUnavailable, resp)
	case errors.Is(err, ticket.ErrMailboxUnresolvable):
		resp.Error = "the helpdesk is not configured correctly; an administrator has been notified"
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		resp.Error = "the request could not be submitted"
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// decodeSubmission reads a JSON or multipart body. The returned status is
// meaningful only with an error.
func (h *Handler) decodeSubmission(r *http.Request) (*models.FormSubmission, int, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		return h.decodeMultipart(r)
	case "application/json", "":
		var form models.FormSubmission
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBodyBytes))
		if err := dec.Decode(&form); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, http.StatusRequestEntityTooLarge, errors.New("request body too large")
			}
			return nil, http.StatusBadRequest, errors.New("invalid JSON body")
		}
		return &form, 0, nil
	default:
		return nil, http.StatusUnsupportedMediaType, errors.New("expected application/json or multipart/form-data")
	}
}

type submissionView struct {
	ID          string    `json:"id"`
	RequestType string    `json:"request_type"`
	Status      string    `json:"status"`
	TicketID    *int      `json:"ticket_id,omitempty"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *Handler) serveSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	rec, err := h.records.Get(r.Context(), id)
	if err != nil {
		slog.Error("failed to load submission", "submission_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load submission")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	writeJSON(w, http.StatusOK, submissionView{
		ID:          rec.ID,
		RequestType: rec.RequestType,
		Status:      rec.Status,
		TicketID:    rec.TicketID,
		Attempts:    rec.Attempts,
		LastError:   rec.LastError,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	})
}
