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

// Package ticket turns a form submission into a helpdesk conversation
// payload: customer, mailbox, subject, body, custom fields and tags.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcem/portal/internal/formschema"
	"github.com/bcem/portal/internal/mapping"
	"github.com/bcem/portal/internal/metrics"
	"github.com/bcem/portal/internal/models"
)

// requestTypeField is the form field whose value is translated through
// Config.RequestTypeValues before it reaches the helpdesk.
const requestTypeField = "request_type"

// ErrMailboxUnresolvable means no mailbox id is configured and the
// helpdesk reports no mailboxes.
var ErrMailboxUnresolvable = errors.New("no mailbox configured and none discoverable")

// Reasons a custom field value is left out of a ticket.
const (
	ReasonMissingField      = "missing_field"
	ReasonNoMatchingOption  = "no_matching_option"
	ReasonFieldsUnavailable = "fields_unavailable"
)

// UnmappableFieldError describes a form value that could not be sent as a
// custom field. It is logged and counted, never returned from a build.
type UnmappableFieldError struct {
	FormField     string
	ExternalField string
	Value         string
	Reason        string
}

func (e *UnmappableFieldError) Error() string {
	switch e.Reason {
	case ReasonMissingField:
		return fmt.Sprintf("custom field %q does not exist in mailbox (form field %q)", e.ExternalField, e.FormField)
	case ReasonNoMatchingOption:
		return fmt.Sprintf("no option of custom field %q matches %q (form field %q)", e.ExternalField, e.Value, e.FormField)
	default:
		return fmt.Sprintf("custom field %q dropped: %s", e.ExternalField, e.Reason)
	}
}

// Client is the part of the helpdesk API the builder needs.
type Client interface {
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, firstName, lastName, email string) (*models.Customer, error)
	ListMailboxes(ctx context.Context) ([]models.Mailbox, error)
}

// FieldSource supplies the custom field definitions of a mailbox.
type FieldSource interface {
	CustomFields(ctx context.Context, mailboxID int) ([]models.ExternalCustomField, error)
}

// Config is built once at startup and shared by every build.
type Config struct {
	// MailboxID is the configured mailbox. Zero means discover it.
	MailboxID int

	// CustomFieldMapping maps form field names to helpdesk custom field
	// names. Schema external_field declarations override it.
	CustomFieldMapping models.OrderedMap

	TagsByType         map[string][]string
	SubjectTemplates   map[string]string
	RequestTypeValues  map[string]string
	BodyExcludedFields []string

	// DefaultEmailDomain is appended to requester addresses given
	// without a domain.
	DefaultEmailDomain string
}

// Builder assembles ticket payloads.
type Builder struct {
	cfg    *Config
	client Client
	schema *formschema.Schema
	fields FieldSource
}

// New creates a Builder. A nil schema behaves like an empty one.
func New(cfg *Config, client Client, schema *formschema.Schema, fields FieldSource) *Builder {
	if cfg == nil {
		cfg = &Config{}
	}
	if schema == nil {
		schema = &formschema.Schema{}
	}
	return &Builder{
		cfg:    cfg,
		client: client,
		schema: schema,
		fields: fields,
	}
}

// BuildTicketData resolves the customer and mailbox and assembles the
// conversation payload for a submission. Customer and mailbox failures
// abort the build; custom field problems only drop the affected field.
//
// Attachments are not added here; see models.TicketPayload.AttachFiles.
func (b *Builder) BuildTicketData(ctx context.Context, form *models.FormSubmission, requestType string) (*models.TicketPayload, error) {
	m := metrics.Get()

	payload, err := b.build(ctx, form, requestType)
	if err != nil {
		m.TicketBuilds.WithLabelValues("error").Inc()
		return nil, err
	}

	m.TicketBuilds.WithLabelValues("ok").Inc()
	return payload, nil
}

func (b *Builder) build(ctx context.Context, form *models.FormSubmission, requestType string) (*models.TicketPayload, error) {
	email := b.normalizeEmail(form.RequesterEmail)
	firstName, lastName := SplitName(form.RequesterName)

	customer, err := b.findOrCreateCustomer(ctx, email, firstName, lastName)
	if err != nil {
		return nil, err
	}
	if firstName == "" && lastName == "" {
		firstName, lastName = customer.FirstName, customer.LastName
	}

	mailboxID, err := b.GetConfiguredMailboxID(ctx)
	if err != nil {
		return nil, err
	}

	var (
		defs       []formschema.FieldDefinition
		schemaTags []string
		inclusion  map[string]bool
	)
	if rt, ok := b.schema.RequestType(requestType); ok {
		defs = rt.Fields
		schemaTags = rt.Tags
		inclusion = rt.InclusionMap()
	}

	subject := mapping.ResolveSubject(requestType, form, b.cfg.SubjectTemplates)
	body := mapping.ResolveBody(form, b.cfg.BodyExcludedFields, inclusion)
	fieldMap := mapping.ResolveCustomFieldMapping(b.cfg.CustomFieldMapping, defs)
	customFields := b.resolveCustomFields(ctx, mailboxID, form, requestType, fieldMap)
	tags := mapping.ResolveTags(requestType, schemaTags, b.cfg.TagsByType)

	return &models.TicketPayload{
		Subject:   subject,
		MailboxID: mailboxID,
		Customer: models.TicketCustomer{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		},
		Type:   models.ConversationTypeEmail,
		Status: models.ConversationActive,
		Threads: []models.Thread{{
			Type:     models.ThreadTypeCustomer,
			Customer: models.ThreadCustomer{Email: email},
			Text:     body,
		}},
		Tags:         tags,
		CustomFields: customFields,
	}, nil
}

// findOrCreateCustomer is not atomic: two first-time submissions from the
// same address may both create a customer upstream.
func (b *Builder) findOrCreateCustomer(ctx context.Context, email, firstName, lastName string) (*models.Customer, error) {
	customer, err := b.client.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}
	if customer != nil {
		return customer, nil
	}

	customer, err = b.client.CreateCustomer(ctx, firstName, lastName, email)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}

	slog.Info("created helpdesk customer", "customer_id", customer.ID, "email", email)
	return customer, nil
}

func (b *Builder) normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" || strings.Contains(email, "@") || b.cfg.DefaultEmailDomain == "" {
		return email
	}
	return email + "@" + strings.TrimPrefix(b.cfg.DefaultEmailDomain, "@")
}

// SplitName splits a display name at its first space. Everything after
// the space, including further spaces, is the last name.
func SplitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

// GetConfiguredMailboxID returns the configured mailbox without calling
// the helpdesk, or the first mailbox the helpdesk lists.
func (b *Builder) GetConfiguredMailboxID(ctx context.Context) (int, error) {
	if b.cfg.MailboxID > 0 {
		return b.cfg.MailboxID, nil
	}

	boxes, err := b.client.ListMailboxes(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve mailbox: %w", err)
	}
	if len(boxes) == 0 {
		return 0, ErrMailboxUnresolvable
	}

	slog.Debug("using first listed mailbox", "mailbox_id", boxes[0].ID, "mailbox_name", boxes[0].Name)
	return boxes[0].ID, nil
}

// ValidateMailboxID reports whether the configured mailbox exists in the
// helpdesk. It never fails; the reason for a false result is logged.
func (b *Builder) ValidateMailboxID(ctx context.Context) bool {
	if b.cfg.MailboxID <= 0 {
		slog.Warn("mailbox validation: no mailbox id configured")
		return false
	}

	boxes, err := b.client.ListMailboxes(ctx)
	if err != nil {
		slog.Warn("mailbox validation: could not list mailboxes",
			"mailbox_id", b.cfg.MailboxID,
			"error", err,
		)
		return false
	}

	for _, box := range boxes {
		if box.ID == b.cfg.MailboxID {
			slog.Info("mailbox validation: configured mailbox found",
				"mailbox_id", box.ID,
				"mailbox_name", box.Name,
			)
			return true
		}
	}

	slog.Warn("mailbox validation: configured mailbox not found",
		"mailbox_id", b.cfg.MailboxID,
		"available", len(boxes),
	)
	return false
}
