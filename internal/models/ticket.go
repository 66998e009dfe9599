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

// Fixed conversation attributes sent for every portal ticket.
const (
	ConversationTypeEmail = "email"
	ConversationActive    = "active"
	ThreadTypeCustomer    = "customer"
)

// TicketCustomer identifies the requester on the conversation. The keys
// are camelCase (firstName, lastName) because that is what the helpdesk
// conversation API accepts, the same shape as Customer.
type TicketCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ThreadCustomer is the author of a customer thread.
type ThreadCustomer struct {
	Email string `json:"email"`
}

// Thread is a single post within a conversation.
type Thread struct {
	Type        string         `json:"type"`
	Customer    ThreadCustomer `json:"customer"`
	Text        string         `json:"text"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// CustomFieldValue sets one custom field on the conversation. Value is
// a dropdown option id (int) or the raw string.
type CustomFieldValue struct {
	ID    int `json:"id"`
	Value any `json:"value"`
}

// TicketPayload is the conversation create request. It is built fresh
// per submission and serialised to the helpdesk as-is.
type TicketPayload struct {
	Subject      string             `json:"subject"`
	MailboxID    int                `json:"mailboxId"`
	Customer     TicketCustomer     `json:"customer"`
	Type         string             `json:"type"`
	Status       string             `json:"status"`
	Threads      []Thread           `json:"threads"`
	Tags         []string           `json:"tags"`
	CustomFields []CustomFieldValue `json:"customFields"`
}

// AttachFiles merges attachments into the single outgoing thread.
func (p *TicketPayload) AttachFiles(files []Attachment) {
	if len(files) == 0 || len(p.Threads) == 0 {
		return
	}
	p.Threads[0].Attachments = append(p.Threads[0].Attachments, files...)
}
