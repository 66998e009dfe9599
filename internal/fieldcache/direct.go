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

// Package fieldcache supplies mailbox custom field definitions to the
// ticket builder, either straight from the helpdesk or through a cache
// keyed by mailbox id.
package fieldcache

import (
	"context"

	"github.com/bcem/portal/internal/models"
)

// Lister fetches custom field definitions from the helpdesk.
type Lister interface {
	ListMailboxCustomFields(ctx context.Context, mailboxID int) ([]models.ExternalCustomField, error)
}

// FieldSource is satisfied by Direct and by the other caches.
type FieldSource interface {
	CustomFields(ctx context.Context, mailboxID int) ([]models.ExternalCustomField, error)
}

// Direct fetches on every call. Nothing is shared between builds.
type Direct struct {
	lister Lister
}

// NewDirect wraps a Lister.
func NewDirect(lister Lister) *Direct {
	return &Direct{lister: lister}
}

// CustomFields implements ticket.FieldSource.
func (d *Direct) CustomFields(ctx context.Context, mailboxID int) ([]models.ExternalCustomField, error) {
	return d.lister.ListMailboxCustomFields(ctx, mailboxID)
}

func cloneFields(in []models.ExternalCustomField) []models.ExternalCustomField {
	if in == nil {
		return nil
	}
	out := make([]models.ExternalCustomField, len(in))
	for i, f := range in {
		out[i] = f
		if f.Options != nil {
			opts := make(map[string]string, len(f.Options))
			for k, v := range f.Options {
				opts[k] = v
			}
			out[i].Options = opts
		}
	}
	return out
}
