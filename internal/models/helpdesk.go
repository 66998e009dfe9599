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
	"sort"
	"strconv"
)

// Customer is a helpdesk customer record.
type Customer struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Mailbox is a helpdesk routing destination.
type Mailbox struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Custom field types reported by the helpdesk.
const (
	CustomFieldDropdown = "dropdown"
	CustomFieldText     = "text"
)

// ExternalCustomField is a custom field definition of a mailbox. For
// dropdowns, Options maps option id to label.
type ExternalCustomField struct {
	ID      int               `json:"id"`
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Options map[string]string `json:"options,omitempty"`
}

// OptionIDs returns the dropdown option ids in ascending numeric order,
// with non-numeric ids sorted lexically after them.
func (f ExternalCustomField) OptionIDs() []string {
	ids := make([]string, 0, len(f.Options))
	for id := range f.Options {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}
