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

// Package formschema loads the YAML definition of the portal's request
// forms: which request types exist, which fields each one collects, and
// how fields map onto helpdesk custom fields.
package formschema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bcem/portal/internal/models"
)

// Field input types that get extra validation.
const (
	TypeDropdown = "dropdown"
	TypeMulti    = "multiselect"
)

// FieldDefinition declares one form field.
type FieldDefinition struct {
	Name          string   `yaml:"name"`
	Label         string   `yaml:"label"`
	Type          string   `yaml:"type"`
	Required      bool     `yaml:"required"`
	Options       []string `yaml:"options"`
	ExternalField string   `yaml:"external_field"`
	IncludeInBody *bool    `yaml:"include_in_body"`
}

// InBody reports whether the field is rendered into the ticket body.
// Fields are included unless the schema says otherwise.
func (d FieldDefinition) InBody() bool {
	return d.IncludeInBody == nil || *d.IncludeInBody
}

// RequestType is one selectable form.
type RequestType struct {
	Key    string            `yaml:"-"`
	Label  string            `yaml:"label"`
	Tags   []string          `yaml:"tags"`
	Fields []FieldDefinition `yaml:"fields"`

	index map[string]int
}

// Field returns the definition with the given name.
func (rt *RequestType) Field(name string) (FieldDefinition, bool) {
	i, ok := rt.index[name]
	if !ok {
		return FieldDefinition{}, false
	}
	return rt.Fields[i], true
}

// InclusionMap returns include_in_body per field name.
func (rt *RequestType) InclusionMap() map[string]bool {
	out := make(map[string]bool, len(rt.Fields))
	for _, f := range rt.Fields {
		out[f.Name] = f.InBody()
	}
	return out
}

func (rt *RequestType) buildIndex() error {
	rt.index = make(map[string]int, len(rt.Fields))
	for i, f := range rt.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("request type %q: field %d has no name", rt.Key, i)
		}
		if _, dup := rt.index[name]; dup {
			return fmt.Errorf("request type %q: duplicate field %q", rt.Key, name)
		}
		rt.Fields[i].Name = name
		rt.index[name] = i
	}
	return nil
}

// Schema holds every request type, in document order.
type Schema struct {
	order []string
	types map[string]*RequestType
}

// Load reads and parses a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form schema %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a schema from YAML of the form:
//
//	request_types:
//	  problem:
//	    label: Report a problem
//	    tags: [technical]
//	    fields:
//	      - name: priority
//	        type: dropdown
//	        options: [Low, High]
//	        external_field: Priority
func Parse(data []byte) (*Schema, error) {
	var doc struct {
		RequestTypes yaml.Node `yaml:"request_types"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse form schema: %w", err)
	}

	s := &Schema{types: make(map[string]*RequestType)}
	node := doc.RequestTypes
	if node.Kind == 0 {
		return s, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse form schema: request_types must be a mapping")
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, dup := s.types[key]; dup {
			return nil, fmt.Errorf("parse form schema: duplicate request type %q", key)
		}

		var rt RequestType
		if err := node.Content[i+1].Decode(&rt); err != nil {
			return nil, fmt.Errorf("parse request type %q: %w", key, err)
		}
		rt.Key = key
		if err := rt.buildIndex(); err != nil {
			return nil, fmt.Errorf("parse form schema: %w", err)
		}

		s.order = append(s.order, key)
		s.types[key] = &rt
	}

	return s, nil
}

// RequestType returns the request type with the given key.
func (s *Schema) RequestType(key string) (*RequestType, bool) {
	rt, ok := s.types[key]
	return rt, ok
}

// Keys returns the request type keys in document order.
func (s *Schema) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Validate checks a submission against its request type and returns a
// message per offending field. An empty map means the submission is valid.
func (s *Schema) Validate(sub *models.FormSubmission) map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(sub.RequesterEmail) == "" {
		errs["requester_email"] = "Requester email is required"
	}

	rt, ok := s.RequestType(sub.RequestType)
	if !ok {
		errs["request_type"] = fmt.Sprintf("Unknown request type %q", sub.RequestType)
		return errs
	}

	for _, def := range rt.Fields {
		field, present := sub.Lookup(def.Name)
		blank := !present || strings.TrimSpace(field.Joined()) == ""

		if def.Required && blank {
			errs[def.Name] = fmt.Sprintf("%s is required", labelOf(def))
			continue
		}
		if blank || len(def.Options) == 0 {
			continue
		}
		if def.Type != TypeDropdown && def.Type != TypeMulti {
			continue
		}
		for _, v := range field.Values {
			if strings.TrimSpace(v) == "" {
				continue
			}
			if !hasOption(def.Options, v) {
				errs[def.Name] = fmt.Sprintf("%q is not a valid choice for %s", v, labelOf(def))
				break
			}
		}
	}

	return errs
}

func labelOf(def FieldDefinition) string {
	if def.Label != "" {
		return def.Label
	}
	return def.Name
}

func hasOption(options []string, value string) bool {
	value = strings.TrimSpace(value)
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), value) {
			return true
		}
	}
	return false
}
