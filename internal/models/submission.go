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

// Package models defines the data structures shared across the portal:
// form submissions coming in, helpdesk entities, and the conversation
// payload going out.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Attachment is a file uploaded with a submission, carried base64-encoded
// in the conversation thread.
type Attachment struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FormField is one named value of a submitted form. Multi-select inputs
// carry more than one value.
type FormField struct {
	Name   string
	Values []string
}

// FormSubmission is a submitted form. Fields keep the order in which the
// browser sent them; the rendered ticket body depends on it.
type FormSubmission struct {
	RequesterName  string
	RequesterEmail string
	RequestType    string
	Fields         []FormField
	Attachments    []Attachment
}

// Lookup returns the field with the given name.
func (s *FormSubmission) Lookup(name string) (FormField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FormField{}, false
}

// Has reports whether the field was submitted at all, even if blank.
func (s *FormSubmission) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Value returns the field value with multiple values joined by ", ".
// Missing fields yield "".
func (s *FormSubmission) Value(name string) string {
	f, ok := s.Lookup(name)
	if !ok {
		return ""
	}
	return f.Joined()
}

// Set replaces the values of an existing field in place or appends a new
// field at the end.
func (s *FormSubmission) Set(name string, values ...string) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Values = values
			return
		}
	}
	s.Fields = append(s.Fields, FormField{Name: name, Values: values})
}

// Joined returns the field's values joined by ", ".
func (f FormField) Joined() string {
	return strings.Join(f.Values, ", ")
}

// submissionJSON mirrors the wire format accepted by the portal API and
// stored alongside each submission record.
type submissionJSON struct {
	RequesterName  string       `json:"requester_name"`
	RequesterEmail string       `json:"requester_email"`
	RequestType    string       `json:"request_type"`
	Fields         formFields   `json:"fields"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// MarshalJSON encodes fields as a JSON object in submission order.
func (s FormSubmission) MarshalJSON() ([]byte, error) {
	return json.Marshal(submissionJSON{
		RequesterName:  s.RequesterName,
		RequesterEmail: s.RequesterEmail,
		RequestType:    s.RequestType,
		Fields:         formFields(s.Fields),
		Attachments:    s.Attachments,
	})
}

// UnmarshalJSON decodes a submission, keeping the key order of "fields".
func (s *FormSubmission) UnmarshalJSON(data []byte) error {
	var raw submissionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = FormSubmission{
		RequesterName:  raw.RequesterName,
		RequesterEmail: raw.RequesterEmail,
		RequestType:    raw.RequestType,
		Fields:         []FormField(raw.Fields),
		Attachments:    raw.Attachments,
	}
	return nil
}

// formFields is the ordered JSON object form of []FormField. Single
// values are written as strings, multiple values as arrays.
type formFields []FormField

func (f formFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if len(field.Values) == 1 {
			val, err = json.Marshal(field.Values[0])
		} else {
			values := field.Values
			if values == nil {
				values = []string{}
			}
			val, err = json.Marshal(values)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *formFields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode fields: expected object, got %v", tok)
	}

	sub := FormSubmission{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode field name: %w", err)
		}
		name, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode field %q: %w", name, err)
		}
		values, err := decodeFieldValue(raw)
		if err != nil {
			return fmt.Errorf("decode field %q: %w", name, err)
		}
		sub.Set(name, values...)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}

	*f = sub.Fields
	return nil
}

// decodeFieldValue accepts a scalar, null, or an array of scalars.
func decodeFieldValue(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			v, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}

	v, err := scalarString(trimmed)
	if err != nil {
		return nil, err
	}
	return []string{v}, nil
}

func scalarString(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
