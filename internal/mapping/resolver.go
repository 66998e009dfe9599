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

// Package mapping resolves the pieces of a ticket that come from
// configuration: the custom-field mapping, tags, subject and body. All
// functions are pure.
package mapping

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bcem/portal/internal/formschema"
	"github.com/bcem/portal/internal/models"
)

const (
	// DefaultTemplateKey selects the subject template used when a request
	// type has none of its own.
	DefaultTemplateKey = "_default"

	// FallbackSubject is used when no template is configured at all.
	FallbackSubject = "IT Request"

	// SubjectField is the form field whose value overrides templating.
	SubjectField = "subject"

	bodyLineSeparator = "<br>\n"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// ResolveCustomFieldMapping merges the static mapping with the
// external_field declarations of the schema. Schema declarations win.
func ResolveCustomFieldMapping(static models.OrderedMap, defs []formschema.FieldDefinition) models.OrderedMap {
	out := static.Clone()
	for _, def := range defs {
		if strings.TrimSpace(def.ExternalField) == "" {
			continue
		}
		out.Set(def.Name, def.ExternalField)
	}
	return out
}

// ResolveTags returns the schema tags followed by the static tags for the
// request type, without duplicates.
func ResolveTags(requestType string, schemaTags []string, staticByType map[string][]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(schemaTags)+len(staticByType[requestType]))

	add := func(tags []string) {
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	add(schemaTags)
	add(staticByType[requestType])

	return out
}

// ResolveSubject returns the submitter's own subject when given, or the
// request type's template with {field} placeholders filled in. Unknown
// placeholders are left as they are.
func ResolveSubject(requestType string, form *models.FormSubmission, templates map[string]string) string {
	if s := strings.TrimSpace(form.Value(SubjectField)); s != "" {
		return s
	}

	tmpl, ok := templates[requestType]
	if !ok || tmpl == "" {
		tmpl, ok = templates[DefaultTemplateKey]
	}
	if !ok || tmpl == "" {
		tmpl = FallbackSubject
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		name := ph[1 : len(ph)-1]
		if !form.Has(name) {
			return ph
		}
		return form.Value(name)
	})
}

// ResolveBody renders the submitted fields as "Label: value" lines in
// submission order. Labels and values are HTML-escaped.
func ResolveBody(form *models.FormSubmission, excluded []string, inclusion map[string]bool) string {
	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[name] = true
	}

	var lines []string
	for _, field := range form.Fields {
		if skip[field.Name] {
			continue
		}
		if include, declared := inclusion[field.Name]; declared && !include {
			continue
		}

		value := strings.TrimSpace(field.Joined())
		if value == "" {
			continue
		}

		lines = append(lines, html.EscapeString(FieldLabel(field.Name))+": "+html.EscapeString(value))
	}

	return strings.Join(lines, bodyLineSeparator)
}

// FieldLabel turns a field name such as "employee_name" into
// "Employee name".
func FieldLabel(name string) string {
	label := strings.ReplaceAll(name, "_", " ")
	r, size := utf8.DecodeRuneInString(label)
	if r == utf8.RuneError {
		return label
	}
	return string(unicode.ToUpper(r)) + label[size:]
}
