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
	"fmt"

	"gopkg.in/yaml.v3"
)

// OrderedMap is a string-to-string mapping that remembers insertion
// order. Overwriting a key keeps its original position. The zero value
// is ready to use.
type OrderedMap struct {
	keys   []string
	values map[string]string
}

// OrderedMapOf builds a map from alternating key, value arguments.
func OrderedMapOf(kv ...string) OrderedMap {
	var m OrderedMap
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// Set stores value under key.
func (m *OrderedMap) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m OrderedMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m OrderedMap) Len() int {
	return len(m.keys)
}

// Clone returns an independent copy.
func (m OrderedMap) Clone() OrderedMap {
	var out OrderedMap
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// UnmarshalYAML decodes a YAML mapping in document order.
func (m *OrderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	var out OrderedMap
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, value string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return err
		}
		out.Set(key, value)
	}
	*m = out
	return nil
}
