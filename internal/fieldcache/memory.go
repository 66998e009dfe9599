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

package fieldcache

import (
	"context"
	"sync"
	"time"

	"github.com/bcem/portal/internal/metrics"
	"github.com/bcem/portal/internal/models"
)

// DefaultTTL is how long cached field definitions are trusted.
const DefaultTTL = 5 * time.Minute

type memoryEntry struct {
	fields  []models.ExternalCustomField
	expires time.Time
}

// Memory caches definitions in process, per mailbox, for a fixed TTL.
// Writers replace the whole snapshot so readers never see a map that is
// being modified.
type Memory struct {
	source FieldSource
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	snapshot map[int]memoryEntry
}

// NewMemory creates an in-process cache in front of source. A ttl <= 0
// uses DefaultTTL.
func NewMemory(source FieldSource, ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		source:   source,
		ttl:      ttl,
		now:      time.Now,
		snapshot: make(map[int]memoryEntry),
	}
}

// CustomFields returns cached definitions or fetches and stores them.
// Fetch errors are not cached.
func (m *Memory) CustomFields(ctx context.Context, mailboxID int) ([]models.ExternalCustomField, error) {
	mc := metrics.Get()

	m.mu.RLock()
	entry, ok := m.snapshot[mailboxID]
	m.mu.RUnlock()

	if ok && m.now().Before(entry.expires) {
		mc.FieldCache.WithLabelValues("memory", "hit").Inc()
		return cloneFields(entry.fields), nil
	}
	mc.FieldCache.WithLabelValues("memory", "miss").Inc()

	fields, err := m.source.CustomFields(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	m.store(mailboxID, memoryEntry{fields: cloneFields(fields), expires: m.now().Add(m.ttl)})
	return fields, nil
}

// Invalidate forgets one mailbox.
func (m *Memory) Invalidate(mailboxID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[int]memoryEntry, len(m.snapshot))
	for id, e := range m.snapshot {
		if id != mailboxID {
			next[id] = e
		}
	}
	m.snapshot = next
}

func (m *Memory) store(mailboxID int, entry memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	next := make(map[int]memoryEntry, len(m.snapshot)+1)
	for id, e := range m.snapshot {
		if now.Before(e.expires) {
			next[id] = e
		}
	}
	next[mailboxID] = entry
	m.snapshot = next
}
