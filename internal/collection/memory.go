package collection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/recordlink/recordlink/internal/record"
)

// Memory is an in-process collection backend. It is the reference
// implementation of the Collection contract and backs unit tests; all reads
// return deep copies so callers never alias stored documents.
type Memory struct {
	name          string
	keyField      string
	localKeyField string

	mu   sync.RWMutex
	docs map[string]record.Record
}

// NewMemory creates an empty in-memory collection.
func NewMemory(name, keyField, localKeyField string) *Memory {
	return &Memory{
		name:          name,
		keyField:      keyField,
		localKeyField: localKeyField,
		docs:          make(map[string]record.Record),
	}
}

// Name returns the entity name.
func (m *Memory) Name() string { return m.name }

// KeyField returns the externally-visible identifier field name.
func (m *Memory) KeyField() string { return m.keyField }

// LocalKeyField returns the internally-assigned identifier field name.
func (m *Memory) LocalKeyField() string { return m.localKeyField }

// Insert stores a record, assigning a UUID local key when the record does not
// carry one. The stored copy (including the assigned key) is returned.
func (m *Memory) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	doc := record.Clone(rec)

	key, ok := doc.Get(m.localKeyField)
	if !ok || record.IsEmpty(key) {
		key = uuid.NewString()
		doc.Set(m.localKeyField, key)
	}

	id, ok := key.(string)
	if !ok {
		id = fmt.Sprintf("%v", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[id]; exists {
		return nil, fmt.Errorf("%w: %s %q", ErrDuplicateKey, m.name, id)
	}
	m.docs[id] = doc
	return record.Clone(doc), nil
}

// Get returns the first record matching the query, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, query record.Record) (record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.sortedKeys() {
		if record.Matches(m.docs[id], query) {
			return record.Clone(m.docs[id]), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, m.name)
}

// Find returns all records matching the query, ordered by local key.
func (m *Memory) Find(ctx context.Context, query record.Record) ([]record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []record.Record
	for _, id := range m.sortedKeys() {
		if len(query) == 0 || record.Matches(m.docs[id], query) {
			out = append(out, record.Clone(m.docs[id]))
		}
	}
	return out, nil
}

// Update applies the set fields to every matching record.
func (m *Memory) Update(ctx context.Context, match record.Record, set record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.docs {
		if !record.Matches(doc, match) {
			continue
		}
		for path, value := range set {
			doc.Set(path, record.CloneValue(value))
		}
	}
	return nil
}

// AddOrUpdateChildInCollection upserts an entry into the embedded list of the
// matching record.
func (m *Memory) AddOrUpdateChildInCollection(ctx context.Context, match record.Record, listField string, entry record.Record, entryKeyField string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.docs {
		if !record.Matches(doc, match) {
			continue
		}
		list, _ := doc.Get(listField)
		doc.Set(listField, upsertListEntry(list, record.Clone(entry), entryKeyField))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, m.name)
}

// RemoveChildFromCollection removes matching entries from the embedded list
// of the matching record. Missing record or entry is a no-op.
func (m *Memory) RemoveChildFromCollection(ctx context.Context, match record.Record, listField string, entryKey record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.docs {
		if !record.Matches(doc, match) {
			continue
		}
		list, ok := doc.Get(listField)
		if !ok {
			return nil
		}
		if kept, removed := removeListEntries(list, entryKey); removed {
			doc.Set(listField, kept)
		}
		return nil
	}
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *Memory) sortedKeys() []string {
	keys := make([]string, 0, len(m.docs))
	for id := range m.docs {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}
