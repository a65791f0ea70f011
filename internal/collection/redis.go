package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/recordlink/recordlink/internal/record"
)

// Redis stores a collection as JSON documents under <entity>:doc:<localKey>
// keys. Criteria matching happens client-side after a SCAN, which is fine for
// the collection sizes a sync run handles; ordering guarantees across
// concurrent writers are the calling engine's responsibility, matching the
// hook execution model.
type Redis struct {
	client        *redis.Client
	name          string
	keyField      string
	localKeyField string
}

// NewRedis creates a Redis-backed collection over an existing client.
func NewRedis(client *redis.Client, name, keyField, localKeyField string) *Redis {
	return &Redis{
		client:        client,
		name:          name,
		keyField:      keyField,
		localKeyField: localKeyField,
	}
}

// Name returns the entity name.
func (r *Redis) Name() string { return r.name }

// KeyField returns the externally-visible identifier field name.
func (r *Redis) KeyField() string { return r.keyField }

// LocalKeyField returns the internally-assigned identifier field name.
func (r *Redis) LocalKeyField() string { return r.localKeyField }

func (r *Redis) docKey(localKey string) string {
	return fmt.Sprintf("%s:doc:%s", r.name, localKey)
}

// Insert stores a document, assigning a UUID local key when absent.
func (r *Redis) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	doc := record.Clone(rec)

	key, ok := doc.Get(r.localKeyField)
	if !ok || record.IsEmpty(key) {
		key = uuid.NewString()
		doc.Set(r.localKeyField, key)
	}
	localKey := fmt.Sprintf("%v", key)

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	stored, err := r.client.SetNX(ctx, r.docKey(localKey), payload, 0).Result()
	if err != nil {
		return nil, err
	}
	if !stored {
		return nil, fmt.Errorf("%w: %s %q", ErrDuplicateKey, r.name, localKey)
	}
	return doc, nil
}

// Get returns the first record matching the query, or ErrNotFound.
func (r *Redis) Get(ctx context.Context, query record.Record) (record.Record, error) {
	matches, err := r.scanMatching(ctx, query, true)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, r.name)
	}
	return matches[0].doc, nil
}

// Find returns all records matching the query, ordered by local key.
func (r *Redis) Find(ctx context.Context, query record.Record) ([]record.Record, error) {
	matches, err := r.scanMatching(ctx, query, false)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.doc)
	}
	return out, nil
}

// Update applies the set fields to every matching record.
func (r *Redis) Update(ctx context.Context, match record.Record, set record.Record) error {
	matches, err := r.scanMatching(ctx, match, false)
	if err != nil {
		return err
	}
	for _, m := range matches {
		for path, value := range set {
			m.doc.Set(path, value)
		}
		if err := r.writeDoc(ctx, m.localKey, m.doc); err != nil {
			return err
		}
	}
	return nil
}

// AddOrUpdateChildInCollection upserts an entry into the embedded list of the
// matching record.
func (r *Redis) AddOrUpdateChildInCollection(ctx context.Context, match record.Record, listField string, entry record.Record, entryKeyField string) error {
	matches, err := r.scanMatching(ctx, match, true)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.name)
	}
	m := matches[0]
	list, _ := m.doc.Get(listField)
	m.doc.Set(listField, upsertListEntry(list, record.Clone(entry), entryKeyField))
	return r.writeDoc(ctx, m.localKey, m.doc)
}

// RemoveChildFromCollection removes matching entries from the embedded list
// of the matching record. Missing record or entry is a no-op.
func (r *Redis) RemoveChildFromCollection(ctx context.Context, match record.Record, listField string, entryKey record.Record) error {
	matches, err := r.scanMatching(ctx, match, true)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}
	m := matches[0]
	list, ok := m.doc.Get(listField)
	if !ok {
		return nil
	}
	kept, removed := removeListEntries(list, entryKey)
	if !removed {
		return nil
	}
	m.doc.Set(listField, kept)
	return r.writeDoc(ctx, m.localKey, m.doc)
}

type redisMatch struct {
	localKey string
	doc      record.Record
}

func (r *Redis) scanMatching(ctx context.Context, criteria record.Record, single bool) ([]redisMatch, error) {
	pattern := r.docKey("*")
	prefixLen := len(r.docKey(""))

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)

	var matches []redisMatch
	for _, key := range keys {
		raw, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// Deleted between SCAN and GET.
			continue
		}
		if err != nil {
			return nil, err
		}

		var doc record.Record
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidDocument, r.name, key, err)
		}
		if len(criteria) > 0 && !record.Matches(doc, criteria) {
			continue
		}
		matches = append(matches, redisMatch{localKey: key[prefixLen:], doc: doc})
		if single {
			break
		}
	}
	return matches, nil
}

func (r *Redis) writeDoc(ctx context.Context, localKey string, doc record.Record) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	return r.client.Set(ctx, r.docKey(localKey), payload, 0).Err()
}
