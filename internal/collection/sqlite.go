package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/recordlink/recordlink/internal/record"
)

// SQLite stores a collection as a single-file document table:
//
//	CREATE TABLE <entity> (local_key TEXT PRIMARY KEY, doc TEXT NOT NULL)
//
// Documents are filtered client-side after loading; embedded-list mutation
// runs read-modify-write inside a transaction, same shape as the Postgres
// backend without the JSONB containment prefilter.
type SQLite struct {
	db            *sql.DB
	name          string
	keyField      string
	localKeyField string
	table         string
}

// NewSQLite creates a SQLite-backed collection over an open database handle
// (mattn/go-sqlite3 driver). The entity name doubles as the table name.
func NewSQLite(db *sql.DB, name, keyField, localKeyField string) (*SQLite, error) {
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	return &SQLite{
		db:            db,
		name:          name,
		keyField:      keyField,
		localKeyField: localKeyField,
		table:         `"` + name + `"`,
	}, nil
}

// Name returns the entity name.
func (s *SQLite) Name() string { return s.name }

// KeyField returns the externally-visible identifier field name.
func (s *SQLite) KeyField() string { return s.keyField }

// LocalKeyField returns the internally-assigned identifier field name.
func (s *SQLite) LocalKeyField() string { return s.localKeyField }

// EnsureTable creates the document table if it does not exist.
func (s *SQLite) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			local_key TEXT PRIMARY KEY,
			doc TEXT NOT NULL
		)
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure table %s: %w", s.name, err)
	}
	return nil
}

// Insert stores a document, assigning a UUID local key when absent.
func (s *SQLite) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	doc := record.Clone(rec)

	key, ok := doc.Get(s.localKeyField)
	if !ok || record.IsEmpty(key) {
		key = uuid.NewString()
		doc.Set(s.localKeyField, key)
	}
	localKey := fmt.Sprintf("%v", key)

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (local_key, doc) VALUES (?, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, localKey, string(payload)); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, fmt.Errorf("%w: %s %q", ErrDuplicateKey, s.name, localKey)
		}
		return nil, err
	}
	return doc, nil
}

// Get returns the first record matching the query, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, query record.Record) (record.Record, error) {
	matches, err := s.selectMatching(ctx, s.db, query, true)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.name)
	}
	return matches[0].doc, nil
}

// Find returns all records matching the query, ordered by local key.
func (s *SQLite) Find(ctx context.Context, query record.Record) ([]record.Record, error) {
	matches, err := s.selectMatching(ctx, s.db, query, false)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.doc)
	}
	return out, nil
}

// Update applies the set fields to every matching record inside one
// transaction.
func (s *SQLite) Update(ctx context.Context, match record.Record, set record.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		matches, err := s.selectMatching(ctx, tx, match, false)
		if err != nil {
			return err
		}
		for _, m := range matches {
			for path, value := range set {
				m.doc.Set(path, value)
			}
			if err := s.writeDoc(ctx, tx, m.localKey, m.doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddOrUpdateChildInCollection upserts an entry into the embedded list of the
// matching record.
func (s *SQLite) AddOrUpdateChildInCollection(ctx context.Context, match record.Record, listField string, entry record.Record, entryKeyField string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		matches, err := s.selectMatching(ctx, tx, match, true)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, s.name)
		}
		m := matches[0]
		list, _ := m.doc.Get(listField)
		m.doc.Set(listField, upsertListEntry(list, record.Clone(entry), entryKeyField))
		return s.writeDoc(ctx, tx, m.localKey, m.doc)
	})
}

// RemoveChildFromCollection removes matching entries from the embedded list
// of the matching record. Missing record or entry is a no-op.
func (s *SQLite) RemoveChildFromCollection(ctx context.Context, match record.Record, listField string, entryKey record.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		matches, err := s.selectMatching(ctx, tx, match, true)
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
		return s.writeDoc(ctx, tx, m.localKey, m.doc)
	})
}

type sqliteMatch struct {
	localKey string
	doc      record.Record
}

func (s *SQLite) selectMatching(ctx context.Context, q querier, criteria record.Record, single bool) ([]sqliteMatch, error) {
	query := fmt.Sprintf(`SELECT local_key, doc FROM %s ORDER BY local_key`, s.table)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []sqliteMatch
	for rows.Next() {
		var localKey, raw string
		if err := rows.Scan(&localKey, &raw); err != nil {
			return nil, err
		}
		var doc record.Record
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidDocument, s.name, localKey, err)
		}
		if len(criteria) > 0 && !record.Matches(doc, criteria) {
			continue
		}
		matches = append(matches, sqliteMatch{localKey: localKey, doc: doc})
		if single {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *SQLite) writeDoc(ctx context.Context, q querier, localKey string, doc record.Record) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET doc = ? WHERE local_key = ?`, s.table)
	if _, err := q.ExecContext(ctx, query, string(payload), localKey); err != nil {
		return err
	}
	return nil
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
