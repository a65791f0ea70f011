package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/recordlink/recordlink/internal/record"
)

// Postgres stores a collection as one JSONB document table:
//
//	CREATE TABLE <entity> (local_key TEXT PRIMARY KEY, doc JSONB NOT NULL)
//
// Criteria are compiled to a @> containment prefilter so matching can use a
// GIN index, then re-checked structurally in Go for exact field equality
// (containment alone would accept supersets of nested criteria values).
type Postgres struct {
	db            *sql.DB
	name          string
	keyField      string
	localKeyField string
	table         string
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgres creates a Postgres-backed collection over an open database
// handle (pgx stdlib driver). The entity name doubles as the table name and
// must be a plain SQL identifier.
func NewPostgres(db *sql.DB, name, keyField, localKeyField string) (*Postgres, error) {
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	return &Postgres{
		db:            db,
		name:          name,
		keyField:      keyField,
		localKeyField: localKeyField,
		table:         `"` + name + `"`,
	}, nil
}

// Name returns the entity name.
func (p *Postgres) Name() string { return p.name }

// KeyField returns the externally-visible identifier field name.
func (p *Postgres) KeyField() string { return p.keyField }

// LocalKeyField returns the internally-assigned identifier field name.
func (p *Postgres) LocalKeyField() string { return p.localKeyField }

// EnsureTable creates the document table if it does not exist.
func (p *Postgres) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			local_key TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		)
	`, p.table)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure table %s: %w", p.name, err)
	}
	return nil
}

// Insert stores a document, assigning a UUID local key when absent.
func (p *Postgres) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	doc := record.Clone(rec)

	key, ok := doc.Get(p.localKeyField)
	if !ok || record.IsEmpty(key) {
		key = uuid.NewString()
		doc.Set(p.localKeyField, key)
	}
	localKey := fmt.Sprintf("%v", key)

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (local_key, doc) VALUES ($1, $2)`, p.table)
	if _, err := p.db.ExecContext(ctx, query, localKey, payload); err != nil {
		return nil, convertPGError(err)
	}
	return doc, nil
}

// Get returns the first record matching the query, or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, query record.Record) (record.Record, error) {
	matches, err := p.selectMatching(ctx, p.db, query, true)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p.name)
	}
	return matches[0].doc, nil
}

// Find returns all records matching the query, ordered by local key.
func (p *Postgres) Find(ctx context.Context, query record.Record) ([]record.Record, error) {
	matches, err := p.selectMatching(ctx, p.db, query, false)
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
// transaction. Matching nothing is not an error.
func (p *Postgres) Update(ctx context.Context, match record.Record, set record.Record) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		matches, err := p.selectMatching(ctx, tx, match, false)
		if err != nil {
			return err
		}
		for _, m := range matches {
			for path, value := range set {
				m.doc.Set(path, value)
			}
			if err := p.writeDoc(ctx, tx, m.localKey, m.doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddOrUpdateChildInCollection upserts an entry into the embedded list of the
// matching record.
func (p *Postgres) AddOrUpdateChildInCollection(ctx context.Context, match record.Record, listField string, entry record.Record, entryKeyField string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		matches, err := p.selectMatching(ctx, tx, match, true)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, p.name)
		}
		m := matches[0]
		list, _ := m.doc.Get(listField)
		m.doc.Set(listField, upsertListEntry(list, record.Clone(entry), entryKeyField))
		return p.writeDoc(ctx, tx, m.localKey, m.doc)
	})
}

// RemoveChildFromCollection removes matching entries from the embedded list
// of the matching record. Missing record or entry is a no-op.
func (p *Postgres) RemoveChildFromCollection(ctx context.Context, match record.Record, listField string, entryKey record.Record) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		matches, err := p.selectMatching(ctx, tx, match, true)
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
		return p.writeDoc(ctx, tx, m.localKey, m.doc)
	})
}

type pgMatch struct {
	localKey string
	doc      record.Record
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (p *Postgres) selectMatching(ctx context.Context, q querier, criteria record.Record, single bool) ([]pgMatch, error) {
	if criteria == nil {
		criteria = record.Record{}
	}
	filter, err := json.Marshal(record.Expand(criteria))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal criteria: %w", err)
	}

	query := fmt.Sprintf(`SELECT local_key, doc FROM %s WHERE doc @> $1 ORDER BY local_key`, p.table)
	rows, err := q.QueryContext(ctx, query, filter)
	if err != nil {
		return nil, convertPGError(err)
	}
	defer rows.Close()

	var matches []pgMatch
	for rows.Next() {
		var localKey string
		var raw []byte
		if err := rows.Scan(&localKey, &raw); err != nil {
			return nil, convertPGError(err)
		}
		var doc record.Record
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidDocument, p.name, localKey, err)
		}
		// Containment is a prefilter; require exact equality per criteria field.
		if !record.Matches(doc, criteria) {
			continue
		}
		matches = append(matches, pgMatch{localKey: localKey, doc: doc})
		if single {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, convertPGError(err)
	}
	return matches, nil
}

func (p *Postgres) writeDoc(ctx context.Context, q querier, localKey string, doc record.Record) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET doc = $2 WHERE local_key = $1`, p.table)
	if _, err := q.ExecContext(ctx, query, localKey, payload); err != nil {
		return convertPGError(err)
	}
	return nil
}

func (p *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
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

// convertPGError maps database-level errors onto collection errors.
func convertPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.Detail)
		}
	}
	return err
}
