// Package collection defines the storage capability surface relationship
// joints are built against, plus the backends that implement it. A collection
// stores dynamic records identified two ways: a local key assigned by the
// backend itself, and an external key assigned by the remote system the
// records are synchronized with. Records not yet pushed outward have an empty
// external key.
package collection

import (
	"context"

	"github.com/recordlink/recordlink/internal/record"
)

// Collection is the capability surface a joint consumes. Criteria records
// match structurally: every criteria field (which may be a dotted path) must
// equal the corresponding document field.
type Collection interface {
	// Name identifies the entity the collection stores.
	Name() string

	// KeyField returns the externally-visible identifier field name.
	KeyField() string

	// LocalKeyField returns the internally-assigned identifier field name.
	LocalKeyField() string

	// Get performs a point lookup and returns ErrNotFound on a miss.
	Get(ctx context.Context, query record.Record) (record.Record, error)

	// Find returns all records matching the query, ordered by local key.
	// A nil or empty query matches every record.
	Find(ctx context.Context, query record.Record) ([]record.Record, error)

	// Update applies a partial update to every record matching the criteria.
	// Matching nothing is not an error.
	Update(ctx context.Context, match record.Record, set record.Record) error

	// AddOrUpdateChildInCollection upserts an entry into the embedded list at
	// listField on the record matching the criteria, keyed by entryKeyField.
	// At most one entry per distinct entry key survives. Returns ErrNotFound
	// when no record matches.
	AddOrUpdateChildInCollection(ctx context.Context, match record.Record, listField string, entry record.Record, entryKeyField string) error

	// RemoveChildFromCollection removes entries matching entryKey from the
	// embedded list at listField on the record matching the criteria. Both a
	// missing record and a missing entry are no-ops: removal is idempotent.
	RemoveChildFromCollection(ctx context.Context, match record.Record, listField string, entryKey record.Record) error
}
