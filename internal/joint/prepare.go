package joint

import (
	"context"
	"errors"
	"fmt"

	"github.com/recordlink/recordlink/internal/collection"
	"github.com/recordlink/recordlink/internal/record"
)

// Action identifies the outward operation a record is being prepared for.
type Action int

const (
	// ActionCreate prepares a record for outward creation.
	ActionCreate Action = iota
	// ActionUpdate prepares a record for outward update.
	ActionUpdate
	// ActionDelete prepares a record for outward deletion.
	ActionDelete
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// PrepareFunc shapes a record immediately before it is sent outward.
type PrepareFunc func(ctx context.Context, rec record.Record, action Action) (record.Record, error)

// EnhancePrepare wraps an existing prepare transform (nil means identity) so
// that, before a child record leaves the system, its foreign-key field is
// populated from the parent's external key.
//
// Unlike the cleanse path, an unresolvable parent reference here is fatal: a
// record must not be sent outward pointing at a parent that does not exist or
// has not been synchronized yet.
func (j *Joint) EnhancePrepare(next PrepareFunc) PrepareFunc {
	if next == nil {
		next = identityPrepare
	}

	return func(ctx context.Context, rec record.Record, action Action) (record.Record, error) {
		out, err := next(ctx, rec, action)
		if err != nil {
			return nil, err
		}

		snapVal, ok := out.Get(j.cfg.ParentFieldName)
		if !ok {
			// No parent reference to resolve.
			return out, nil
		}
		snapshot, ok := record.AsRecord(snapVal)
		if !ok {
			return out, nil
		}

		parentKeyField := j.cfg.ParentCollection.KeyField()

		// Fast path: the snapshot already carries the parent's external key.
		if extKey, ok := snapshot.Get(parentKeyField); ok && !record.IsEmpty(extKey) {
			out.Set(j.cfg.LookupField, extKey)
			return out, nil
		}

		localKeyField := j.cfg.ParentCollection.LocalKeyField()
		localKey, ok := snapshot.Get(localKeyField)
		if !ok || record.IsEmpty(localKey) {
			return nil, fmt.Errorf("%w: %s snapshot carries no %s",
				ErrParentNotFound, j.cfg.ParentEntity, localKeyField)
		}

		parent, err := j.cfg.ParentCollection.Get(ctx, record.Record{localKeyField: localKey})
		if errors.Is(err, collection.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s %v", ErrParentNotFound, j.cfg.ParentEntity, localKey)
		}
		if err != nil {
			return nil, err
		}

		extKey, ok := parent.Get(parentKeyField)
		if !ok || record.IsEmpty(extKey) {
			return nil, fmt.Errorf("%w: %s %v", ErrParentMissingExternalKey, j.cfg.ParentEntity, localKey)
		}

		out.Set(j.cfg.LookupField, extKey)
		return out, nil
	}
}

func identityPrepare(ctx context.Context, rec record.Record, action Action) (record.Record, error) {
	return rec, nil
}
