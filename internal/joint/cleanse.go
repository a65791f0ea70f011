package joint

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/recordlink/recordlink/internal/collection"
	"github.com/recordlink/recordlink/internal/record"
)

// CleanseFunc normalizes a record as it is ingested from a source system.
type CleanseFunc func(ctx context.Context, rec record.Record) (record.Record, error)

// EnhanceCleanse wraps an existing cleanse transform (nil means identity) so
// that, after cleansing, the child record gains a denormalized snapshot of
// its parent, looked up by the foreign key the source supplied.
//
// A missing parent is advisory, not fatal: source-order races between parent
// and child arrival are expected, so the record proceeds without a snapshot
// and a warning is logged. Transport failures still propagate.
func (j *Joint) EnhanceCleanse(next CleanseFunc) CleanseFunc {
	if next == nil {
		next = identityCleanse
	}

	return func(ctx context.Context, rec record.Record) (record.Record, error) {
		out, err := next(ctx, rec)
		if err != nil {
			return nil, err
		}

		fk, ok := out.Get(j.cfg.LookupField)
		if !ok || record.IsEmpty(fk) {
			// A child may legitimately have no parent yet.
			return out, nil
		}

		parent, err := j.cfg.ParentCollection.Get(ctx,
			record.Record{j.cfg.ParentCollection.KeyField(): fk})
		if errors.Is(err, collection.ErrNotFound) {
			j.log.Warn("parent not found during cleanse, skipping snapshot",
				zap.String("child_entity", j.cfg.ChildEntity),
				zap.String("parent_entity", j.cfg.ParentEntity),
				zap.String("lookup_field", j.cfg.LookupField),
				zap.Any("lookup_value", fk))
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		out.Set(j.cfg.ParentFieldName, record.Project(parent, j.parentFields))
		return out, nil
	}
}

func identityCleanse(ctx context.Context, rec record.Record) (record.Record, error) {
	return rec, nil
}
