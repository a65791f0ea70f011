package joint

import (
	"context"

	"github.com/recordlink/recordlink/internal/record"
)

// resyncRelatedList re-derives the parent's embedded child-summary list
// wholesale by querying all children whose foreign key currently points at
// the parent. This is the baseline path used when a parent first appears or
// is re-inserted, independent of incremental child events.
func (j *Joint) resyncRelatedList(ctx context.Context, parent record.Record) error {
	extKey, ok := parent.Get(j.cfg.ParentCollection.KeyField())
	if !ok || record.IsEmpty(extKey) {
		// No external key means no child can reference this parent yet.
		return nil
	}

	children, err := j.cfg.ChildCollection.Find(ctx,
		record.Record{j.cfg.LookupField: extKey})
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	entries := make([]interface{}, 0, len(children))
	for _, child := range children {
		entries = append(entries, record.Project(child, j.listFields))
	}

	return j.cfg.ParentCollection.Update(ctx,
		j.parentMatch(parent),
		record.Record{j.cfg.RelatedListName: entries})
}

// upsertRelatedEntry handles child insert and update identically: an
// idempotent upsert of the child's summary into its parent's related list,
// keyed by the child's local key. A child without a foreign key is not
// represented in any related list; clearing a foreign key does not
// retroactively remove the child from a previous parent's list (reparenting
// cleanup is out of scope).
func (j *Joint) upsertRelatedEntry(ctx context.Context, child record.Record) error {
	fk, ok := child.Get(j.cfg.LookupField)
	if !ok || record.IsEmpty(fk) {
		return nil
	}

	childLocalKey := j.cfg.ChildCollection.LocalKeyField()
	return j.cfg.ParentCollection.AddOrUpdateChildInCollection(ctx,
		record.Record{j.cfg.ParentCollection.KeyField(): fk},
		j.cfg.RelatedListName,
		record.Project(child, j.listFields),
		childLocalKey)
}

// removeRelatedEntry drops the child's summary from its parent's related
// list. A child without a foreign key is a no-op.
func (j *Joint) removeRelatedEntry(ctx context.Context, child record.Record) error {
	fk, ok := child.Get(j.cfg.LookupField)
	if !ok || record.IsEmpty(fk) {
		return nil
	}

	childLocalKey := j.cfg.ChildCollection.LocalKeyField()
	entryKey, ok := child.Get(childLocalKey)
	if !ok {
		return nil
	}

	return j.cfg.ParentCollection.RemoveChildFromCollection(ctx,
		record.Record{j.cfg.ParentCollection.KeyField(): fk},
		j.cfg.RelatedListName,
		record.Record{childLocalKey: entryKey})
}

// parentMatch builds point-update criteria for the parent record itself,
// preferring the stable local key over the external key.
func (j *Joint) parentMatch(parent record.Record) record.Record {
	localKeyField := j.cfg.ParentCollection.LocalKeyField()
	if v, ok := parent.Get(localKeyField); ok && !record.IsEmpty(v) {
		return record.Record{localKeyField: v}
	}
	keyField := j.cfg.ParentCollection.KeyField()
	v, _ := parent.Get(keyField)
	return record.Record{keyField: v}
}
