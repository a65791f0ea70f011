// Package joint builds the hook functions that keep a one-to-many
// relationship between two collections coherent: denormalized parent
// snapshots on children, foreign-key resolution during cleanse and prepare,
// and an optional embedded list of child summaries on the parent.
//
// A joint holds only immutable configuration; all state lives in the two
// collections, so hooks are safe to share across goroutines and idempotent
// under re-application. Ordering across hook invocations is the calling
// engine's responsibility.
package joint

import (
	"context"

	"go.uber.org/zap"

	"github.com/recordlink/recordlink/internal/record"
)

// HookFunc is a lifecycle hook invoked with the record that changed.
type HookFunc func(ctx context.Context, rec record.Record) error

// Hooks is the fixed set of named hook functions a joint exposes. Nil fields
// mean the protocol is inactive for this configuration: OnParentUpdated is
// nil when no fields beyond the parent's local key would propagate, and the
// child hooks are nil unless a related list is configured.
type Hooks struct {
	OnParentInserted HookFunc
	OnParentUpdated  HookFunc
	OnChildInserted  HookFunc
	OnChildUpdated   HookFunc
	OnChildRemoved   HookFunc
}

// Joint is an immutable relationship joint built from a Config.
type Joint struct {
	cfg Config

	// parentFields is the normalized snapshot field set: the configured
	// ParentFields plus the parent collection's local-key field.
	parentFields []string

	// listFields is the normalized summary field set for the related list,
	// nil when no related list is configured.
	listFields []string

	log *zap.Logger
}

// Option customizes joint construction.
type Option func(*Joint)

// WithLogger sets the logger used for advisory conditions (the cleanse-path
// soft lookup miss). Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(j *Joint) {
		j.log = log
	}
}

// New validates the configuration and builds a joint. No collection is read
// or written during construction.
func New(cfg Config, opts ...Option) (*Joint, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	j := &Joint{
		cfg:          cfg,
		parentFields: appendKeyField(cfg.ParentFields, cfg.ParentCollection.LocalKeyField()),
		log:          zap.NewNop(),
	}
	if cfg.RelatedListName != "" {
		j.listFields = appendKeyField(cfg.RelatedListFields, cfg.ChildCollection.LocalKeyField())
	}

	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Config returns a copy of the configuration the joint was built from.
func (j *Joint) Config() Config { return j.cfg }

// Hooks binds the joint's active protocols to named hook functions.
func (j *Joint) Hooks() Hooks {
	h := Hooks{OnParentInserted: j.onParentInserted}
	if j.propagatesOnUpdate() {
		h.OnParentUpdated = j.propagate
	}
	if j.tracksRelatedList() {
		h.OnChildInserted = j.upsertRelatedEntry
		h.OnChildUpdated = j.upsertRelatedEntry
		h.OnChildRemoved = j.removeRelatedEntry
	}
	return h
}

// propagatesOnUpdate reports whether the snapshot carries any field beyond
// the parent's local key. When it does not, a parent update changes nothing
// that children denormalize, so the update hook is omitted.
func (j *Joint) propagatesOnUpdate() bool {
	localKey := j.cfg.ParentCollection.LocalKeyField()
	for _, f := range j.parentFields {
		if f != localKey {
			return true
		}
	}
	return false
}

func (j *Joint) tracksRelatedList() bool {
	return j.cfg.RelatedListName != ""
}

// onParentInserted establishes a consistent baseline for a parent that just
// appeared (or re-appeared): propagate the snapshot down to matching
// children, then re-derive the related list wholesale from the child
// collection.
func (j *Joint) onParentInserted(ctx context.Context, parent record.Record) error {
	if j.propagatesOnUpdate() {
		if err := j.propagate(ctx, parent); err != nil {
			return err
		}
	}
	if j.tracksRelatedList() {
		return j.resyncRelatedList(ctx, parent)
	}
	return nil
}

// propagate issues a bulk, filter-based update against the child collection:
// every child whose embedded snapshot matches the parent's current
// identifying fields gets its foreign key rewritten to the parent's external
// key.
func (j *Joint) propagate(ctx context.Context, parent record.Record) error {
	extKey, ok := parent.Get(j.cfg.ParentCollection.KeyField())
	if !ok || record.IsEmpty(extKey) {
		// The parent has no external key yet, so there is no foreign-key
		// value to push down. Children resolve it later during prepare.
		j.log.Debug("skipping propagation for parent without external key",
			zap.String("parent_entity", j.cfg.ParentEntity))
		return nil
	}

	snapshot := record.Project(parent, j.parentFields)
	return j.cfg.ChildCollection.Update(ctx,
		record.Record{j.cfg.ParentFieldName: snapshot},
		record.Record{j.cfg.LookupField: extKey})
}

func appendKeyField(fields []string, keyField string) []string {
	out := make([]string, 0, len(fields)+1)
	seen := false
	for _, f := range fields {
		if f == keyField {
			seen = true
		}
		out = append(out, f)
	}
	if !seen {
		out = append(out, keyField)
	}
	return out
}
