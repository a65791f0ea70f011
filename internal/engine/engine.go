// Package engine drives relationship joints: it owns the per-entity cleanse
// and prepare pipelines and dispatches record change events to the hook
// functions the joints expose. The engine serializes hook execution per call,
// matching the ordering contract the joints assume.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/recordlink/recordlink/internal/joint"
	"github.com/recordlink/recordlink/internal/record"
)

// Engine dispatches collection change events to registered joints.
type Engine struct {
	log *zap.Logger

	mu          sync.RWMutex
	joints      []*joint.Joint
	parentHooks map[string][]joint.Hooks
	childHooks  map[string][]joint.Hooks
	cleansers   map[string]joint.CleanseFunc
	preparers   map[string]joint.PrepareFunc
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:         zap.NewNop(),
		parentHooks: make(map[string][]joint.Hooks),
		childHooks:  make(map[string][]joint.Hooks),
		cleansers:   make(map[string]joint.CleanseFunc),
		preparers:   make(map[string]joint.PrepareFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register wires a joint into the engine: its hooks are indexed by entity and
// the child entity's cleanse/prepare pipelines are enhanced in registration
// order.
func (e *Engine) Register(j *joint.Joint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := j.Config()
	e.joints = append(e.joints, j)

	hooks := j.Hooks()
	e.parentHooks[cfg.ParentEntity] = append(e.parentHooks[cfg.ParentEntity], hooks)
	e.childHooks[cfg.ChildEntity] = append(e.childHooks[cfg.ChildEntity], hooks)

	e.cleansers[cfg.ChildEntity] = j.EnhanceCleanse(e.cleansers[cfg.ChildEntity])
	e.preparers[cfg.ChildEntity] = j.EnhancePrepare(e.preparers[cfg.ChildEntity])

	e.log.Info("registered relationship joint",
		zap.String("parent_entity", cfg.ParentEntity),
		zap.String("child_entity", cfg.ChildEntity),
		zap.Bool("related_list", cfg.RelatedListName != ""))
}

// CleanseRecord runs the entity's enhanced cleanse pipeline. Entities without
// a registered pipeline pass through unchanged.
func (e *Engine) CleanseRecord(ctx context.Context, entity string, rec record.Record) (record.Record, error) {
	e.mu.RLock()
	cleanse := e.cleansers[entity]
	e.mu.RUnlock()

	if cleanse == nil {
		return rec, nil
	}
	return cleanse(ctx, rec)
}

// PrepareRecord runs the entity's enhanced prepare pipeline. Entities without
// a registered pipeline pass through unchanged.
func (e *Engine) PrepareRecord(ctx context.Context, entity string, rec record.Record, action joint.Action) (record.Record, error) {
	e.mu.RLock()
	prepare := e.preparers[entity]
	e.mu.RUnlock()

	if prepare == nil {
		return rec, nil
	}
	return prepare(ctx, rec, action)
}

// ParentInserted dispatches a parent-insert event to every joint registered
// for the entity. Hooks run in registration order; the first failure aborts.
func (e *Engine) ParentInserted(ctx context.Context, entity string, rec record.Record) error {
	return e.dispatch(ctx, e.parentHooksFor(entity), entity, "parent inserted",
		func(h joint.Hooks) joint.HookFunc { return h.OnParentInserted }, rec)
}

// ParentUpdated dispatches a parent-update event. Joints with nothing to
// propagate on update are skipped.
func (e *Engine) ParentUpdated(ctx context.Context, entity string, rec record.Record) error {
	return e.dispatch(ctx, e.parentHooksFor(entity), entity, "parent updated",
		func(h joint.Hooks) joint.HookFunc { return h.OnParentUpdated }, rec)
}

// ChildInserted dispatches a child-insert event.
func (e *Engine) ChildInserted(ctx context.Context, entity string, rec record.Record) error {
	return e.dispatch(ctx, e.childHooksFor(entity), entity, "child inserted",
		func(h joint.Hooks) joint.HookFunc { return h.OnChildInserted }, rec)
}

// ChildUpdated dispatches a child-update event.
func (e *Engine) ChildUpdated(ctx context.Context, entity string, rec record.Record) error {
	return e.dispatch(ctx, e.childHooksFor(entity), entity, "child updated",
		func(h joint.Hooks) joint.HookFunc { return h.OnChildUpdated }, rec)
}

// ChildRemoved dispatches a child-remove event.
func (e *Engine) ChildRemoved(ctx context.Context, entity string, rec record.Record) error {
	return e.dispatch(ctx, e.childHooksFor(entity), entity, "child removed",
		func(h joint.Hooks) joint.HookFunc { return h.OnChildRemoved }, rec)
}

// Resync establishes a consistent denormalized baseline across every
// registered joint: it replays a parent-insert for every parent record and a
// child-insert for every child record. Hooks are idempotent, so running a
// resync twice converges to the same state.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.RLock()
	joints := make([]*joint.Joint, len(e.joints))
	copy(joints, e.joints)
	e.mu.RUnlock()

	for _, j := range joints {
		cfg := j.Config()

		parents, err := cfg.ParentCollection.Find(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to list %s records: %w", cfg.ParentEntity, err)
		}
		for _, parent := range parents {
			if err := e.ParentInserted(ctx, cfg.ParentEntity, parent); err != nil {
				return err
			}
		}

		children, err := cfg.ChildCollection.Find(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to list %s records: %w", cfg.ChildEntity, err)
		}
		for _, child := range children {
			if err := e.ChildInserted(ctx, cfg.ChildEntity, child); err != nil {
				return err
			}
		}

		e.log.Info("resynced relationship",
			zap.String("parent_entity", cfg.ParentEntity),
			zap.String("child_entity", cfg.ChildEntity),
			zap.Int("parents", len(parents)),
			zap.Int("children", len(children)))
	}
	return nil
}

func (e *Engine) parentHooksFor(entity string) []joint.Hooks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.parentHooks[entity]
}

func (e *Engine) childHooksFor(entity string) []joint.Hooks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.childHooks[entity]
}

func (e *Engine) dispatch(ctx context.Context, hookSets []joint.Hooks, entity, event string, pick func(joint.Hooks) joint.HookFunc, rec record.Record) error {
	for _, hooks := range hookSets {
		fn := pick(hooks)
		if fn == nil {
			continue
		}
		if err := fn(ctx, rec); err != nil {
			return fmt.Errorf("%s hook failed for %s: %w", event, entity, err)
		}
	}
	return nil
}
