package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordlink/recordlink/internal/collection"
	"github.com/recordlink/recordlink/internal/joint"
	"github.com/recordlink/recordlink/internal/record"
)

type fixture struct {
	vendors  *collection.Memory
	products *collection.Memory
	engine   *Engine
}

func setup(t *testing.T, relatedList bool) *fixture {
	t.Helper()

	vendors := collection.NewMemory("vendors", "ext_id", "id")
	products := collection.NewMemory("products", "ext_id", "id")

	cfg := joint.Config{
		ParentEntity:     "vendor",
		ChildEntity:      "product",
		LookupField:      "fk",
		ParentFieldName:  "vendor",
		ParentFields:     []string{"name"},
		ParentCollection: vendors,
		ChildCollection:  products,
	}
	if relatedList {
		cfg.RelatedListName = "products"
		cfg.RelatedListFields = []string{"name"}
	}

	j, err := joint.New(cfg)
	require.NoError(t, err)

	e := New()
	e.Register(j)
	return &fixture{vendors: vendors, products: products, engine: e}
}

func TestCleanseRecordUnknownEntityPassesThrough(t *testing.T) {
	f := setup(t, false)

	rec := record.Record{"name": "Widget"}
	out, err := f.engine.CleanseRecord(context.Background(), "invoice", rec)
	require.NoError(t, err)
	assert.Equal(t, rec, out)
}

func TestCleanseRecordEmbedsSnapshot(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	_, err := f.vendors.Insert(ctx, record.Record{"id": "P1", "ext_id": "EXT-1", "name": "Acme"})
	require.NoError(t, err)

	out, err := f.engine.CleanseRecord(ctx, "product", record.Record{"fk": "EXT-1"})
	require.NoError(t, err)
	assert.True(t, out.Has("vendor"))
}

func TestPrepareRecordResolvesForeignKey(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	_, err := f.vendors.Insert(ctx, record.Record{"id": "P1", "ext_id": "EXT-1", "name": "Acme"})
	require.NoError(t, err)

	out, err := f.engine.PrepareRecord(ctx, "product",
		record.Record{"vendor": record.Record{"id": "P1"}}, joint.ActionCreate)
	require.NoError(t, err)

	fk, _ := out.Get("fk")
	assert.Equal(t, "EXT-1", fk)
}

func TestPrepareRecordSurfacesHardFailure(t *testing.T) {
	f := setup(t, false)

	_, err := f.engine.PrepareRecord(context.Background(), "product",
		record.Record{"vendor": record.Record{"id": "P-GONE"}}, joint.ActionCreate)
	assert.ErrorIs(t, err, joint.ErrParentNotFound)
}

func TestChildEventsMaintainRelatedList(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()

	_, err := f.vendors.Insert(ctx, record.Record{"id": "P1", "ext_id": "EXT-1", "name": "Acme"})
	require.NoError(t, err)

	child := record.Record{"id": "C1", "fk": "EXT-1", "name": "Widget"}
	require.NoError(t, f.engine.ChildInserted(ctx, "product", child))

	parent, err := f.vendors.Get(ctx, record.Record{"ext_id": "EXT-1"})
	require.NoError(t, err)
	list, _ := parent.Get("products")
	entries, _ := record.AsList(list)
	require.Len(t, entries, 1)

	require.NoError(t, f.engine.ChildRemoved(ctx, "product", child))

	parent, err = f.vendors.Get(ctx, record.Record{"ext_id": "EXT-1"})
	require.NoError(t, err)
	list, _ = parent.Get("products")
	entries, _ = record.AsList(list)
	assert.Empty(t, entries)
}

func TestChildEventsWithoutRelatedListAreNoops(t *testing.T) {
	f := setup(t, false)

	err := f.engine.ChildInserted(context.Background(), "product",
		record.Record{"id": "C1", "fk": "EXT-1"})
	assert.NoError(t, err)
}

func TestResyncConverges(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()

	_, err := f.vendors.Insert(ctx, record.Record{"id": "P1", "ext_id": "EXT-1", "name": "Acme"})
	require.NoError(t, err)
	for _, rec := range []record.Record{
		{"id": "C1", "fk": "EXT-1", "name": "Widget"},
		{"id": "C2", "fk": "EXT-1", "name": "Gadget"},
	} {
		_, err := f.products.Insert(ctx, rec)
		require.NoError(t, err)
	}

	require.NoError(t, f.engine.Resync(ctx))

	parent, err := f.vendors.Get(ctx, record.Record{"ext_id": "EXT-1"})
	require.NoError(t, err)
	list, _ := parent.Get("products")
	entries, _ := record.AsList(list)
	require.Len(t, entries, 2)

	// Second pass must not duplicate anything.
	require.NoError(t, f.engine.Resync(ctx))

	parent, err = f.vendors.Get(ctx, record.Record{"ext_id": "EXT-1"})
	require.NoError(t, err)
	list, _ = parent.Get("products")
	entries, _ = record.AsList(list)
	assert.Len(t, entries, 2)
}

func TestParentUpdatedSkipsJointsWithoutPropagation(t *testing.T) {
	vendors := collection.NewMemory("vendors", "ext_id", "id")
	products := collection.NewMemory("products", "ext_id", "id")

	j, err := joint.New(joint.Config{
		ParentEntity:     "vendor",
		ChildEntity:      "product",
		LookupField:      "fk",
		ParentFieldName:  "vendor",
		ParentCollection: vendors,
		ChildCollection:  products,
	})
	require.NoError(t, err)

	e := New()
	e.Register(j)

	err = e.ParentUpdated(context.Background(), "vendor",
		record.Record{"id": "P1", "ext_id": "EXT-1"})
	assert.NoError(t, err)
}
