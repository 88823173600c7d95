package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := New(db)
	require.NoError(t, err)
	return st
}

func rec(objectType, objectID, model string, vec []float32) Record {
	return Record{
		ID:          objectType + "-" + objectID + "-" + model,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Vector:      vec,
		VectorDim:   len(vec),
		Model:       model,
		Metadata:    map[string]string{"name": objectID},
		ContentHash: "hash-" + objectID,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilDB)
}

func TestReplaceBatchAndList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceBatch(ctx, []Record{
		rec(ObjectTypeEntity, "hero", "m1", []float32{1, 0}),
		rec(ObjectTypeEvent, "battle", "m1", []float32{0, 1}),
	}))

	got, err := st.List(ctx, Filter{Model: "m1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hero", got[0].ObjectID)
	assert.Equal(t, []float32{1, 0}, got[0].Vector)
	assert.Equal(t, map[string]string{"name": "hero"}, got[0].Metadata)
	assert.Equal(t, "battle", got[1].ObjectID)
}

func TestReplaceBatchSupersedes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceBatch(ctx, []Record{rec(ObjectTypeEntity, "hero", "m1", []float32{1, 0})}))

	updated := rec(ObjectTypeEntity, "hero", "m1", []float32{0.5, 0.5})
	updated.ID = "replacement-row"
	updated.ContentHash = "hash-v2"
	require.NoError(t, st.ReplaceBatch(ctx, []Record{updated}))

	got, err := st.List(ctx, Filter{Model: "m1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{0.5, 0.5}, got[0].Vector)
	assert.Equal(t, "hash-v2", got[0].ContentHash)
}

func TestReplaceBatchKeepsModelsSeparate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceBatch(ctx, []Record{
		rec(ObjectTypeEntity, "hero", "m1", []float32{1, 0}),
		rec(ObjectTypeEntity, "hero", "m2", []float32{1, 0, 0}),
	}))

	n, err := st.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.Count(ctx, Filter{Model: "m2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplaceBatchValidatesBeforeWriting(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	bad := rec(ObjectTypeEntity, "broken", "m1", []float32{1, 0})
	bad.VectorDim = 5

	err := st.ReplaceBatch(ctx, []Record{
		rec(ObjectTypeEntity, "hero", "m1", []float32{1, 0}),
		bad,
	})
	require.ErrorIs(t, err, ErrDimensionInvariant)

	// Nothing from the batch may land.
	n, err := st.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListInsertionOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, st.ReplaceBatch(ctx, []Record{rec(ObjectTypeEntity, id, "m1", []float32{1})}))
	}

	got, err := st.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ObjectID)
	assert.Equal(t, "a", got[1].ObjectID)
	assert.Equal(t, "b", got[2].ObjectID)
}

func TestDeleteByFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceBatch(ctx, []Record{
		rec(ObjectTypeEntity, "hero", "m1", []float32{1}),
		rec(ObjectTypeEvent, "battle", "m1", []float32{1}),
		rec(ObjectTypeEntity, "hero", "m2", []float32{1}),
	}))

	n, err := st.Delete(ctx, Filter{Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := st.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestDeleteObjectRemovesAllModels(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceBatch(ctx, []Record{
		rec(ObjectTypeEntity, "hero", "m1", []float32{1}),
		rec(ObjectTypeEntity, "hero", "m2", []float32{1}),
		rec(ObjectTypeEntity, "villain", "m1", []float32{1}),
	}))

	require.NoError(t, st.DeleteObject(ctx, ObjectTypeEntity, "hero"))

	remaining, err := st.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "villain", remaining[0].ObjectID)
}

func TestContentHashes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceBatch(ctx, []Record{
		rec(ObjectTypeEntity, "hero", "m1", []float32{1}),
		rec(ObjectTypeEntity, "villain", "m1", []float32{1}),
		rec(ObjectTypeEvent, "battle", "m1", []float32{1}),
	}))

	hashes, err := st.ContentHashes(ctx, Filter{Model: "m1", ObjectType: ObjectTypeEntity})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"hero":    "hash-hero",
		"villain": "hash-villain",
	}, hashes)
}

func TestWorldScoping(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	inWorld := rec(ObjectTypeEntity, "hero", "m1", []float32{1})
	inWorld.WorldID = "w-1"
	other := rec(ObjectTypeEntity, "villain", "m1", []float32{1})
	other.WorldID = "w-2"
	require.NoError(t, st.ReplaceBatch(ctx, []Record{inWorld, other}))

	got, err := st.List(ctx, Filter{WorldID: "w-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hero", got[0].ObjectID)
}
