package spatial

import (
	"testing"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIdempotent(t *testing.T) {
	h := New(1000)
	store := ecs.NewStore(4)
	e := store.Create()

	h.Insert(e, 500, 500)
	h.Insert(e, 500, 500)

	x, z, ok := h.CellOf(e)
	require.True(t, ok)
	assert.Equal(t, int32(0), x)
	assert.Equal(t, int32(0), z)

	results := h.Query(500, 500, 100)
	assert.Len(t, results, 1)
}

func TestUpdateMovesBetweenCells(t *testing.T) {
	h := New(1000)
	store := ecs.NewStore(4)
	e := store.Create()
	h.Insert(e, 0, 0)
	h.Update(e, 0, 0, 5000, 5000)

	assert.Empty(t, h.Query(0, 0, 100))
	assert.Len(t, h.Query(5000, 5000, 100), 1)
}

func TestQueryRadiusBoundary(t *testing.T) {
	h := New(1000)
	store := ecs.NewStore(4)
	near := store.Create()
	far := store.Create()
	h.Insert(near, 1000, 0)
	h.Insert(far, 100000, 0)

	results := h.Query(0, 0, 2000)
	found := map[ecs.Entity]bool{}
	for _, e := range results {
		found[e] = true
	}
	assert.True(t, found[near])
	assert.False(t, found[far])
}

func TestClearPreservesCellMapAllocation(t *testing.T) {
	h := New(1000)
	store := ecs.NewStore(4)
	e := store.Create()
	h.Insert(e, 0, 0)
	h.Clear()

	assert.Empty(t, h.Query(0, 0, 100))
	_, _, ok := h.CellOf(e)
	assert.False(t, ok)
}

func TestAverageEntitiesPerCellBudget(t *testing.T) {
	h := New(1000)
	store := ecs.NewStore(1100)
	for i := 0; i < 1000; i++ {
		e := store.Create()
		// spread across a grid so cells stay well under the 16-entity budget
		h.Insert(e, int64(i%50)*1000, int64(i/50)*1000)
	}
	assert.Less(t, h.AverageEntitiesPerCell(), 16.0)
}
