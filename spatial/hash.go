// Package spatial implements the zone's 2D spatial hash: a grid of cells
// mapping (cellX, cellZ) to the entities currently inside, used for O(1)
// amortized neighbor queries by the movement, combat, and replication
// systems. It is owned exclusively by the simulation goroutine.
package spatial

import (
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

type cellKey struct{ x, z int32 }

// Hash is the 2D cell grid. Cells are preserved across Clear calls so the
// underlying slices are reused rather than reallocated every tick: Clear
// empties cells but preserves the cell map to amortize allocations.
type Hash struct {
	cellSize int64
	cells    map[cellKey][]ecs.Entity
	// location records each entity's last-known cell so Update can find its
	// old slice without a linear scan.
	location map[ecs.Entity]cellKey
	// buf is the scratch result buffer returned by Query; it is written into
	// an internal buffer and returned as a view, so callers must copy if
	// they retain it across further queries.
	buf []ecs.Entity
}

// New constructs a Hash with the given cell size in fixed-point units.
func New(cellSize int64) *Hash {
	return &Hash{
		cellSize: cellSize,
		cells:    make(map[cellKey][]ecs.Entity),
		location: make(map[ecs.Entity]cellKey),
	}
}

func (h *Hash) keyOf(x, z int64) cellKey {
	return cellKey{x: int32(floorDiv(x, h.cellSize)), z: int32(floorDiv(z, h.cellSize))}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Insert places e into the cell containing (x, z). Idempotent: re-inserting
// an entity already in that cell is a no-op.
func (h *Hash) Insert(e ecs.Entity, x, z int64) {
	k := h.keyOf(x, z)
	if existing, ok := h.location[e]; ok {
		if existing == k {
			return
		}
		h.removeFromCell(existing, e)
	}
	h.cells[k] = append(h.cells[k], e)
	h.location[e] = k
}

// Update moves e from (oldX, oldZ) to (newX, newZ). O(1) when the
// destination cell is unchanged; otherwise one removal plus one insertion.
func (h *Hash) Update(e ecs.Entity, oldX, oldZ, newX, newZ int64) {
	oldKey := h.keyOf(oldX, oldZ)
	newKey := h.keyOf(newX, newZ)
	if oldKey == newKey {
		// still idempotent-insert in case e wasn't tracked yet.
		h.Insert(e, newX, newZ)
		return
	}
	h.removeFromCell(oldKey, e)
	h.cells[newKey] = append(h.cells[newKey], e)
	h.location[e] = newKey
}

func (h *Hash) removeFromCell(k cellKey, e ecs.Entity) {
	slice := h.cells[k]
	for i, ent := range slice {
		if ent == e {
			slice[i] = slice[len(slice)-1]
			h.cells[k] = slice[:len(slice)-1]
			break
		}
	}
	delete(h.location, e)
}

// Remove drops e from the hash entirely (used on entity destruction).
func (h *Hash) Remove(e ecs.Entity) {
	if k, ok := h.location[e]; ok {
		h.removeFromCell(k, e)
	}
}

// Query returns every entity in a cell whose disc-of-radius-r at (x, z)
// intersects. The result is a view into an internal buffer, valid only until
// the next Query/Clear call — callers that need to retain it must copy.
// Results are in cell-iteration order, not distance-sorted, and are not
// re-verified for existence: the caller must check aliveness itself.
func (h *Hash) Query(x, z, r int64) []ecs.Entity {
	h.buf = h.buf[:0]
	if r < 0 {
		return h.buf
	}
	minX, maxX := floorDiv(x-r, h.cellSize), floorDiv(x+r, h.cellSize)
	minZ, maxZ := floorDiv(z-r, h.cellSize), floorDiv(z+r, h.cellSize)
	for cx := minX; cx <= maxX; cx++ {
		for cz := minZ; cz <= maxZ; cz++ {
			h.buf = append(h.buf, h.cells[cellKey{x: int32(cx), z: int32(cz)}]...)
		}
	}
	return h.buf
}

// Clear empties every cell's entity list but preserves the cell map itself
// (and the location index), so a full rebuild at the top of updatePhysics
// doesn't repeatedly reallocate map buckets.
func (h *Hash) Clear() {
	for k := range h.cells {
		h.cells[k] = h.cells[k][:0]
	}
	for e := range h.location {
		delete(h.location, e)
	}
}

// CellOf returns the cell coordinate currently recorded for e, and whether
// e is tracked at all. Used by invariant-checking tests.
func (h *Hash) CellOf(e ecs.Entity) (x, z int32, ok bool) {
	k, ok := h.location[e]
	return k.x, k.z, ok
}

// AverageEntitiesPerCell reports the mean occupancy of non-empty cells,
// matching the tuning budget of keeping average occupancy under 16.
func (h *Hash) AverageEntitiesPerCell() float64 {
	nonEmpty := 0
	total := 0
	for _, v := range h.cells {
		if len(v) == 0 {
			continue
		}
		nonEmpty++
		total += len(v)
	}
	if nonEmpty == 0 {
		return 0
	}
	return float64(total) / float64(nonEmpty)
}

// PositionKey is a convenience for converting a fixedpoint.Vec3 into the
// (x, z) pair the hash indexes on, ignoring the vertical axis.
func PositionKey(p fixedpoint.Vec3) (x, z int64) {
	return p.X, p.Z
}
