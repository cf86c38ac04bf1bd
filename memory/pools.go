// Package memory provides the zone's allocation pools: per-tick stack arenas
// and sync.Pool-backed free lists for the hot-path types that would
// otherwise allocate thousands of times a second (wire-format byte
// buffers, entity-id scratch slices).
package memory

import "sync"

// EntitySlicePool recycles []uint32 entity-id scratch slices. The spatial
// hash and the replication optimizer keep their own buffers and do not
// draw from it.
var EntitySlicePool = sync.Pool{
	New: func() interface{} {
		return make([]uint32, 0, 256)
	},
}

// GetEntitySlice retrieves a zero-length, pooled []uint32.
func GetEntitySlice() []uint32 {
	return EntitySlicePool.Get().([]uint32)[:0]
}

// PutEntitySlice returns a []uint32 to the pool. Oversized slices are
// dropped so one large burst (e.g. a 1000-entity zone-wide broadcast)
// doesn't permanently bloat the pool.
func PutEntitySlice(s []uint32) {
	if cap(s) > 4096 {
		return
	}
	EntitySlicePool.Put(s)
}

// ByteSlicePool recycles wire-format payload buffers, pre-sized for a
// typical single-packet payload (≤1400 bytes per the configured max packet
// size). The zone's aura-sync EntitySync encoding draws from it; the
// snapshot codec allocates its own buffers.
var ByteSlicePool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 1400)
	},
}

// GetByteSlice retrieves a zero-length, pooled []byte.
func GetByteSlice() []byte {
	return ByteSlicePool.Get().([]byte)[:0]
}

// PutByteSlice returns a []byte to the pool, dropping oversized buffers.
func PutByteSlice(b []byte) {
	if cap(b) > 16384 {
		return
	}
	ByteSlicePool.Put(b)
}
