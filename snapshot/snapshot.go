// Package snapshot implements the delta-compressed world-state
// codec: full snapshots for new clients, baseline-relative deltas for
// everyone else, variable-length position encoding, and a blake2b
// integrity checksum per frame.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// Changed-field bits, packed into the per-entity changed-fields mask.
const (
	FieldPosition = 1 << iota
	FieldRotation
	FieldVelocity
	FieldHealth
	FieldAnimState
	FieldEntityType
)

// NewEntityMask flags every field present — used for full snapshots and
// for entities appearing for the first time in a delta.
const NewEntityMask = 0xFFFF

// Entity is one entity's full replicated state, the unit both full
// snapshots and delta baselines are built from.
type Entity struct {
	ID            uint32
	Position      fixedpoint.Vec3
	Rotation      ecs.Rotation
	Velocity      fixedpoint.Vec3
	HealthPercent uint8
	AnimState     uint8
	EntityType    ecs.EntityType
}

// Frame is a decoded snapshot: header plus per-entity changed-field
// records plus removed-entity IDs.
type Frame struct {
	ServerTick   uint32
	BaselineTick uint32
	Entities     map[uint32]Entity
	ChangedMask  map[uint32]uint16
	Removed      []uint32
}

var (
	ErrTruncated       = errors.New("snapshot: truncated frame")
	ErrChecksum        = errors.New("snapshot: checksum mismatch")
	ErrBaselineMissing = errors.New("snapshot: entity absent from baseline and not flagged new")
)

// checksumLen is the trailing blake2b-256 checksum every frame carries
// over its header and body.
const checksumLen = 32

// EncodeFull builds a full snapshot (baselineTick == 0): every entity
// carries NewEntityMask and all fields, followed by the frame checksum.
func EncodeFull(serverTick uint32, entities []Entity) []byte {
	buf := make([]byte, 0, 12+len(entities)*32+checksumLen)
	buf = appendHeader(buf, serverTick, 0, uint16(len(entities)), 0)
	for _, e := range entities {
		buf = appendEntityFull(buf, e)
	}
	return appendChecksum(buf)
}

// EncodeDelta builds a delta snapshot against baseline: only entities whose
// state differs (or that are new) are serialized, with only their changed
// fields; removed lists entities present in baseline but absent from
// current.
func EncodeDelta(serverTick, baselineTick uint32, baseline map[uint32]Entity, current []Entity, removed []uint32) []byte {
	type rec struct {
		e    Entity
		base Entity
		mask uint16
	}
	recs := make([]rec, 0, len(current))
	for _, e := range current {
		base, ok := baseline[e.ID]
		if !ok {
			recs = append(recs, rec{e: e, mask: NewEntityMask})
			continue
		}
		mask := diffMask(base, e)
		if mask != 0 {
			recs = append(recs, rec{e: e, base: base, mask: mask})
		}
	}

	buf := make([]byte, 0, 16+len(recs)*16+len(removed)*4+checksumLen)
	buf = appendHeader(buf, serverTick, baselineTick, uint16(len(recs)), uint16(len(removed)))
	for _, r := range recs {
		buf = appendEntityFields(buf, r.e, r.mask, r.base.Position)
	}
	for _, id := range removed {
		buf = binary.LittleEndian.AppendUint32(buf, id)
	}
	return appendChecksum(buf)
}

func appendChecksum(buf []byte) []byte {
	sum := blake2b.Sum256(buf)
	return append(buf, sum[:]...)
}

func diffMask(base, cur Entity) uint16 {
	var mask uint16
	if base.Position != cur.Position {
		mask |= FieldPosition
	}
	if base.Rotation != cur.Rotation {
		mask |= FieldRotation
	}
	if base.Velocity != cur.Velocity {
		mask |= FieldVelocity
	}
	if base.HealthPercent != cur.HealthPercent {
		mask |= FieldHealth
	}
	if base.AnimState != cur.AnimState {
		mask |= FieldAnimState
	}
	if base.EntityType != cur.EntityType {
		mask |= FieldEntityType
	}
	return mask
}

func appendHeader(buf []byte, serverTick, baselineTick uint32, entityCount, removedCount uint16) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, serverTick)
	buf = binary.LittleEndian.AppendUint32(buf, baselineTick)
	buf = binary.LittleEndian.AppendUint16(buf, entityCount)
	buf = binary.LittleEndian.AppendUint16(buf, removedCount)
	return buf
}

func appendEntityFull(buf []byte, e Entity) []byte {
	return appendEntityFields(buf, e, NewEntityMask, fixedpoint.Vec3{})
}

func appendEntityFields(buf []byte, e Entity, mask uint16, baselinePos fixedpoint.Vec3) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, e.ID)
	buf = binary.LittleEndian.AppendUint16(buf, mask)
	if mask&FieldPosition != 0 {
		buf = appendPositionDelta(buf, baselinePos, e.Position)
	}
	if mask&FieldRotation != 0 {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(e.Rotation.Yaw)))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(e.Rotation.Pitch)))
	}
	if mask&FieldVelocity != 0 {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(e.Velocity.X)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(e.Velocity.Y)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(e.Velocity.Z)))
	}
	if mask&FieldHealth != 0 {
		buf = append(buf, e.HealthPercent)
	}
	if mask&FieldAnimState != 0 {
		buf = append(buf, e.AnimState)
	}
	if mask&FieldEntityType != 0 {
		buf = append(buf, byte(e.EntityType))
	}
	return buf
}

// appendPositionDelta appends the tag-byte-governed variable-length
// position encoding: one tag byte selecting a uniform per-component width,
// followed by dx,dy,dz relative to base at that width. The smallest width
// that fits all three components is chosen.
func appendPositionDelta(buf []byte, base, cur fixedpoint.Vec3) []byte {
	dx := cur.X - base.X
	dy := cur.Y - base.Y
	dz := cur.Z - base.Z
	switch {
	case fits8(dx) && fits8(dy) && fits8(dz):
		buf = append(buf, 0x00)
		buf = append(buf, byte(int8(dx)), byte(int8(dy)), byte(int8(dz)))
	case fits16(dx) && fits16(dy) && fits16(dz):
		buf = append(buf, 0x40)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(dx)))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(dy)))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(dz)))
	default:
		buf = append(buf, 0x80)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(dx)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(dy)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(dz)))
	}
	return buf
}

func fits8(v int64) bool  { return v >= -127 && v <= 127 }
func fits16(v int64) bool { return v >= -32767 && v <= 32767 }

// Decode parses a raw snapshot frame (full or delta) into a Frame,
// verifying the trailing checksum first. For a delta frame, positions are
// still relative to the baseline at this point — Apply resolves them
// against actual baseline entities.
func Decode(data []byte) (Frame, error) {
	if len(data) < 12+checksumLen {
		return Frame{}, ErrTruncated
	}
	body := data[:len(data)-checksumLen]
	if Checksum(body) != [checksumLen]byte(data[len(data)-checksumLen:]) {
		return Frame{}, ErrChecksum
	}
	serverTick := binary.LittleEndian.Uint32(body[0:4])
	baselineTick := binary.LittleEndian.Uint32(body[4:8])
	entityCount := binary.LittleEndian.Uint16(body[8:10])
	removedCount := binary.LittleEndian.Uint16(body[10:12])
	off := 12

	entities := make(map[uint32]Entity, entityCount)
	masks := make(map[uint32]uint16, entityCount)
	for i := 0; i < int(entityCount); i++ {
		e, mask, n, err := decodeEntity(body[off:])
		if err != nil {
			return Frame{}, err
		}
		entities[e.ID] = e
		masks[e.ID] = mask
		off += n
	}
	removed := make([]uint32, 0, removedCount)
	for i := 0; i < int(removedCount); i++ {
		if off+4 > len(body) {
			return Frame{}, ErrTruncated
		}
		removed = append(removed, binary.LittleEndian.Uint32(body[off:off+4]))
		off += 4
	}
	return Frame{ServerTick: serverTick, BaselineTick: baselineTick, Entities: entities, ChangedMask: masks, Removed: removed}, nil
}

func decodeEntity(b []byte) (Entity, uint16, int, error) {
	if len(b) < 6 {
		return Entity{}, 0, 0, ErrTruncated
	}
	id := binary.LittleEndian.Uint32(b[0:4])
	mask := binary.LittleEndian.Uint16(b[4:6])
	off := 6
	e := Entity{ID: id}

	if mask&FieldPosition != 0 {
		if off >= len(b) {
			return Entity{}, 0, 0, ErrTruncated
		}
		tag := b[off]
		off++
		switch tag {
		case 0x00:
			if off+3 > len(b) {
				return Entity{}, 0, 0, ErrTruncated
			}
			e.Position = fixedpoint.Vec3{
				X: int64(int8(b[off])), Y: int64(int8(b[off+1])), Z: int64(int8(b[off+2])),
			}
			off += 3
		case 0x40:
			if off+6 > len(b) {
				return Entity{}, 0, 0, ErrTruncated
			}
			e.Position = fixedpoint.Vec3{
				X: int64(int16(binary.LittleEndian.Uint16(b[off : off+2]))),
				Y: int64(int16(binary.LittleEndian.Uint16(b[off+2 : off+4]))),
				Z: int64(int16(binary.LittleEndian.Uint16(b[off+4 : off+6]))),
			}
			off += 6
		case 0x80:
			if off+12 > len(b) {
				return Entity{}, 0, 0, ErrTruncated
			}
			e.Position = fixedpoint.Vec3{
				X: int64(int32(binary.LittleEndian.Uint32(b[off : off+4]))),
				Y: int64(int32(binary.LittleEndian.Uint32(b[off+4 : off+8]))),
				Z: int64(int32(binary.LittleEndian.Uint32(b[off+8 : off+12]))),
			}
			off += 12
		default:
			return Entity{}, 0, 0, fmt.Errorf("snapshot: unknown position tag 0x%02x", tag)
		}
	}
	if mask&FieldRotation != 0 {
		if off+8 > len(b) {
			return Entity{}, 0, 0, ErrTruncated
		}
		e.Rotation.Yaw = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4])))
		e.Rotation.Pitch = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off+4 : off+8])))
		off += 8
	}
	if mask&FieldVelocity != 0 {
		if off+12 > len(b) {
			return Entity{}, 0, 0, ErrTruncated
		}
		e.Velocity = fixedpoint.Vec3{
			X: int64(int32(binary.LittleEndian.Uint32(b[off : off+4]))),
			Y: int64(int32(binary.LittleEndian.Uint32(b[off+4 : off+8]))),
			Z: int64(int32(binary.LittleEndian.Uint32(b[off+8 : off+12]))),
		}
		off += 12
	}
	if mask&FieldHealth != 0 {
		if off >= len(b) {
			return Entity{}, 0, 0, ErrTruncated
		}
		e.HealthPercent = b[off]
		off++
	}
	if mask&FieldAnimState != 0 {
		if off >= len(b) {
			return Entity{}, 0, 0, ErrTruncated
		}
		e.AnimState = b[off]
		off++
	}
	if mask&FieldEntityType != 0 {
		if off >= len(b) {
			return Entity{}, 0, 0, ErrTruncated
		}
		e.EntityType = ecs.EntityType(b[off])
		off++
	}
	return e, mask, off, nil
}

// Apply resolves a decoded delta Frame against baseline, producing the
// full current state map: applying a delta snapshot to its baseline
// yields the current full state. Position fields in the frame are
// deltas relative to the baseline entity's position, except for
// NewEntityMask entities where the frame already carries an absolute
// position (appendPositionDelta was called with a zero base).
func Apply(baseline map[uint32]Entity, frame Frame) (map[uint32]Entity, error) {
	out := make(map[uint32]Entity, len(baseline))
	for id, e := range baseline {
		out[id] = e
	}
	for id, e := range frame.Entities {
		mask := frame.ChangedMask[id]
		base, existed := baseline[id]
		if !existed && mask != NewEntityMask {
			return nil, fmt.Errorf("%w: entity %d", ErrBaselineMissing, id)
		}
		if existed {
			if mask&FieldPosition != 0 {
				base.Position = base.Position.Add(e.Position)
			}
			if mask&FieldRotation != 0 {
				base.Rotation = e.Rotation
			}
			if mask&FieldVelocity != 0 {
				base.Velocity = e.Velocity
			}
			if mask&FieldHealth != 0 {
				base.HealthPercent = e.HealthPercent
			}
			if mask&FieldAnimState != 0 {
				base.AnimState = e.AnimState
			}
			if mask&FieldEntityType != 0 {
				base.EntityType = e.EntityType
			}
			out[id] = base
		} else {
			out[id] = e
		}
	}
	for _, id := range frame.Removed {
		delete(out, id)
	}
	return out, nil
}

// Checksum returns the blake2b-256 checksum over a frame's header and
// body — the value Encode appends as the frame trailer and Decode
// verifies before parsing.
func Checksum(frame []byte) [32]byte {
	return blake2b.Sum256(frame)
}
