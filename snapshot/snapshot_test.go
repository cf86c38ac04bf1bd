package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

func tenEntities() []Entity {
	out := make([]Entity, 10)
	for i := range out {
		out[i] = Entity{
			ID:            uint32(i + 1),
			Position:      fixedpoint.Vec3{X: int64(i * 1000)},
			Rotation:      ecs.Rotation{},
			HealthPercent: 100,
			EntityType:    ecs.EntityTypePlayer,
		}
	}
	return out
}

func TestFullDecodeRoundTrip(t *testing.T) {
	entities := tenEntities()
	raw := EncodeFull(42, entities)
	frame, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, uint32(42), frame.ServerTick)
	require.Len(t, frame.Entities, 10)
	for _, e := range entities {
		decoded := frame.Entities[e.ID]
		require.Equal(t, e.Position, decoded.Position)
		require.Equal(t, e.HealthPercent, decoded.HealthPercent)
	}
}

func TestDeltaSmallerThanFull(t *testing.T) {
	baseline := tenEntities()
	baselineMap := make(map[uint32]Entity, len(baseline))
	for _, e := range baseline {
		baselineMap[e.ID] = e
	}

	current := make([]Entity, len(baseline))
	copy(current, baseline)
	current[3].Position = current[3].Position.Add(fixedpoint.Vec3{X: 5})
	current[3].HealthPercent = 85

	full := EncodeFull(43, current)
	delta := EncodeDelta(43, 42, baselineMap, current, nil)

	require.Less(t, len(delta), len(full))
}

func TestApplyDeltaReproducesCurrent(t *testing.T) {
	baseline := tenEntities()
	baselineMap := make(map[uint32]Entity, len(baseline))
	for _, e := range baseline {
		baselineMap[e.ID] = e
	}

	current := make([]Entity, len(baseline))
	copy(current, baseline)
	current[3].Position = current[3].Position.Add(fixedpoint.Vec3{X: 5})
	current[3].HealthPercent = 85

	raw := EncodeDelta(43, 42, baselineMap, current, nil)
	frame, err := Decode(raw)
	require.NoError(t, err)

	result, err := Apply(baselineMap, frame)
	require.NoError(t, err)

	for _, e := range current {
		got := result[e.ID]
		require.Equal(t, e.Position, got.Position)
		require.Equal(t, e.HealthPercent, got.HealthPercent)
	}
}

func TestApplyDeltaHandlesRemoval(t *testing.T) {
	baseline := tenEntities()
	baselineMap := make(map[uint32]Entity, len(baseline))
	for _, e := range baseline {
		baselineMap[e.ID] = e
	}
	current := baseline[:9]
	raw := EncodeDelta(44, 42, baselineMap, current, []uint32{10})
	frame, err := Decode(raw)
	require.NoError(t, err)
	result, err := Apply(baselineMap, frame)
	require.NoError(t, err)
	_, ok := result[10]
	require.False(t, ok)
	require.Len(t, result, 9)
}

func TestApplyDeltaRejectsUnknownBaselineEntity(t *testing.T) {
	frame := Frame{
		ServerTick:   1,
		BaselineTick: 0,
		Entities:     map[uint32]Entity{5: {ID: 5}},
		ChangedMask:  map[uint32]uint16{5: FieldHealth},
	}
	_, err := Apply(map[uint32]Entity{}, frame)
	require.ErrorIs(t, err, ErrBaselineMissing)
}

func TestChecksumDeterministic(t *testing.T) {
	raw := EncodeFull(1, tenEntities())
	a := Checksum(raw)
	b := Checksum(raw)
	require.Equal(t, a, b)
}

func TestDecodeRejectsCorruptedFrame(t *testing.T) {
	raw := EncodeFull(1, tenEntities())
	raw[13] ^= 0xFF
	_, err := Decode(raw)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestDecodeRejectsTruncatedChecksum(t *testing.T) {
	raw := EncodeFull(1, tenEntities())
	_, err := Decode(raw[:len(raw)-1])
	require.Error(t, err)
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncated)
}
