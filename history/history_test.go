package history

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

func TestRingExactMatch(t *testing.T) {
	r := NewRing()
	pos := fixedpoint.Vec3{X: fixedpoint.FromFloat(5)}
	r.Record(1000, pos, fixedpoint.Vec3{}, ecs.Rotation{})
	e, err := r.At(1000)
	require.NoError(t, err)
	require.Equal(t, pos, e.Position)
}

func TestRingInterpolation(t *testing.T) {
	r := NewRing()
	r.Record(1000, fixedpoint.Vec3{X: fixedpoint.FromFloat(0)}, fixedpoint.Vec3{}, ecs.Rotation{})
	r.Record(1100, fixedpoint.Vec3{X: fixedpoint.FromFloat(10)}, fixedpoint.Vec3{}, ecs.Rotation{})
	e, err := r.At(1050)
	require.NoError(t, err)
	require.InDelta(t, 5.0, fixedpoint.ToFloat(e.Position.X), 0.01)
}

func TestRingOutOfRange(t *testing.T) {
	r := NewRing()
	r.Record(1000, fixedpoint.Vec3{}, fixedpoint.Vec3{}, ecs.Rotation{})
	r.Record(1100, fixedpoint.Vec3{}, fixedpoint.Vec3{}, ecs.Rotation{})
	_, err := r.At(500)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestRingEvictsOldEntries(t *testing.T) {
	r := NewRing()
	r.Record(0, fixedpoint.Vec3{}, fixedpoint.Vec3{}, ecs.Rotation{})
	r.Record(windowMs+1, fixedpoint.Vec3{}, fixedpoint.Vec3{}, ecs.Rotation{})
	oldest, ok := r.Oldest()
	require.True(t, ok)
	require.Equal(t, int64(windowMs+1), oldest)
}

func TestRingCapacityBackstop(t *testing.T) {
	r := NewRing()
	for i := 0; i < capacity+10; i++ {
		r.Record(int64(i), fixedpoint.Vec3{}, fixedpoint.Vec3{}, ecs.Rotation{})
	}
	require.LessOrEqual(t, r.Len(), capacity)
}

func TestCompensatorEffectiveTimestampClampsRewind(t *testing.T) {
	c := NewCompensator(500, 0.1)
	eff := c.EffectiveTimestamp(10000, 8000)
	require.Equal(t, int64(9500), eff)
}

func TestCompensatorHitTest(t *testing.T) {
	r := NewRing()
	r.Record(9000, fixedpoint.Vec3{X: fixedpoint.FromFloat(100)}, fixedpoint.Vec3{}, ecs.Rotation{})
	r.Record(9600, fixedpoint.Vec3{X: fixedpoint.FromFloat(0)}, fixedpoint.Vec3{}, ecs.Rotation{})
	c := NewCompensator(500, 0.1)
	// target moved away between 9000 and 9600. The attacker's claimed
	// timestamp of 9050 is clamped to 9500 by the 500ms bound, where the
	// interpolated target is at x≈16.7, far from the claimed x=100, so the
	// hit is rejected.
	hit, err := c.HitTest(r, 10000, 9050, fixedpoint.Vec3{X: fixedpoint.FromFloat(100)}, 2.0)
	require.NoError(t, err)
	require.False(t, hit)
}
