package replication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/spatial"
)

func testCfg() config.ReplicationConfig {
	return config.Defaults().Replication
}

func TestVisibilityTiersByDistance(t *testing.T) {
	store := ecs.NewStore(4)
	hash := spatial.New(1600)

	near := store.Create()
	mid := store.Create()
	far := store.Create()
	tooFar := store.Create()

	positions := map[ecs.Entity]fixedpoint.Vec3{
		near:   {X: fixedpoint.FromFloat(10)},
		mid:    {X: fixedpoint.FromFloat(70)},
		far:    {X: fixedpoint.FromFloat(150)},
		tooFar: {X: fixedpoint.FromFloat(1000)},
	}
	for e, p := range positions {
		x, z := spatial.PositionKey(p)
		hash.Insert(e, x, z)
	}

	opt := New(testCfg())
	self := store.Create()
	origin := fixedpoint.Vec3{}
	visible := opt.Visibility(hash, self, origin, func(ecs.Entity) bool { return true }, func(e ecs.Entity) (fixedpoint.Vec3, bool) {
		p, ok := positions[e]
		return p, ok
	})

	require.Len(t, visible, 3)
	require.Equal(t, TierNear, visible[0].Tier)
	require.Equal(t, TierMid, visible[1].Tier)
	require.Equal(t, TierFar, visible[2].Tier)
}

func TestVisibilityExcludesSelf(t *testing.T) {
	store := ecs.NewStore(2)
	hash := spatial.New(1600)
	self := store.Create()
	hash.Insert(self, 0, 0)

	opt := New(testCfg())
	visible := opt.Visibility(hash, self, fixedpoint.Vec3{}, func(ecs.Entity) bool { return true }, func(e ecs.Entity) (fixedpoint.Vec3, bool) {
		return fixedpoint.Vec3{}, true
	})
	require.Empty(t, visible)
}

func TestVisibilityTruncatesToMax(t *testing.T) {
	store := ecs.NewStore(100)
	hash := spatial.New(1600)
	positions := make(map[ecs.Entity]fixedpoint.Vec3)
	for i := 0; i < 80; i++ {
		e := store.Create()
		p := fixedpoint.Vec3{X: fixedpoint.FromFloat(float64(i) * 0.1)}
		positions[e] = p
		x, z := spatial.PositionKey(p)
		hash.Insert(e, x, z)
	}
	opt := New(testCfg())
	self := store.Create()
	visible := opt.Visibility(hash, self, fixedpoint.Vec3{}, func(ecs.Entity) bool { return true }, func(e ecs.Entity) (fixedpoint.Vec3, bool) {
		p, ok := positions[e]
		return p, ok
	})
	require.LessOrEqual(t, len(visible), testCfg().MaxEntitiesPerSnapshot)
}

func TestTrackerRespectsRate(t *testing.T) {
	tr := NewTracker()
	e := ecs.Entity{}
	require.True(t, tr.ShouldSend(1, e, 0, 10, 60))
	require.False(t, tr.ShouldSend(1, e, 1, 10, 60))
	require.True(t, tr.ShouldSend(1, e, 6, 10, 60))
}

func TestTrackerPurgeEntity(t *testing.T) {
	tr := NewTracker()
	e := ecs.Entity{}
	tr.ShouldSend(1, e, 0, 10, 60)
	tr.PurgeEntity(e)
	require.True(t, tr.ShouldSend(1, e, 1, 10, 60))
}
