package handoff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

func testCfg() config.HandoffConfig {
	return config.Defaults().Handoff
}

func alwaysZone(id uint32) PartitionLookup {
	return func(x, z float64) (uint32, bool) { return id, true }
}

func TestHandoffProgressesThroughPhases(t *testing.T) {
	c := New(testCfg(), alwaysZone(5))
	e := ecs.Entity{}
	pos := fixedpoint.Vec3{}
	vel := fixedpoint.Vec3{}

	require.Equal(t, PhasePreparing, c.Update(e, 60, pos, vel))
	require.Equal(t, PhaseAuraOverlap, c.Update(e, 40, pos, vel))
	require.Equal(t, PhaseMigrating, c.Update(e, 20, pos, vel))

	// Not yet SWITCHING: migration not reported complete.
	require.Equal(t, PhaseMigrating, c.Update(e, 8, pos, vel))

	c.MarkMigrationCompleted(e)
	require.Equal(t, PhaseSwitching, c.Update(e, 8, pos, vel))
	token, ok := c.Token(e)
	require.True(t, ok)
	require.Len(t, token, 64)
}

func TestHandoffTurnBackCancelsBeforeMigrating(t *testing.T) {
	c := New(testCfg(), alwaysZone(5))
	e := ecs.Entity{}
	pos := fixedpoint.Vec3{}
	vel := fixedpoint.Vec3{}

	require.Equal(t, PhasePreparing, c.Update(e, 60, pos, vel))
	require.Equal(t, 1, c.ActiveHandoffs())

	require.Equal(t, PhaseNone, c.Update(e, 80, pos, vel))
	require.Equal(t, 0, c.ActiveHandoffs())
}

func TestHandoffCancellationIsBestEffortAfterMigrating(t *testing.T) {
	c := New(testCfg(), alwaysZone(5))
	e := ecs.Entity{}
	pos := fixedpoint.Vec3{}
	vel := fixedpoint.Vec3{}

	c.Update(e, 20, pos, vel) // MIGRATING
	require.Equal(t, 1, c.ActiveHandoffs())
	c.Update(e, 90, pos, vel) // turning back no longer cancels
	require.Equal(t, 1, c.ActiveHandoffs())
}

func TestTokenUniquePerHandoff(t *testing.T) {
	c := New(testCfg(), alwaysZone(5))
	e1, e2 := ecs.EntityFromID(1, 1), ecs.EntityFromID(2, 1)
	for _, e := range []ecs.Entity{e1, e2} {
		c.Update(e, 20, fixedpoint.Vec3{}, fixedpoint.Vec3{})
		c.MarkMigrationCompleted(e)
		c.Update(e, 8, fixedpoint.Vec3{}, fixedpoint.Vec3{})
	}
	tok1, _ := c.Token(e1)
	tok2, _ := c.Token(e2)
	require.Len(t, tok1, 64)
	require.Len(t, tok2, 64)
	require.NotEqual(t, tok1, tok2)
}
