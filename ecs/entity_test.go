package ecs

import (
	"testing"

	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDestroyReusesGeneration(t *testing.T) {
	s := NewStore(4)
	e1 := s.Create()
	require.True(t, s.Alive(e1))

	s.SetPosition(e1, Position{Vec3: fixedpoint.Vec3{X: 1}})
	s.Destroy(e1)
	require.False(t, s.Alive(e1))
	_, ok := s.Position(e1)
	assert.False(t, ok, "destroyed entity must not retain components")

	e2 := s.Create()
	assert.NotEqual(t, e1, e2, "reused slot must carry a new generation")
}

func TestEachOnlyVisitsLive(t *testing.T) {
	s := NewStore(4)
	a := s.Create()
	b := s.Create()
	s.Destroy(a)

	seen := map[Entity]bool{}
	s.Each(func(e Entity) { seen[e] = true })

	assert.Len(t, seen, 1)
	assert.True(t, seen[b])
}

func TestComponentPresenceIndependence(t *testing.T) {
	s := NewStore(1)
	e := s.Create()
	s.SetCombat(e, CombatState{Health: 100, MaxHealth: 100})

	_, hasPos := s.Position(e)
	assert.False(t, hasPos)

	c, hasCombat := s.Combat(e)
	require.True(t, hasCombat)
	assert.Equal(t, uint32(100), c.Health)
}
