package combat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/history"
)

type fakeSink struct {
	events []CombatEvent
}

func (f *fakeSink) RecordCombatEvent(e CombatEvent) {
	f.events = append(f.events, e)
}

func fixedRng(v float64) func() float64 {
	return func() float64 { return v }
}

func testCfg() config.CombatConfig {
	return config.Defaults().Combat
}

func TestProcessAttackRejectsCooldown(t *testing.T) {
	s := New(testCfg(), history.NewCompensator(500, 0.1), fixedRng(0.5), nil)
	attacker := ecs.CombatState{Health: 100, MaxHealth: 100, LastAttackTime: 900}
	res := s.ProcessAttack(ecs.Entity{}, attacker, fixedpoint.Vec3{}, 0, Melee, 1000, 1000, nil, 1, 1, 1)
	require.Equal(t, RejectCooldown, res.Rejection)
}

func TestProcessAttackRejectsAttackerDead(t *testing.T) {
	s := New(testCfg(), history.NewCompensator(500, 0.1), fixedRng(0.5), nil)
	attacker := ecs.CombatState{IsDead: true}
	res := s.ProcessAttack(ecs.Entity{}, attacker, fixedpoint.Vec3{}, 0, Melee, 1000, 1000, nil, 1, 1, 1)
	require.Equal(t, RejectAttackerDead, res.Rejection)
}

func TestProcessAttackHitsTargetInCone(t *testing.T) {
	sink := &fakeSink{}
	s := New(testCfg(), history.NewCompensator(500, 0.1), fixedRng(0.9), sink)
	attacker := ecs.CombatState{Health: 100, MaxHealth: 100, LastAttackTime: -10000}
	target := TargetCandidate{
		Entity:   ecs.Entity{},
		Position: fixedpoint.Vec3{Z: fixedpoint.FromFloat(1)},
		Combat:   ecs.CombatState{Health: 100, MaxHealth: 100},
	}
	res := s.ProcessAttack(ecs.Entity{}, attacker, fixedpoint.Vec3{}, 0, Melee, 1000, 1000, []TargetCandidate{target}, 1, 1, 1)
	require.Equal(t, RejectNone, res.Rejection)
	require.Greater(t, res.DamageDealt, uint32(0))
	require.Len(t, sink.events, 1)
}

func TestProcessAttackMissesOutOfCone(t *testing.T) {
	s := New(testCfg(), history.NewCompensator(500, 0.1), fixedRng(0.9), nil)
	attacker := ecs.CombatState{Health: 100, MaxHealth: 100, LastAttackTime: -10000}
	behind := TargetCandidate{
		Position: fixedpoint.Vec3{Z: fixedpoint.FromFloat(-1)},
		Combat:   ecs.CombatState{Health: 100, MaxHealth: 100},
	}
	res := s.ProcessAttack(ecs.Entity{}, attacker, fixedpoint.Vec3{}, 0, Melee, 1000, 1000, []TargetCandidate{behind}, 1, 1, 1)
	require.Equal(t, RejectNoTargetInCone, res.Rejection)
}

func TestProcessAttackKillsLowHealthTarget(t *testing.T) {
	s := New(testCfg(), history.NewCompensator(500, 0.1), fixedRng(0.01), nil)
	attacker := ecs.CombatState{Health: 100, MaxHealth: 100, LastAttackTime: -10000}
	target := TargetCandidate{
		Position: fixedpoint.Vec3{Z: fixedpoint.FromFloat(1)},
		Combat:   ecs.CombatState{Health: 1, MaxHealth: 100},
	}
	res := s.ProcessAttack(ecs.Entity{}, attacker, fixedpoint.Vec3{}, 0, Melee, 1000, 1000, []TargetCandidate{target}, 1, 1, 1)
	require.Equal(t, RejectNone, res.Rejection)
	require.True(t, res.TargetKilled)
}

func TestRegenStepSkipsRecentlyDamaged(t *testing.T) {
	s := New(testCfg(), history.NewCompensator(500, 0.1), fixedRng(0.5), nil)
	c := ecs.CombatState{Health: 50, MaxHealth: 100, LastAttackTime: 900}
	out := s.RegenStep(1000, c)
	require.Equal(t, uint32(50), out.Health)
}

func TestRegenStepHealsIdleEntity(t *testing.T) {
	s := New(testCfg(), history.NewCompensator(500, 0.1), fixedRng(0.5), nil)
	c := ecs.CombatState{Health: 50, MaxHealth: 100, LastAttackTime: 0}
	out := s.RegenStep(100000, c)
	require.Greater(t, out.Health, uint32(50))
	require.LessOrEqual(t, out.Health, uint32(100))
}
