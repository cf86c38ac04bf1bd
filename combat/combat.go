// Package combat implements the attack resolution pipeline: cooldown
// and state checks, cone-based target selection, damage/critical
// computation, death handling, and passive regeneration. It is lag-
// compensation-aware but does not own the rewind math itself — that lives
// in history.Compensator, injected here as a collaborator.
package combat

import (
	"math"
	"time"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/history"
)

// WeaponType distinguishes the cone-selection geometry.
type WeaponType int

const (
	Melee WeaponType = iota
	Ranged
)

// Rejection enumerates the non-damage outcomes an attack attempt can hit
// before target selection even runs.
type Rejection int

const (
	RejectNone Rejection = iota
	RejectCooldown
	RejectAttackerDead
	RejectTargetMissing
	RejectTargetDead
	RejectNoTargetInCone
)

// AttackResult is the outcome of one processAttack call.
type AttackResult struct {
	Rejection    Rejection
	Target       ecs.Entity
	DamageDealt  uint32
	IsCritical   bool
	TargetKilled bool
}

// Rewinder resolves a target's historical position for lag compensation;
// satisfied by history.Compensator plus a ring lookup the caller supplies
// per-entity, kept as an interface so combat doesn't import the entity
// store directly.
type Rewinder interface {
	HistoricalPosition(ring *history.Ring, now, clientTimestamp int64) (fixedpoint.Vec3, error)
}

// CombatEvent is the record persisted to the cold store for every resolved
// attack.
type CombatEvent struct {
	EventID      string
	Timestamp    int64
	ZoneID       uint32
	AttackerID   uint64
	TargetID     uint64
	EventType    string
	DamageAmount uint32
	IsCritical   bool
	WeaponType   WeaponType
	Position     fixedpoint.Vec3
	ServerTick   uint64
}

// EventSink receives a CombatEvent for every resolved attack and death;
// the zone core wires this to its cold-store persistence adapter.
type EventSink interface {
	RecordCombatEvent(CombatEvent)
}

// TargetCandidate is one entity considered for cone selection. PlayerID is
// zero for non-player targets; it only feeds the persisted combat events.
type TargetCandidate struct {
	Entity   ecs.Entity
	Position fixedpoint.Vec3
	Combat   ecs.CombatState
	Ring     *history.Ring
	PlayerID uint64
}

// System resolves attacks and regen ticks against the entity store's
// CombatState components.
type System struct {
	cfg  config.CombatConfig
	comp *history.Compensator
	rng  func() float64
	sink EventSink
}

// New constructs a combat System. rng supplies the [0,1) draw used for
// critical-hit and damage-variance rolls; pass a deterministic stub in
// tests, math/rand in production wiring.
func New(cfg config.CombatConfig, comp *history.Compensator, rng func() float64, sink EventSink) *System {
	return &System{cfg: cfg, comp: comp, rng: rng, sink: sink}
}

// ProcessAttack resolves one attack attempt from attacker at attackerPos
// facing attackerYaw, against candidates, using lag compensation to rewind
// each candidate's position to the attacker's claimed clientTimestamp.
func (s *System) ProcessAttack(attackerEntity ecs.Entity, attackerCombat ecs.CombatState, attackerPos fixedpoint.Vec3, attackerYaw float64, weapon WeaponType, now, clientTimestamp int64, candidates []TargetCandidate, attackerID uint64, zoneID uint32, serverTick uint64) AttackResult {
	if attackerCombat.IsDead {
		return AttackResult{Rejection: RejectAttackerDead}
	}
	cooldown := s.cfg.AttackCooldown
	if now-attackerCombat.LastAttackTime < cooldown.Milliseconds() {
		return AttackResult{Rejection: RejectCooldown}
	}
	if len(candidates) == 0 {
		return AttackResult{Rejection: RejectTargetMissing}
	}

	angle, rng := s.coneFor(weapon)
	var best *TargetCandidate
	bestDistSq := int64(math.MaxInt64)
	for i := range candidates {
		c := &candidates[i]
		if c.Combat.IsDead {
			continue
		}
		if !s.cfg.FriendlyFire && c.Combat.TeamID != 0 && c.Combat.TeamID == attackerCombat.TeamID {
			continue
		}
		pos := c.Position
		if c.Ring != nil {
			if rewound, err := s.comp.HistoricalPosition(c.Ring, now, clientTimestamp); err == nil {
				pos = rewound
			}
		}
		if !inCone(attackerPos, attackerYaw, pos, angle, rng) {
			continue
		}
		distSq := attackerPos.DistSqXZ(pos)
		if distSq < bestDistSq {
			bestDistSq = distSq
			cCopy := *c
			cCopy.Position = pos
			best = &cCopy
		}
	}
	if best == nil {
		return AttackResult{Rejection: RejectNoTargetInCone}
	}

	damage, crit := s.rollDamage()
	newHealth := best.Combat.Health
	killed := false
	if damage >= newHealth {
		newHealth = 0
		killed = true
	} else {
		newHealth -= damage
	}

	if s.sink != nil {
		s.sink.RecordCombatEvent(CombatEvent{
			Timestamp:    now,
			ZoneID:       zoneID,
			AttackerID:   attackerID,
			TargetID:     best.PlayerID,
			EventType:    "attack",
			DamageAmount: damage,
			IsCritical:   crit,
			WeaponType:   weapon,
			Position:     best.Position,
			ServerTick:   serverTick,
		})
		if killed {
			s.sink.RecordCombatEvent(CombatEvent{
				Timestamp:  now,
				ZoneID:     zoneID,
				AttackerID: attackerID,
				TargetID:   best.PlayerID,
				EventType:  "death",
				Position:   best.Position,
				ServerTick: serverTick,
			})
		}
	}

	return AttackResult{
		Target:       best.Entity,
		DamageDealt:  damage,
		IsCritical:   crit,
		TargetKilled: killed,
	}
}

func (s *System) coneFor(weapon WeaponType) (angleRadians, rangeMeters float64) {
	if weapon == Melee {
		return s.cfg.MeleeAngleRadians, s.cfg.MeleeRange
	}
	return s.cfg.RangedAngleRad, s.cfg.RangedRange
}

// inCone reports whether target lies within rangeMeters of origin and
// within angleRadians/2 of facing yaw.
func inCone(origin fixedpoint.Vec3, yaw float64, target fixedpoint.Vec3, angleRadians, rangeMeters float64) bool {
	dx := fixedpoint.ToFloat(target.X - origin.X)
	dz := fixedpoint.ToFloat(target.Z - origin.Z)
	dist := math.Hypot(dx, dz)
	if dist > rangeMeters {
		return false
	}
	if dist < 1e-9 {
		return true
	}
	toTarget := math.Atan2(dx, dz)
	delta := math.Mod(toTarget-yaw+math.Pi, 2*math.Pi) - math.Pi
	if delta < -math.Pi {
		delta += 2 * math.Pi
	}
	return math.Abs(delta) <= angleRadians/2
}

// rollDamage draws the damage-variance and critical-hit random outcome for
// one hit.
func (s *System) rollDamage() (damage uint32, critical bool) {
	base := float64(s.cfg.BaseDamage)
	variance := base * s.cfg.DamageVariance * (s.rng()*2 - 1)
	damage = uint32(math.Max(1, base+variance))
	if s.rng() < s.cfg.CriticalChance {
		damage = uint32(float64(damage) * s.cfg.CriticalMult)
		critical = true
	}
	return damage, critical
}

// RegenStep applies one regen tick: entities damaged within
// RegenIdleWindow are skipped, others gain RegenAmount capped at
// MaxHealth. Called at 1Hz by the tick loop, not every tick.
func (s *System) RegenStep(now int64, combat ecs.CombatState) ecs.CombatState {
	if combat.IsDead || combat.Health >= combat.MaxHealth {
		return combat
	}
	if time.Duration(now-combat.LastAttackTime)*time.Millisecond < s.cfg.RegenIdleWindow {
		return combat
	}
	combat.Health += s.cfg.RegenAmount
	if combat.Health > combat.MaxHealth {
		combat.Health = combat.MaxHealth
	}
	return combat
}
