// Package handoff implements the player-level zone handoff
// controller: distance-driven phase transitions around entity migration,
// target-zone projection, and cryptographically random handoff tokens.
package handoff

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// Phase is the player-facing handoff state.
type Phase int

const (
	PhaseNone Phase = iota
	PhasePreparing
	PhaseAuraOverlap
	PhaseMigrating
	PhaseSwitching
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "NONE"
	case PhasePreparing:
		return "PREPARING"
	case PhaseAuraOverlap:
		return "AURA_OVERLAP"
	case PhaseMigrating:
		return "MIGRATING"
	case PhaseSwitching:
		return "SWITCHING"
	case PhaseCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// PartitionLookup resolves the zone owning a world point; wired to the
// orchestrator's static or dynamic shard table.
type PartitionLookup func(x, z float64) (zoneID uint32, ok bool)

// Handoff is one player's in-flight handoff state.
type Handoff struct {
	Entity     ecs.Entity
	Phase      Phase
	TargetZone uint32
	Token      string
	// migrationCompleted is set externally once the migration.Manager
	// reports the entity's migration reached Completed; only then can
	// EdgeDistance <= handoffDistance promote to SWITCHING.
	migrationCompleted bool
}

// Controller tracks every active handoff for a zone.
type Controller struct {
	mu     sync.Mutex
	cfg    config.HandoffConfig
	lookup PartitionLookup
	active map[ecs.Entity]*Handoff
}

// New constructs a Controller bound to cfg and a partition lookup.
func New(cfg config.HandoffConfig, lookup PartitionLookup) *Controller {
	return &Controller{cfg: cfg, lookup: lookup, active: make(map[ecs.Entity]*Handoff)}
}

// ActiveHandoffs returns the number of in-flight handoffs.
func (c *Controller) ActiveHandoffs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// MarkMigrationCompleted records that e's underlying entity migration has
// reached Completed, unblocking the MIGRATING -> SWITCHING transition.
func (c *Controller) MarkMigrationCompleted(e ecs.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.active[e]; ok {
		h.migrationCompleted = true
	}
}

// Update advances e's handoff phase given its current distance-to-edge
// (meters, always >= 0) and world position/velocity for target projection.
// Returns the handoff's current phase after this update.
func (c *Controller) Update(e ecs.Entity, edgeDistance float64, pos, vel fixedpoint.Vec3) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, exists := c.active[e]

	switch {
	case edgeDistance <= c.cfg.HandoffDistance:
		if !exists {
			h = &Handoff{Entity: e, Phase: PhaseMigrating}
			c.active[e] = h
		}
		if h.Phase == PhaseMigrating && h.migrationCompleted {
			h.Phase = PhaseSwitching
			if h.Token == "" {
				h.Token, _ = generateToken()
			}
			if h.TargetZone == 0 {
				h.TargetZone, _ = c.projectTarget(pos, vel)
			}
		}
	case edgeDistance <= c.cfg.MigrationDistance:
		if !exists {
			h = &Handoff{Entity: e}
			c.active[e] = h
		}
		if h.Phase < PhaseMigrating {
			h.Phase = PhaseMigrating
			h.TargetZone, _ = c.projectTarget(pos, vel)
		}
	case edgeDistance <= c.cfg.AuraEnterDistance:
		if !exists {
			h = &Handoff{Entity: e}
			c.active[e] = h
		}
		if h.Phase < PhaseAuraOverlap {
			h.Phase = PhaseAuraOverlap
		}
	case edgeDistance <= c.cfg.PreparationDistance:
		if !exists {
			h = &Handoff{Entity: e, Phase: PhasePreparing}
			c.active[e] = h
		}
	default:
		// Beyond preparationDistance: cancel if we're still in a
		// cancellable phase (PREPARING/AURA_OVERLAP); MIGRATING onward is
		// best-effort and left alone.
		if exists && (h.Phase == PhasePreparing || h.Phase == PhaseAuraOverlap) {
			delete(c.active, e)
		}
		return PhaseNone
	}
	return h.Phase
}

// TargetZone returns the zone currently projected as e's handoff target,
// once its handoff has reached at least MIGRATING.
func (c *Controller) TargetZone(e ecs.Entity) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.active[e]
	if !ok || h.Phase < PhaseMigrating || h.TargetZone == 0 {
		return 0, false
	}
	return h.TargetZone, true
}

// Token returns the handoff token issued for e, if it has reached
// SWITCHING.
func (c *Controller) Token(e ecs.Entity) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.active[e]
	if !ok || h.Phase != PhaseSwitching {
		return "", false
	}
	return h.Token, true
}

// Complete finalizes e's handoff (the client has successfully reconnected
// to the target zone with the matching token) and clears its state.
func (c *Controller) Complete(e ecs.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, e)
}

// projectTarget forward-projects pos by vel*2s and asks the partition map
// which zone contains that point. Falls back to returning ok=false
// when the lookup can't resolve a zone for the projected point.
func (c *Controller) projectTarget(pos, vel fixedpoint.Vec3) (uint32, bool) {
	const projectionSeconds = 2.0
	px := fixedpoint.ToFloat(pos.X) + fixedpoint.ToFloat(vel.X)*projectionSeconds
	pz := fixedpoint.ToFloat(pos.Z) + fixedpoint.ToFloat(vel.Z)*projectionSeconds
	if c.lookup == nil {
		return 0, false
	}
	return c.lookup(px, pz)
}

// generateToken produces a 64-hex-character handoff token from 32 bytes of
// crypto/rand. The target zone validates it before accepting the
// redirected client, so a guessable token would let an attacker hijack a
// migration.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("handoff: generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
