// Package aura implements the border-overlap projection: ghost
// copies of adjacent zones' entities inside our aura buffer, and the
// reverse — deciding which of our own entities to publish outward.
package aura

import (
	"math"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// Rect is an axis-aligned world-space rectangle (X/Z only).
type Rect struct {
	MinX, MaxX, MinZ, MaxZ float64
}

// Expand returns r grown by meters on every edge — used to derive the aura
// rectangle from a zone's core rectangle.
func (r Rect) Expand(meters float64) Rect {
	return Rect{MinX: r.MinX - meters, MaxX: r.MaxX + meters, MinZ: r.MinZ - meters, MaxZ: r.MaxZ + meters}
}

// Contains reports whether (x, z) lies within r.
func (r Rect) Contains(x, z float64) bool {
	return x >= r.MinX && x <= r.MaxX && z >= r.MinZ && z <= r.MaxZ
}

// Center returns the rectangle's midpoint.
func (r Rect) Center() (x, z float64) {
	return (r.MinX + r.MaxX) / 2, (r.MinZ + r.MaxZ) / 2
}

// GhostEntry is one entity's read-only projection from an adjacent zone.
type GhostEntry struct {
	Entity     ecs.Entity
	OwnerZone  uint32
	Position   fixedpoint.Vec3
	Velocity   fixedpoint.Vec3
	LastSynced int64
}

// Manager tracks the aura rectangle for one zone, the ghosts projected into
// it from adjacent zones, and which of our own entities are currently
// eligible for outward publication.
type Manager struct {
	core Rect
	aura Rect

	ghosts map[ecs.Entity]GhostEntry
	owned  map[ecs.Entity]bool // our entities currently inside the aura buffer
}

// New constructs an aura Manager for a zone occupying core, expanded by the
// configured buffer.
func New(core Rect, cfg config.AuraConfig) *Manager {
	return &Manager{
		core:   core,
		aura:   core.Expand(cfg.BufferMeters),
		ghosts: make(map[ecs.Entity]GhostEntry),
		owned:  make(map[ecs.Entity]bool),
	}
}

// OnEntityEnteringAura registers a ghost for an entity newly visible in our
// aura, owned by fromZone.
func (m *Manager) OnEntityEnteringAura(e ecs.Entity, pos fixedpoint.Vec3, fromZone uint32, now int64) {
	m.ghosts[e] = GhostEntry{Entity: e, OwnerZone: fromZone, Position: pos, LastSynced: now}
}

// OnEntityLeavingAura drops a ghost entry once its owner reports the entity
// has left our shared aura (or we've taken ownership of it ourselves).
func (m *Manager) OnEntityLeavingAura(e ecs.Entity, toZone uint32) {
	delete(m.ghosts, e)
}

// OnEntityStateFromAdjacentZone refreshes an existing ghost's projected
// position/velocity from a sync message.
func (m *Manager) OnEntityStateFromAdjacentZone(zone uint32, e ecs.Entity, pos, vel fixedpoint.Vec3, now int64) {
	g, ok := m.ghosts[e]
	if !ok {
		g = GhostEntry{Entity: e, OwnerZone: zone}
	}
	g.OwnerZone = zone
	g.Position = pos
	g.Velocity = vel
	g.LastSynced = now
	m.ghosts[e] = g
}

// Ghost returns the current ghost projection for e, if any.
func (m *Manager) Ghost(e ecs.Entity) (GhostEntry, bool) {
	g, ok := m.ghosts[e]
	return g, ok
}

// ShouldTakeOwnership reports whether e (at pos, owned by an adjacent zone
// whose core center is adjacentCenterX/Z) should transfer authority to us:
// it must be closer to our core center than to theirs, and at least
// OwnershipTransferThreshold meters inside our core.
func (m *Manager) ShouldTakeOwnership(pos fixedpoint.Vec3, adjacentCenterX, adjacentCenterZ float64, cfg config.AuraConfig) bool {
	x, z := fixedpoint.ToFloat(pos.X), fixedpoint.ToFloat(pos.Z)
	if !insetInCore(m.core, x, z, cfg.OwnershipTransferThreshold) {
		return false
	}
	ourCX, ourCZ := m.core.Center()
	distOurs := math.Hypot(x-ourCX, z-ourCZ)
	distTheirs := math.Hypot(x-adjacentCenterX, z-adjacentCenterZ)
	return distOurs < distTheirs
}

// insetInCore reports whether (x, z) lies at least threshold meters inside
// every edge of core.
func insetInCore(core Rect, x, z, threshold float64) bool {
	return x >= core.MinX+threshold && x <= core.MaxX-threshold &&
		z >= core.MinZ+threshold && z <= core.MaxZ-threshold
}

// MarkOwnedInAura records that one of our own entities at pos currently
// falls inside the aura buffer (and is therefore eligible for outward
// sync), or clears it if pos has moved back into the deep core/out of
// range entirely. Called once per entity per tick from updateGameLogic's
// aura zone-transition check.
func (m *Manager) MarkOwnedInAura(e ecs.Entity, pos fixedpoint.Vec3) {
	x, z := fixedpoint.ToFloat(pos.X), fixedpoint.ToFloat(pos.Z)
	if m.aura.Contains(x, z) && !m.core.Contains(x, z) {
		m.owned[e] = true
		return
	}
	// Entities deep in the core or outside the aura entirely aren't synced.
	delete(m.owned, e)
}

// GetEntitiesToSync returns every owned entity currently flagged for
// outward aura publication.
func (m *Manager) GetEntitiesToSync() []ecs.Entity {
	out := make([]ecs.Entity, 0, len(m.owned))
	for e := range m.owned {
		out = append(out, e)
	}
	return out
}

// PurgeEntity drops all aura bookkeeping for a destroyed entity.
func (m *Manager) PurgeEntity(e ecs.Entity) {
	delete(m.ghosts, e)
	delete(m.owned, e)
}
