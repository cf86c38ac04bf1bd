// Package migration implements the per-entity authority-transfer
// state machine: source-side preparation through target-side completion,
// with exactly-once delivery via a per-source-zone sequence number.
package migration

import (
	"fmt"
	"sync"
	"time"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// State is one migration's current phase.
type State int

const (
	None State = iota
	Preparing
	Transferring
	Syncing
	Completing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case None:
		return "NONE"
	case Preparing:
		return "PREPARING"
	case Transferring:
		return "TRANSFERRING"
	case Syncing:
		return "SYNCING"
	case Completing:
		return "COMPLETING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// EntitySnapshot carries the full per-entity state transferred between
// zones.
type EntitySnapshot struct {
	Position     fixedpoint.Vec3
	Velocity     fixedpoint.Vec3
	Rotation     ecs.Rotation
	Combat       ecs.CombatState
	Network      ecs.NetworkState
	Input        ecs.InputState
	AntiCheat    ecs.AntiCheatState
	PlayerID     uint64
	ConnectionID uint32
}

// Migration is one entity's in-flight authority transfer.
type Migration struct {
	Entity     ecs.Entity
	SourceZone uint32
	TargetZone uint32
	Sequence   uint64
	State      State
	Snapshot   EntitySnapshot
	StartedAt  time.Time
	Timeout    time.Duration
}

// RedirectFunc is invoked once a source-side migration reaches Completed,
// telling the transport layer to redirect the client's connection.
type RedirectFunc func(connectionID uint32, newZone uint32, newPort int)

// Manager tracks every in-flight migration this zone participates in,
// either as source or as target.
type Manager struct {
	mu sync.Mutex

	zoneID      uint32
	defaultTO   time.Duration
	syncOverlap time.Duration
	nextSeq     uint64

	outgoing map[ecs.Entity]*Migration
	// seen dedups (sourceZone, sequence) pairs this zone has already
	// accepted as a migration target, so a duplicate pub/sub delivery is
	// idempotently dropped.
	seen map[seenKey]struct{}

	onRedirect RedirectFunc
}

type seenKey struct {
	sourceZone uint32
	sequence   uint64
}

// NewManager constructs a migration Manager for zoneID.
func NewManager(zoneID uint32, defaultTimeout, syncOverlap time.Duration, onRedirect RedirectFunc) *Manager {
	return &Manager{
		zoneID:      zoneID,
		defaultTO:   defaultTimeout,
		syncOverlap: syncOverlap,
		outgoing:    make(map[ecs.Entity]*Migration),
		seen:        make(map[seenKey]struct{}),
		onRedirect:  onRedirect,
	}
}

// InitiateMigration starts a source-side migration for e to targetZone,
// capturing its full state and entering Preparing.
func (m *Manager) InitiateMigration(e ecs.Entity, targetZone uint32, snapshot EntitySnapshot, now time.Time) *Migration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	mig := &Migration{
		Entity:     e,
		SourceZone: m.zoneID,
		TargetZone: targetZone,
		Sequence:   m.nextSeq,
		State:      Preparing,
		Snapshot:   snapshot,
		StartedAt:  now,
		Timeout:    m.defaultTO,
	}
	m.outgoing[e] = mig
	return mig
}

// BeginTransfer moves a Preparing migration to Transferring, the point at
// which the source publishes the snapshot over pub/sub.
func (m *Manager) BeginTransfer(e ecs.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mig, ok := m.outgoing[e]
	if !ok || mig.State != Preparing {
		return fmt.Errorf("migration: entity %v not in PREPARING", e)
	}
	mig.State = Transferring
	return nil
}

// OnTargetAck moves a Transferring migration to Syncing once the target
// zone confirms it restored the entity locally.
func (m *Manager) OnTargetAck(e ecs.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mig, ok := m.outgoing[e]
	if !ok || mig.State != Transferring {
		return fmt.Errorf("migration: entity %v not in TRANSFERRING", e)
	}
	mig.State = Syncing
	return nil
}

// ReadyToComplete reports whether a Syncing migration's overlap window has
// elapsed and it may proceed to Completing.
func (m *Manager) ReadyToComplete(e ecs.Entity, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	mig, ok := m.outgoing[e]
	if !ok || mig.State != Syncing {
		return false
	}
	return now.Sub(mig.StartedAt) >= m.syncOverlap
}

// Complete finalizes a source-side migration: Completing then Completed,
// invoking onRedirect so the client reconnects to the target.
func (m *Manager) Complete(e ecs.Entity, newPort int, now time.Time) error {
	m.mu.Lock()
	mig, ok := m.outgoing[e]
	if !ok || mig.State != Syncing {
		m.mu.Unlock()
		return fmt.Errorf("migration: entity %v not in SYNCING", e)
	}
	mig.State = Completing
	conn := mig.Snapshot.ConnectionID
	target := mig.TargetZone
	mig.State = Completed
	delete(m.outgoing, e)
	m.mu.Unlock()

	if m.onRedirect != nil {
		m.onRedirect(conn, target, newPort)
	}
	return nil
}

// CheckTimeout fails any outgoing migration that has exceeded its timeout;
// the source entity is retained rather than destroyed. Returns the
// entities that timed out.
func (m *Manager) CheckTimeout(now time.Time) []ecs.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []ecs.Entity
	for e, mig := range m.outgoing {
		if mig.State == Completed || mig.State == Failed {
			continue
		}
		if now.Sub(mig.StartedAt) > mig.Timeout {
			mig.State = Failed
			failed = append(failed, e)
			delete(m.outgoing, e)
		}
	}
	return failed
}

// Outgoing returns the current state of a source-side migration, if any.
func (m *Manager) Outgoing(e ecs.Entity) (*Migration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mig, ok := m.outgoing[e]
	return mig, ok
}

// AcceptIncoming is called on the target zone when a TRANSFERRING snapshot
// arrives over pub/sub. It reports whether this (sourceZone, sequence)
// pair is new (and therefore should be applied) or a duplicate delivery
// that must be idempotently dropped.
func (m *Manager) AcceptIncoming(sourceZone uint32, sequence uint64) (isNew bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := seenKey{sourceZone: sourceZone, sequence: sequence}
	if _, dup := m.seen[key]; dup {
		return false
	}
	m.seen[key] = struct{}{}
	return true
}
