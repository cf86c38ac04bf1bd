package zone

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/history"
	"github.com/aycrith/darkages-zoned/memory"
	"github.com/aycrith/darkages-zoned/messenger"
	"github.com/aycrith/darkages-zoned/migration"
)

// StartCrossZone launches the background pub/sub reader that feeds
// z.crossZone. It returns immediately; the
// reader runs until ctx is cancelled. A no-op when the zone has no
// messenger (single-zone / test configurations).
func (z *Zone) StartCrossZone(ctx context.Context) {
	if z.msgr == nil {
		return
	}
	go func() {
		err := z.msgr.Listen(ctx, func(env messenger.Envelope) {
			select {
			case z.crossZone <- env:
			default:
				if z.logger != nil {
					z.logger.Warn("cross-zone queue saturated, dropping envelope")
				}
			}
		})
		if err != nil && err != context.Canceled && z.logger != nil {
			z.logger.Error("cross-zone listener exited", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// drainCrossZone applies every queued envelope, called once per tick from
// updateGameLogic. It never blocks: the channel send side
// already drops on a full queue.
func (z *Zone) drainCrossZone(now time.Time) {
	for {
		select {
		case env := <-z.crossZone:
			z.applyEnvelope(env, now)
		default:
			return
		}
	}
}

func (z *Zone) applyEnvelope(env messenger.Envelope, now time.Time) {
	switch env.Type {
	case messenger.EntitySync:
		z.applyEntitySync(env, now)
	case messenger.MigrationRequest:
		z.applyMigrationRequest(env, now)
	case messenger.MigrationState:
		z.applyMigrationAck(env, now)
	default:
		// Broadcast/Chat/ZoneStatus carry no simulation-state obligation for
		// this zone's own entities; left for a future chat/ops relay.
	}
}

// publishAuraSync pushes our own border-ring entities outward (the
// "which of our own entities are eligible for outward publication"). The
// partition map tells us which zone actually borders us; lacking a
// directed-adjacency table, we broadcast — every zone dedups by
// (sourceZone, remoteEntityId) and only the bordering zone's aura.Manager
// will ever mark these ghosts inside its own aura rectangle.
func (z *Zone) publishAuraSync(now time.Time) {
	if z.msgr == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	for _, e := range z.aura.GetEntitiesToSync() {
		pos, ok := z.store.Position(e)
		if !ok {
			continue
		}
		vel, _ := z.store.Velocity(e)
		payload := appendEntitySync(memory.GetByteSlice(), e.ID(), pos.Vec3, vel.Vec3)
		env := messenger.Envelope{
			Type:         messenger.EntitySync,
			SourceZoneID: z.cfg.Zone.ID,
			Timestamp:    uint32(now.Unix()),
			Payload:      payload,
		}
		err := z.msgr.PublishBroadcast(ctx, env)
		memory.PutByteSlice(payload)
		if err != nil && z.logger != nil {
			z.logger.Warn("aura sync publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (z *Zone) applyEntitySync(env messenger.Envelope, now time.Time) {
	remoteID, pos, vel, ok := decodeEntitySync(env.Payload)
	if !ok || env.SourceZoneID == z.cfg.Zone.ID {
		return
	}
	byRemote, ok := z.ghosts[env.SourceZoneID]
	if !ok {
		byRemote = make(map[uint32]ecs.Entity)
		z.ghosts[env.SourceZoneID] = byRemote
	}
	ghost, ok := byRemote[remoteID]
	nowMs := z.nowMs()
	if !ok {
		ghost = z.store.Create()
		z.store.SetEntityType(ghost, ecs.EntityTypeNPC)
		byRemote[remoteID] = ghost
		z.aura.OnEntityEnteringAura(ghost, pos, env.SourceZoneID, nowMs)
	}
	z.store.SetPosition(ghost, ecs.Position{Vec3: pos, Timestamp: nowMs})
	z.store.SetVelocity(ghost, ecs.Velocity{Vec3: vel})
	z.aura.OnEntityStateFromAdjacentZone(env.SourceZoneID, ghost, pos, vel, nowMs)
	z.hash.Update(ghost, pos.X, pos.Z, pos.X, pos.Z)
}

// applyMigrationRequest handles an incoming transfer when this zone is the
// target: it dedups on (sourceZone, sequence), spawns the entity locally
// from the carried snapshot, and acks the source so it can proceed to
// SYNCING.
func (z *Zone) applyMigrationRequest(env messenger.Envelope, now time.Time) {
	snap, ok := decodeMigrationSnapshot(env.Payload)
	if !ok {
		return
	}
	if !z.migrationMgr.AcceptIncoming(env.SourceZoneID, uint64(env.Sequence)) {
		return
	}
	nowMs := z.nowMs()
	e := z.store.Create()
	z.store.SetPosition(e, ecs.Position{Vec3: snap.pos, Timestamp: nowMs})
	z.store.SetVelocity(e, ecs.Velocity{Vec3: snap.vel})
	z.store.SetRotation(e, ecs.Rotation{Yaw: snap.yaw, Pitch: snap.pitch})
	z.store.SetCombat(e, ecs.CombatState{Health: snap.health, MaxHealth: snap.maxHealth, TeamID: snap.teamID})
	z.store.SetPlayer(e, ecs.PlayerInfo{PlayerID: snap.playerID, ConnectionID: snap.connID, Username: snap.username, SessionStart: nowMs})
	z.store.SetEntityType(e, ecs.EntityTypePlayer)
	z.hash.Insert(e, snap.pos.X, snap.pos.Z)

	ring := history.NewRing()
	ring.Record(nowMs, snap.pos, snap.vel, ecs.Rotation{Yaw: snap.yaw, Pitch: snap.pitch})
	z.rings[e] = ring

	if z.msgr != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		ack := messenger.Envelope{
			Type: messenger.MigrationState, SourceZoneID: z.cfg.Zone.ID,
			TargetZoneID: env.SourceZoneID, Sequence: env.Sequence, Timestamp: uint32(now.Unix()),
		}
		_ = z.msgr.Publish(ctx, ack)
		cancel()
	}
}

// applyMigrationAck advances a source-side migration from TRANSFERRING to
// SYNCING once the target confirms. Entity identity across
// zones isn't carried in the ack payload (only the originating sequence
// is), so acks are matched against outgoing migrations by sequence.
func (z *Zone) applyMigrationAck(env messenger.Envelope, now time.Time) {
	z.store.Each(func(e ecs.Entity) {
		mig, ok := z.migrationMgr.Outgoing(e)
		if !ok || mig.SourceZone != z.cfg.Zone.ID || mig.Sequence != uint64(env.Sequence) {
			return
		}
		_ = z.migrationMgr.OnTargetAck(e)
	})
}

// peerPort derives a target zone's signaling port from its zone ID under
// the single-host development topology's static convention (basePort +
// zoneID). A multi-host deployment replaces this with real service
// discovery owned by the orchestrator.
func peerPort(basePort int, zoneID uint32) int {
	return basePort + int(zoneID)
}

// appendEntitySync appends an EntitySync payload to buf, which may come
// from the shared byte-slice pool.
func appendEntitySync(buf []byte, entityID uint32, pos, vel fixedpoint.Vec3) []byte {
	n := len(buf)
	buf = append(buf, make([]byte, 52)...)
	binary.LittleEndian.PutUint32(buf[n:n+4], entityID)
	putVec3(buf[n+4:n+28], pos)
	putVec3(buf[n+28:n+52], vel)
	return buf
}

func decodeEntitySync(data []byte) (remoteID uint32, pos, vel fixedpoint.Vec3, ok bool) {
	if len(data) < 52 {
		return 0, fixedpoint.Vec3{}, fixedpoint.Vec3{}, false
	}
	remoteID = binary.LittleEndian.Uint32(data[0:4])
	pos = getVec3(data[4:28])
	vel = getVec3(data[28:52])
	return remoteID, pos, vel, true
}

func putVec3(buf []byte, v fixedpoint.Vec3) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(v.X))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(v.Y))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(v.Z))
}

func getVec3(buf []byte) fixedpoint.Vec3 {
	return fixedpoint.Vec3{
		X: int64(binary.LittleEndian.Uint64(buf[0:8])),
		Y: int64(binary.LittleEndian.Uint64(buf[8:16])),
		Z: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}
}

type decodedSnapshot struct {
	pos, vel          fixedpoint.Vec3
	yaw, pitch        float64
	health, maxHealth uint32
	teamID            uint32
	playerID          uint64
	connID            uint32
	username          string
}

// encodeSnapshotForWire builds the wire payload for a MigrationRequest
// envelope from a source-side snapshot.
func encodeSnapshotForWire(s migration.EntitySnapshot, username string) []byte {
	buf := make([]byte, 24+24+16+4+4+4+8+4+2+len(username))
	off := 0
	putVec3(buf[off:off+24], s.Position)
	off += 24
	putVec3(buf[off:off+24], s.Velocity)
	off += 24
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(s.Rotation.Yaw))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(s.Rotation.Pitch))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], s.Combat.Health)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], s.Combat.MaxHealth)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], s.Combat.TeamID)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:off+8], s.PlayerID)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], s.ConnectionID)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(username)))
	off += 2
	copy(buf[off:], username)
	return buf
}

func decodeMigrationSnapshot(data []byte) (decodedSnapshot, bool) {
	const fixedLen = 24 + 24 + 16 + 4 + 4 + 4 + 8 + 4 + 2
	if len(data) < fixedLen {
		return decodedSnapshot{}, false
	}
	var s decodedSnapshot
	off := 0
	s.pos = getVec3(data[off : off+24])
	off += 24
	s.vel = getVec3(data[off : off+24])
	off += 24
	s.yaw = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	s.pitch = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	s.health = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	s.maxHealth = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	s.teamID = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	s.playerID = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	s.connID = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	nameLen := int(binary.LittleEndian.Uint16(data[off : off+2]))
	off += 2
	if len(data) < off+nameLen {
		return decodedSnapshot{}, false
	}
	s.username = string(data[off : off+nameLen])
	return s, true
}
