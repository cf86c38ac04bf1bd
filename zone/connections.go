package zone

import (
	"time"

	"github.com/aycrith/darkages-zoned/anticheat"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/history"
	"github.com/aycrith/darkages-zoned/persistence"
	"github.com/aycrith/darkages-zoned/ratelimit"
	"github.com/aycrith/darkages-zoned/transport"
)

// spawnPosition returns the zone's default spawn point — the world
// rectangle's center, at ground level.
func (z *Zone) spawnPosition() fixedpoint.Vec3 {
	return fixedpoint.Vec3{
		X: fixedpoint.FromFloat((z.cfg.World.MinX + z.cfg.World.MaxX) / 2),
		Y: fixedpoint.FromFloat(0),
		Z: fixedpoint.FromFloat((z.cfg.World.MinZ + z.cfg.World.MaxZ) / 2),
	}
}

// acceptConnection finalizes a handshake: it loads any persisted position,
// creates the backing entity, and registers the connection so subsequent
// ticks drive it. Called from updateNetwork once a Handshake
// packet verifies.
func (z *Zone) acceptConnection(ch transport.Channel, playerID uint64, username string) *connection {
	z.connMu.Lock()
	z.nextConnID++
	connID := z.nextConnID
	z.connMu.Unlock()

	e := z.store.Create()
	pos := z.spawnPosition()
	if z.hot != nil {
		ctx, cancel := requestCtx()
		if loaded, ok, err := z.hot.LoadPosition(ctx, playerID); err == nil && ok {
			pos = loaded
		}
		cancel()
	}
	now := z.nowMs()

	z.store.SetPosition(e, ecs.Position{Vec3: pos, Timestamp: now})
	z.store.SetVelocity(e, ecs.Velocity{})
	z.store.SetRotation(e, ecs.Rotation{})
	z.store.SetCombat(e, ecs.CombatState{Health: 100, MaxHealth: 100})
	z.store.SetNetwork(e, ecs.NetworkState{})
	z.store.SetPlayer(e, ecs.PlayerInfo{PlayerID: playerID, ConnectionID: connID, Username: username, SessionStart: now})
	z.store.SetEntityType(e, ecs.EntityTypePlayer)
	z.store.SetAntiCheat(e, ecs.AntiCheatState{LastValidPosition: pos, LastValidationTime: now})

	ring := history.NewRing()
	ring.Record(now, pos, fixedpoint.Vec3{}, ecs.Rotation{})
	z.rings[e] = ring

	profile, ok := z.profile[playerID]
	if !ok {
		profile = anticheat.NewBehaviorProfile(now)
		z.profile[playerID] = profile
	}

	conn := newConnection(connID, ch, ratelimit.NewTokenBucket(z.cfg.RateLimit.MaxTokens, z.cfg.RateLimit.TokensPerSecond, time.Now()))
	conn.entity = e
	conn.playerID = playerID
	conn.username = username
	conn.authenticated = true
	conn.history = ring
	conn.profile = profile

	z.connMu.Lock()
	z.connections[ch] = conn
	z.byPlayer[playerID] = conn
	z.connMu.Unlock()

	z.hash.Insert(e, pos.X, pos.Z)

	if z.outbox != nil {
		z.outbox.SaveSession(time.Now(), persistence.PlayerSession{
			PlayerID: playerID, ZoneID: z.cfg.Zone.ID, ConnectionID: connID, Username: username,
		})
		z.outbox.AddZonePlayer(time.Now(), z.cfg.Zone.ID, playerID)
	}
	z.registry.ConnectedPlayers.Set(int64(len(z.connections)))
	return conn
}

// disconnect tears down a connection's entity and bookkeeping, persisting
// its final position first: destruction follows the persistence save.
func (z *Zone) disconnect(ch transport.Channel, reason string) {
	z.connMu.Lock()
	conn, ok := z.connections[ch]
	if ok {
		delete(z.connections, ch)
		if z.byPlayer[conn.playerID] == conn {
			delete(z.byPlayer, conn.playerID)
		}
	}
	z.connMu.Unlock()
	if !ok {
		return
	}

	if pos, found := z.store.Position(conn.entity); found && z.outbox != nil {
		z.outbox.SavePosition(time.Now(), conn.playerID, pos.Vec3)
	}
	if z.outbox != nil {
		z.outbox.DeleteSession(time.Now(), conn.playerID)
		z.outbox.RemoveZonePlayer(time.Now(), z.cfg.Zone.ID, conn.playerID)
	}

	z.hash.Remove(conn.entity)
	z.tracker.PurgeEntity(conn.entity)
	z.aura.PurgeEntity(conn.entity)
	delete(z.rings, conn.entity)
	z.store.Destroy(conn.entity)

	_ = ch.Close()
	z.registry.ConnectedPlayers.Set(int64(len(z.connections)))
	if z.logger != nil {
		z.logger.Info("connection closed", map[string]interface{}{"connection_id": conn.id, "reason": reason})
	}
}

// connectionFor looks up the bookkeeping for an already-registered channel.
func (z *Zone) connectionFor(ch transport.Channel) (*connection, bool) {
	z.connMu.Lock()
	defer z.connMu.Unlock()
	c, ok := z.connections[ch]
	return c, ok
}

// onMigrationRedirect is migration.Manager's RedirectFunc: once a
// source-side migration completes, the owning connection is told to
// reconnect to the target zone and is locally torn down —
// the target zone will re-register it once the client reconnects there.
func (z *Zone) onMigrationRedirect(connectionID uint32, newZone uint32, newPort int) {
	z.connMu.Lock()
	var target transport.Channel
	for ch, c := range z.connections {
		if c.id == connectionID {
			target = ch
			break
		}
	}
	z.connMu.Unlock()
	if target == nil {
		return
	}
	z.registry.MigrationsCompleted.Inc(1)
	_ = target.Send(true, migrationRedirectPayload(newZone, newPort))
	z.disconnect(target, "migrated")
}
