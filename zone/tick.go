package zone

import (
	"context"
	"math"
	"time"

	"github.com/aycrith/darkages-zoned/anticheat"
	"github.com/aycrith/darkages-zoned/combat"
	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/handoff"
	"github.com/aycrith/darkages-zoned/messenger"
	"github.com/aycrith/darkages-zoned/migration"
	"github.com/aycrith/darkages-zoned/persistence"
	"github.com/aycrith/darkages-zoned/protocol"
	"github.com/aycrith/darkages-zoned/ratelimit"
	"github.com/aycrith/darkages-zoned/snapshot"
	"github.com/aycrith/darkages-zoned/transport"
)

// reducedTickRateHz is the degraded-mode replication rate (the QoS
// degradation: "lower the update rate to 10Hz" when ticks run over budget).
const reducedTickRateHz = 10

// Run drives the zone's fixed-timestep simulation loop: network,
// physics, game logic, replication, and persistence run in that order every
// tick, with a budget check and automatic QoS degradation at the end. Run
// blocks until ctx is cancelled or RequestShutdown is called; callers
// typically invoke it from main in its own goroutine or directly as the
// process's terminal call.
func (z *Zone) Run(ctx context.Context) {
	tickRateHz := z.cfg.Zone.TickRateHz
	if tickRateHz <= 0 {
		tickRateHz = 60
	}
	interval := time.Second / time.Duration(tickRateHz)
	budget := interval

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	z.StartCrossZone(ctx)

	for {
		select {
		case <-ctx.Done():
			z.drainShutdown()
			return
		case now := <-ticker.C:
			if z.shutdown.Load() {
				z.drainShutdown()
				return
			}
			z.runOneTick(now, interval, budget, tickRateHz)
		}
	}
}

// runOneTick executes one pass of the pipeline and records its
// wall-clock cost against budget for the QoS degradation decision.
func (z *Zone) runOneTick(now time.Time, dt, budget time.Duration, tickRateHz int) {
	start := time.Now()

	z.arena.Reset()
	z.updateNetwork(now)
	z.updatePhysics(now, dt.Seconds())
	z.updateGameLogic(now)
	z.updateReplication(now, tickRateHz)
	z.updateDatabase(now, tickRateHz)

	elapsed := time.Since(start)
	z.registry.TicksProcessed.Inc(1)
	z.registry.TickDuration.Observe(elapsed.Seconds() * 1000)
	z.registry.EntityCount.Set(int64(z.store.Count()))
	z.registry.AvgEntitiesPerCell.Set(int64(z.hash.AverageEntitiesPerCell()))

	if elapsed > budget {
		z.registry.TickOverBudget.Inc(1)
		if !z.degraded {
			z.degraded = true
			if z.logger != nil {
				z.logger.Warn("tick over budget, entering degraded mode", map[string]interface{}{
					"elapsed_ms": elapsed.Seconds() * 1000, "budget_ms": budget.Seconds() * 1000,
				})
			}
		}
	} else if z.degraded && elapsed < budget/2 {
		z.degraded = false
		if z.logger != nil {
			z.logger.Info("tick recovered, leaving degraded mode")
		}
	}

	z.tick++
}

// drainShutdown disconnects every client, flushes the persistence outbox,
// and stops its workers — the graceful-drain half of the shutdown
// sequence.
func (z *Zone) drainShutdown() {
	z.connMu.Lock()
	channels := make([]transport.Channel, 0, len(z.connections))
	for ch := range z.connections {
		channels = append(channels, ch)
	}
	z.connMu.Unlock()
	for _, ch := range channels {
		z.disconnect(ch, "server shutting down")
	}
	if z.outbox != nil {
		z.outbox.Close()
	}
	if z.logger != nil {
		z.logger.Info("zone shutdown drain complete")
	}
}

// updateNetwork is step 1: drain every queued inbound packet and
// dispatch it by type. Nothing here runs expensive simulation work — it
// only updates per-connection/per-entity input state for updatePhysics to
// consume.
func (z *Zone) updateNetwork(now time.Time) {
	z.pump.Drain(func(ch transport.Channel, data []byte) {
		z.registry.PacketsReceived.Inc(1)
		z.trafficPackets++
		z.trafficBytes += int64(len(data))
		if !z.validator.ValidatePacketSize(len(data)) {
			z.registry.PacketsDropped.Inc(1)
			return
		}
		remote := ch.RemoteAddr()
		if blocked, _ := z.blockList.IsBlocked(now, remote); blocked {
			z.registry.PacketsDropped.Inc(1)
			return
		}

		ptype, err := protocol.PeekType(data)
		if err != nil {
			z.registry.PacketsDropped.Inc(1)
			return
		}

		conn, known := z.connectionFor(ch)
		if known && conn.packets != nil && !conn.packets.Allow(now) {
			z.registry.PacketsDropped.Inc(1)
			return
		}
		switch ptype {
		case protocol.PacketHandshake:
			z.handleHandshake(ch, remote, data, now)
		case protocol.PacketClientInput:
			if !known {
				return
			}
			z.handleClientInput(conn, data, now)
		case protocol.PacketPing:
			echo, err := protocol.DecodePing(data)
			if err == nil {
				_ = ch.Send(false, protocol.EncodePing(echo))
			}
		case protocol.PacketDisconnect:
			reason, _ := protocol.DecodeDisconnect(data)
			z.disconnect(ch, reason)
		case protocol.PacketReliableEvent:
			if known {
				z.handleReliableEvent(conn, data)
			}
		default:
			z.registry.PacketsDropped.Inc(1)
		}
	})
	z.blockList.Update(now)
}

func (z *Zone) handleHandshake(ch transport.Channel, remoteAddr string, data []byte, now time.Time) {
	req, err := protocol.DecodeHandshakeRequest(data)
	if err != nil {
		return
	}
	reject := func(reason string) {
		_ = ch.Send(true, protocol.EncodeHandshakeResponse(protocol.HandshakeResponse{Accepted: false, Reason: reason}))
	}
	if !protocol.VersionCompatible(z.cfg.Protocol.VersionMajor, z.cfg.Protocol.VersionMinor, req.VersionMajor, req.VersionMinor) {
		reject("incompatible protocol version")
		return
	}
	if z.validator.ValidatePlayerName(req.Username) != protocol.Valid {
		reject("invalid username")
		return
	}
	claims, err := z.auth.Verify(req.AuthToken)
	if err != nil {
		reject("authentication failed")
		return
	}
	if banned, ban, _ := z.hotLoadBan(claims.PlayerID); banned {
		reject("banned: " + ban.Reason)
		return
	}

	conn := z.acceptConnection(ch, claims.PlayerID, claims.Username)
	pos, _ := z.store.Position(conn.entity)
	_ = ch.Send(true, protocol.EncodeHandshakeResponse(protocol.HandshakeResponse{
		Accepted: true, EntityID: conn.entity.ID(), SpawnPos: pos.Vec3, ServerTick: uint32(z.tick),
	}))
	_ = remoteAddr
}

func (z *Zone) hotLoadBan(playerID uint64) (bool, persistence.Ban, error) {
	if z.hot == nil {
		return false, persistence.Ban{}, nil
	}
	ctx, cancel := requestCtx()
	defer cancel()
	ban, found, err := z.hot.LoadBan(ctx, playerID)
	if err != nil || !found {
		return false, persistence.Ban{}, err
	}
	if ban.ExpiryUnix > 0 && ban.ExpiryUnix < time.Now().Unix() {
		return false, persistence.Ban{}, nil
	}
	return true, ban, nil
}

func (z *Zone) handleClientInput(conn *connection, data []byte, now time.Time) {
	in, err := protocol.DecodeClientInput(data)
	if err != nil {
		z.registry.PacketsDropped.Inc(1)
		return
	}
	if !z.validator.ValidateSequence(conn.lastInputSeq, in.Sequence) {
		z.anticheat.EvaluateInput(conn.profile, z.nowMs(), in.Yaw, in.Pitch, in.Sequence, conn.lastInputSeq)
		return
	}
	yaw, pitch := in.Yaw, in.Pitch
	z.validator.ClampRotation(&yaw, &pitch)
	in.Yaw, in.Pitch = yaw, pitch

	violation := z.anticheat.EvaluateInput(conn.profile, z.nowMs(), in.Yaw, in.Pitch, in.Sequence, conn.lastInputSeq)
	if violation.Detected && violation.Severity >= anticheat.Critical {
		return
	}

	conn.lastInputSeq = in.Sequence
	z.store.SetInput(conn.entity, in)
	if net, ok := z.store.Network(conn.entity); ok {
		net.LastInputSequence = in.Sequence
		net.LastInputTime = now.UnixMilli()
		z.store.SetNetwork(conn.entity, net)
	}
}

func (z *Zone) handleReliableEvent(conn *connection, data []byte) {
	subtype, payload, err := protocol.DecodeReliableEvent(data)
	if err != nil {
		return
	}
	switch subtype {
	case protocol.EventChatMessage:
		msg := string(payload)
		if z.validator.ValidateChatMessage(msg) != protocol.Valid {
			return
		}
		clean := protocol.NormalizeWhitespace(msg)
		z.broadcastChat(conn, clean)
	default:
		// ZoneTransfer/EntityDeath/AbilityResult are server->client only
		// events in this zone's current operation set; anything else
		// arriving from a client is simply ignored.
	}
}

func (z *Zone) broadcastChat(from *connection, message string) {
	evt := protocol.EncodeReliableEvent(protocol.EventChatMessage, []byte(from.username+": "+message))
	z.connMu.Lock()
	defer z.connMu.Unlock()
	for _, c := range z.connections {
		_ = c.channel.Send(true, evt)
	}
}

// updatePhysics is step 2: rebuild the spatial hash from scratch each
// tick (entities move, so yesterday's cell membership is stale), step
// movement and anti-cheat for every live entity, push overlapping entities
// apart, and record the settled positions into each entity's lag history.
func (z *Zone) updatePhysics(now time.Time, dtSeconds float64) {
	z.hash.Clear()
	nowMs := z.nowMs()

	z.store.Each(func(e ecs.Entity) {
		pos, ok := z.store.Position(e)
		if !ok {
			return
		}
		vel, _ := z.store.Velocity(e)
		rot, _ := z.store.Rotation(e)
		in, hasInput := z.store.Input(e)

		next := pos
		nextVel := vel
		if hasInput {
			result := z.movement.Step(pos, vel, in, rot, dtSeconds)
			next = ecs.Position{Vec3: result.CorrectedPosition, Timestamp: nowMs}
			nextVel = ecs.Velocity{Vec3: result.CorrectedVelocity}
			rot = ecs.Rotation{Yaw: in.Yaw, Pitch: in.Pitch}.Normalize()
		}

		if ac, ok := z.store.AntiCheat(e); ok {
			if pi, isPlayer := z.store.Player(e); isPlayer {
				if profile, exists := z.profile[pi.PlayerID]; exists {
					world := z.cfg.World
					v := z.anticheat.EvaluateMovement(profile, nowMs, ac.LastValidPosition, next.Vec3,
						nowMs-ac.LastValidationTime, z.cfg.Movement.MaxSprintSpeed, world.MinY, world.MaxY)
					if v.Detected {
						// Every detection overrides the world and tells the
						// client; severity only drives escalation, never
						// whether the correction applies.
						z.registry.ViolationsFlagged.Inc(1)
						next.Vec3 = v.CorrectedPosition
						nextVel = ecs.Velocity{}
						z.sendCorrection(pi.PlayerID, next.Vec3, nextVel.Vec3)
					}
				}
			}
			ac.LastValidPosition = next.Vec3
			ac.LastValidationTime = nowMs
			speed := nextVel.Len()
			if speed > ac.MaxRecordedSpeed {
				ac.MaxRecordedSpeed = speed
			}
			z.store.SetAntiCheat(e, ac)
		}

		z.store.SetPosition(e, next)
		z.store.SetVelocity(e, nextVel)
		z.store.SetRotation(e, rot)

		z.hash.Insert(e, next.X, next.Z)
	})

	z.resolveSoftCollisions()

	z.store.Each(func(e ecs.Entity) {
		ring, ok := z.rings[e]
		if !ok {
			return
		}
		pos, ok := z.store.Position(e)
		if !ok {
			return
		}
		vel, _ := z.store.Velocity(e)
		rot, _ := z.store.Rotation(e)
		ring.Record(nowMs, pos.Vec3, vel.Vec3, rot)
	})
}

// minSeparationMeters is the soft-collision body radius sum: two entities
// closer than this get pushed apart, half the penetration each.
const minSeparationMeters = 0.6

// resolveSoftCollisions pushes overlapping entity pairs apart
// proportionally to their penetration depth, so stacked entities separate
// over a few ticks rather than teleporting.
func (z *Zone) resolveSoftCollisions() {
	sep := int64(minSeparationMeters * fixedpoint.Scale)
	z.store.Each(func(e ecs.Entity) {
		pos, ok := z.store.Position(e)
		if !ok {
			return
		}
		for _, other := range z.hash.Query(pos.X, pos.Z, sep) {
			if other == e || !z.store.Alive(other) {
				continue
			}
			opos, ok := z.store.Position(other)
			if !ok {
				continue
			}
			dx, dz := pos.X-opos.X, pos.Z-opos.Z
			distSq := dx*dx + dz*dz
			if distSq >= sep*sep {
				continue
			}
			dist := int64(math.Sqrt(float64(distSq)))
			var pushX, pushZ int64
			if dist == 0 {
				// exactly coincident: deterministic nudge along +X.
				pushX = sep / 2
			} else {
				pen := sep - dist
				pushX = dx * pen / (2 * dist)
				pushZ = dz * pen / (2 * dist)
			}
			oldX, oldZ := pos.X, pos.Z
			pos.X += pushX
			pos.Z += pushZ
			z.store.SetPosition(e, pos)
			z.hash.Update(e, oldX, oldZ, pos.X, pos.Z)
		}
	})
}

// sendCorrection tells a client its input failed server-side validation and
// where the server actually placed it.
func (z *Zone) sendCorrection(playerID uint64, pos, vel fixedpoint.Vec3) {
	z.connMu.Lock()
	conn := z.byPlayer[playerID]
	z.connMu.Unlock()
	if conn == nil {
		return
	}
	payload := protocol.EncodeServerCorrection(protocol.ServerCorrection{
		ServerTick:        uint32(z.tick),
		Position:          pos,
		Velocity:          vel,
		LastInputSequence: conn.lastInputSeq,
	})
	_ = conn.channel.Send(true, protocol.EncodeReliableEvent(protocol.EventServerCorrection, payload))
}

// updateGameLogic is step 3: attack resolution, passive regen,
// aura/migration/handoff state-machine advancement, and applying any
// cross-zone envelopes that arrived since the last tick.
func (z *Zone) updateGameLogic(now time.Time) {
	nowMs := z.nowMs()
	z.drainCrossZone(now)
	z.processAttacks(nowMs)

	if z.cfg.Zone.TickRateHz > 0 && z.tick%uint64(z.cfg.Zone.TickRateHz) == 0 {
		z.store.Each(func(e ecs.Entity) {
			if cs, ok := z.store.Combat(e); ok {
				z.store.SetCombat(e, z.combat.RegenStep(nowMs, cs))
			}
		})
	}

	z.advanceZoneTransitions(now, nowMs)

	for _, e := range z.migrationMgr.CheckTimeout(now) {
		z.registry.MigrationsFailed.Inc(1)
		if z.logger != nil {
			z.logger.Warn("migration timed out", map[string]interface{}{"entity": e.ID()})
		}
	}
	z.completeReadyMigrations(now)
}

func (z *Zone) processAttacks(nowMs int64) {
	z.connMu.Lock()
	attackers := make([]*connection, 0, len(z.connections))
	for _, c := range z.connections {
		attackers = append(attackers, c)
	}
	z.connMu.Unlock()

	for _, conn := range attackers {
		in, ok := z.store.Input(conn.entity)
		if !ok || !in.Flags.Attack {
			continue
		}
		combatState, ok := z.store.Combat(conn.entity)
		if !ok || combatState.IsDead {
			continue
		}
		pos, ok := z.store.Position(conn.entity)
		if !ok {
			continue
		}
		// A held attack flag re-enters here every tick; the combat-path
		// detectors run once per distinct input so normal button mashing
		// doesn't accrue violations at tick rate.
		freshInput := in.Sequence != conn.lastAttackSeq
		conn.lastAttackSeq = in.Sequence

		weapon := combat.Melee
		rng := z.cfg.Combat.MeleeRange
		candidates := z.gatherTargets(conn.entity, pos.Vec3, rng)

		result := z.combat.ProcessAttack(conn.entity, combatState, pos.Vec3, in.Yaw, weapon,
			nowMs, in.Timestamp, candidates, conn.playerID, z.cfg.Zone.ID, z.tick)
		if result.Rejection == combat.RejectCooldown {
			if freshInput {
				if v := z.anticheat.EvaluateCooldown(conn.profile, nowMs, combatState.LastAttackTime, z.cfg.Combat.AttackCooldown); v.Detected {
					z.registry.ViolationsFlagged.Inc(1)
				}
			}
			continue
		}
		if result.Rejection != combat.RejectNone {
			continue
		}
		z.registry.AttacksProcessed.Inc(1)
		combatState.LastAttackTime = nowMs
		z.store.SetCombat(conn.entity, combatState)

		if freshInput {
			if targetPos, ok := z.store.Position(result.Target); ok {
				claimedRange := math.Sqrt(float64(pos.Vec3.DistSqXZ(targetPos.Vec3))) / fixedpoint.Scale
				if v := z.anticheat.EvaluateHitboxRange(conn.profile, nowMs, claimedRange, rng); v.Detected {
					z.registry.ViolationsFlagged.Inc(1)
				}
			}
			if v := z.anticheat.EvaluateDamage(conn.profile, nowMs, result.DamageDealt); v.Detected {
				z.registry.ViolationsFlagged.Inc(1)
			}
		}

		if targetState, ok := z.store.Combat(result.Target); ok {
			if result.DamageDealt >= targetState.Health {
				targetState.Health = 0
				targetState.IsDead = true
			} else {
				targetState.Health -= result.DamageDealt
			}
			targetState.LastAttackTime = nowMs
			targetState.LastAttacker = conn.entity
			z.store.SetCombat(result.Target, targetState)
		}
	}
}

func (z *Zone) gatherTargets(attacker ecs.Entity, origin fixedpoint.Vec3, rangeMeters float64) []combat.TargetCandidate {
	radius := int64(rangeMeters * fixedpoint.Scale)
	nearby := z.hash.Query(origin.X, origin.Z, radius)
	candidates := make([]combat.TargetCandidate, 0, len(nearby))
	for _, e := range nearby {
		if e == attacker || !z.store.Alive(e) {
			continue
		}
		pos, ok := z.store.Position(e)
		if !ok {
			continue
		}
		cs, ok := z.store.Combat(e)
		if !ok {
			continue
		}
		var targetPlayerID uint64
		if pi, isPlayer := z.store.Player(e); isPlayer {
			targetPlayerID = pi.PlayerID
		}
		candidates = append(candidates, combat.TargetCandidate{
			Entity: e, Position: pos.Vec3, Combat: cs, Ring: z.rings[e], PlayerID: targetPlayerID,
		})
	}
	return candidates
}

// advanceZoneTransitions runs the aura, handoff, and outward-migration
// initiation logic for every player entity, and publishes the
// periodic aura sync (the 50ms cadence via cfg.Aura.SyncInterval).
func (z *Zone) advanceZoneTransitions(now time.Time, nowMs int64) {
	world := z.cfg.World
	z.store.Each(func(e ecs.Entity) {
		if _, isPlayer := z.store.Player(e); !isPlayer {
			return
		}
		pos, ok := z.store.Position(e)
		if !ok {
			return
		}
		vel, _ := z.store.Velocity(e)
		x, zc := fixedpoint.ToFloat(pos.X), fixedpoint.ToFloat(pos.Z)
		dist := edgeDistanceMeters(x, zc, world)

		z.aura.MarkOwnedInAura(e, pos.Vec3)

		phase := z.handoffCtl.Update(e, dist, pos.Vec3, vel.Vec3)
		if phase == handoff.PhaseMigrating {
			z.tryInitiateMigration(e, now)
		}
	})

	if z.lastAuraSync.IsZero() || now.Sub(z.lastAuraSync) >= z.cfg.Aura.SyncInterval {
		z.publishAuraSync(now)
		z.lastAuraSync = now
	}
}

func (z *Zone) tryInitiateMigration(e ecs.Entity, now time.Time) {
	if _, inFlight := z.migrationMgr.Outgoing(e); inFlight {
		return
	}
	targetZone, ok := z.handoffCtl.TargetZone(e)
	if !ok || z.msgr == nil {
		return
	}
	pos, _ := z.store.Position(e)
	vel, _ := z.store.Velocity(e)
	rot, _ := z.store.Rotation(e)
	combatState, _ := z.store.Combat(e)
	netState, _ := z.store.Network(e)
	input, _ := z.store.Input(e)
	acState, _ := z.store.AntiCheat(e)
	player, _ := z.store.Player(e)

	snap := migration.EntitySnapshot{
		Position: pos.Vec3, Velocity: vel.Vec3, Rotation: rot, Combat: combatState,
		Network: netState, Input: input, AntiCheat: acState,
		PlayerID: player.PlayerID, ConnectionID: player.ConnectionID,
	}
	mig := z.migrationMgr.InitiateMigration(e, targetZone, snap, now)
	if err := z.migrationMgr.BeginTransfer(e); err != nil {
		return
	}
	z.registry.MigrationsStarted.Inc(1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	env := messenger.Envelope{
		Type: messenger.MigrationRequest, SourceZoneID: z.cfg.Zone.ID, TargetZoneID: targetZone,
		Sequence: uint32(mig.Sequence), Timestamp: uint32(now.Unix()),
		Payload: encodeSnapshotForWire(snap, player.Username),
	}
	if err := z.msgr.Publish(ctx, env); err != nil && z.logger != nil {
		z.logger.Warn("migration request publish failed", map[string]interface{}{"error": err.Error()})
	}
}

func (z *Zone) completeReadyMigrations(now time.Time) {
	z.connMu.Lock()
	entities := make([]ecs.Entity, 0, len(z.connections))
	for _, c := range z.connections {
		entities = append(entities, c.entity)
	}
	z.connMu.Unlock()

	for _, e := range entities {
		mig, ok := z.migrationMgr.Outgoing(e)
		if !ok {
			continue
		}
		if z.migrationMgr.ReadyToComplete(e, now) {
			z.handoffCtl.MarkMigrationCompleted(e)
			port := peerPort(z.cfg.Zone.Port, mig.TargetZone)
			_ = z.migrationMgr.Complete(e, port, now)
		}
	}
}

// edgeDistanceMeters returns the distance from (x, z) to the nearest edge
// of world's rectangle, used by the handoff controller's phase thresholds.
func edgeDistanceMeters(x, z float64, world config.WorldConfig) float64 {
	d := math.Min(x-world.MinX, world.MaxX-x)
	if dz := math.Min(z-world.MinZ, world.MaxZ-z); dz < d {
		d = dz
	}
	if d < 0 {
		return 0
	}
	return d
}

// updateReplication is step 4: compute each connection's AOI list,
// encode a full or delta snapshot, and send it over its unreliable channel.
func (z *Zone) updateReplication(now time.Time, tickRateHz int) {
	if z.degraded {
		tickRateHz = reducedTickRateHz
	}
	alive := func(e ecs.Entity) bool { return z.store.Alive(e) }
	posOf := func(e ecs.Entity) (fixedpoint.Vec3, bool) {
		p, ok := z.store.Position(e)
		return p.Vec3, ok
	}

	z.connMu.Lock()
	conns := make([]*connection, 0, len(z.connections))
	for _, c := range z.connections {
		conns = append(conns, c)
	}
	z.connMu.Unlock()

	maxEntities := z.cfg.Replication.MaxEntitiesPerSnapshot
	if z.degraded {
		maxEntities /= 2
	}

	for _, conn := range conns {
		origin, ok := z.store.Position(conn.entity)
		if !ok {
			continue
		}
		visible := z.replication.Visibility(z.hash, conn.entity, origin.Vec3, alive, posOf)
		if len(visible) > maxEntities && maxEntities > 0 {
			visible = visible[:maxEntities]
		}

		visibleIDs := make(map[uint32]struct{}, len(visible))
		current := make([]snapshot.Entity, 0, len(visible))
		for _, v := range visible {
			visibleIDs[v.Entity.ID()] = struct{}{}
			rateHz := v.RateHz
			if z.degraded && rateHz > reducedTickRateHz {
				rateHz = reducedTickRateHz
			}
			if !z.tracker.ShouldSend(conn.id, v.Entity, z.tick, rateHz, tickRateHz) {
				continue
			}
			current = append(current, z.buildSnapshotEntity(v.Entity))
		}

		// Entities the client has a baseline copy of but that left its AOI
		// (or were destroyed) are told apart from merely rate-filtered ones
		// by the full visibility set, not the rate-filtered payload.
		var removed []uint32
		for id := range conn.baseline {
			if _, stillVisible := visibleIDs[id]; !stillVisible {
				removed = append(removed, id)
			}
		}
		if len(current) == 0 && len(removed) == 0 {
			continue
		}

		var frame []byte
		if conn.baselineTick == 0 {
			frame = snapshot.EncodeFull(uint32(z.tick), current)
		} else {
			frame = snapshot.EncodeDelta(uint32(z.tick), conn.baselineTick, conn.baseline, current, removed)
		}
		if err := conn.channel.Send(false, frame); err != nil {
			continue
		}
		conn.baselineTick = uint32(z.tick)
		for _, e := range current {
			conn.baseline[e.ID] = e
		}
		for _, id := range removed {
			delete(conn.baseline, id)
		}
	}
}

func (z *Zone) buildSnapshotEntity(e ecs.Entity) snapshot.Entity {
	pos, _ := z.store.Position(e)
	vel, _ := z.store.Velocity(e)
	rot, _ := z.store.Rotation(e)
	etype, _ := z.store.EntityType(e)
	anim, _ := z.store.AnimState(e)
	healthPct := uint8(100)
	if cs, ok := z.store.Combat(e); ok && cs.MaxHealth > 0 {
		healthPct = uint8(math.Round(float64(cs.Health) / float64(cs.MaxHealth) * 100))
	}
	return snapshot.Entity{
		ID: e.ID(), Position: pos.Vec3, Rotation: rot, Velocity: vel.Vec3,
		HealthPercent: healthPct, AnimState: anim, EntityType: etype,
	}
}

// updateDatabase is step 5: the simulation goroutine never blocks on
// persistence I/O (the outbox workers already drain continuously from
// connection/combat events), so this step only owns the once-per-second
// housekeeping: the zone-status heartbeat an orchestrator polls, and the
// traffic sample the DDoS analyzer folds into its rolling baseline.
func (z *Zone) updateDatabase(now time.Time, tickRateHz int) {
	if tickRateHz <= 0 || z.tick%uint64(tickRateHz) != 0 {
		return
	}
	z.connMu.Lock()
	count := len(z.connections)
	z.connMu.Unlock()
	z.outbox.SaveZoneStatus(now, persistence.ZoneStatus{
		ZoneID: z.cfg.Zone.ID, PlayerCount: count, TickRateHz: tickRateHz, Healthy: !z.degraded,
	})

	z.analyzer.Observe(ratelimit.TrafficSample{
		Connections: count,
		Packets:     int(z.trafficPackets),
		Bytes:       z.trafficBytes,
		UniqueIPs:   count,
	})
	z.trafficPackets = 0
	z.trafficBytes = 0
}
