package zone

import (
	"github.com/aycrith/darkages-zoned/anticheat"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/history"
	"github.com/aycrith/darkages-zoned/ratelimit"
	"github.com/aycrith/darkages-zoned/snapshot"
	"github.com/aycrith/darkages-zoned/transport"
)

// connection is the zone's per-player bookkeeping, joining a transport
// Channel to the entity it drives once the handshake completes. Unlike
// ecs.Store components, this lives outside the entity table because it
// tracks transport/session concerns the simulation core itself never reads.
type connection struct {
	id            uint32
	channel       transport.Channel
	remoteAddr    string
	authenticated bool

	entity   ecs.Entity
	playerID uint64
	username string

	lastInputSeq uint32
	// lastAttackSeq gates the combat-path anti-cheat detectors to one
	// evaluation per distinct attack input.
	lastAttackSeq uint32
	history       *history.Ring
	profile       *anticheat.BehaviorProfile
	packets       *ratelimit.TokenBucket

	baselineTick uint32
	baseline     map[uint32]snapshot.Entity
}

func newConnection(id uint32, ch transport.Channel, packets *ratelimit.TokenBucket) *connection {
	return &connection{
		id:       id,
		channel:  ch,
		packets:  packets,
		baseline: make(map[uint32]snapshot.Entity),
	}
}
