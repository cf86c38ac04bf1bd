// Package persistence declares the zone core's hot-state and cold-store
// collaborator interfaces, plus concrete adapters backed by
// github.com/redis/go-redis/v9 (hot KV/pub-sub) and github.com/gocql/gocql
// (cold wide-column analytics). The zone core depends only on HotStore and
// ColdStore — never on RedisStore/ScyllaStore directly — so tests
// substitute in-memory fakes.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// PlayerSession is the hot-state record for a connected player, stored
// under session:<playerId>.
type PlayerSession struct {
	PlayerID     uint64 `json:"playerId"`
	ZoneID       uint32 `json:"zoneId"`
	ConnectionID uint32 `json:"connectionId"`
	Username     string `json:"username"`
}

// ZoneStatus is the hot-state record an orchestrator reads to learn a
// zone's current load, stored under zone:<zoneId>:status.
type ZoneStatus struct {
	ZoneID      uint32 `json:"zoneId"`
	PlayerCount int    `json:"playerCount"`
	TickRateHz  int    `json:"tickRateHz"`
	Healthy     bool   `json:"healthy"`
}

// Ban is the hot-state record blocking a player, stored under
// ban:<playerId>.
type Ban struct {
	Reason     string `json:"reason"`
	ExpiryUnix int64  `json:"expiryUnix"`
}

// HotStore is the zone core's view of the in-memory KV/pub-sub service
// (the Redis key conventions). Every call is fire-and-forget from the
// simulation goroutine's perspective — callers never block on these from
// the tick loop itself; a persistence worker pool
// drains a buffered channel of these calls in the background.
type HotStore interface {
	SaveSession(ctx context.Context, session PlayerSession) error
	LoadSession(ctx context.Context, playerID uint64) (PlayerSession, bool, error)
	DeleteSession(ctx context.Context, playerID uint64) error

	AddZonePlayer(ctx context.Context, zoneID uint32, playerID uint64) error
	RemoveZonePlayer(ctx context.Context, zoneID uint32, playerID uint64) error

	SaveZoneStatus(ctx context.Context, status ZoneStatus) error

	SaveBan(ctx context.Context, playerID uint64, ban Ban) error
	LoadBan(ctx context.Context, playerID uint64) (Ban, bool, error)

	SavePosition(ctx context.Context, playerID uint64, pos fixedpoint.Vec3) error
	LoadPosition(ctx context.Context, playerID uint64) (fixedpoint.Vec3, bool, error)
}

// CombatEventRecord is one row of the combat_events cold-store table.
type CombatEventRecord struct {
	EventID          string
	ZoneID           uint32
	EventTime        time.Time
	AttackerID       uint64
	TargetID         uint64
	EventType        string
	DamageAmount     uint32
	IsCritical       bool
	WeaponType       uint8
	PosX, PosY, PosZ int64
	ServerTick       uint64
}

// PlayerCombatStatsDelta is an incremental update to player_combat_stats:
// counters accumulate, they are never overwritten wholesale.
type PlayerCombatStatsDelta struct {
	PlayerID    uint64
	SessionDate string
	Kills       int
	Deaths      int
	DamageDealt int64
	DamageTaken int64
	StreakDelta int
}

// ColdStore is the zone core's view of the wide-column analytics store
// (the ScyllaDB/Cassandra schemas). Like HotStore, calls are best-effort
// and never block the simulation goroutine.
type ColdStore interface {
	RecordCombatEvent(ctx context.Context, event CombatEventRecord) error
	ApplyCombatStatsDelta(ctx context.Context, delta PlayerCombatStatsDelta) error
}

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
