package persistence

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
)

// ScyllaStore implements ColdStore against github.com/gocql/gocql
// (ScyllaDB/Cassandra wire-compatible) using the combat_events and
// player_combat_stats tables.
type ScyllaStore struct {
	session *gocql.Session
}

// NewScyllaStore constructs a ScyllaStore over an already-opened session.
func NewScyllaStore(session *gocql.Session) *ScyllaStore {
	return &ScyllaStore{session: session}
}

const insertCombatEventCQL = `INSERT INTO combat_events
	(zone_id, event_time, event_id, attacker_id, target_id, event_type,
	 damage_amount, is_critical, weapon_type, pos_x, pos_y, pos_z, server_tick)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *ScyllaStore) RecordCombatEvent(ctx context.Context, event CombatEventRecord) error {
	q := s.session.Query(insertCombatEventCQL,
		event.ZoneID, event.EventTime, event.EventID, event.AttackerID, event.TargetID,
		event.EventType, event.DamageAmount, event.IsCritical, event.WeaponType,
		event.PosX, event.PosY, event.PosZ, event.ServerTick,
	).WithContext(ctx)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("persistence: insert combat_events: %w", err)
	}
	return nil
}

const updateCombatStatsCQL = `UPDATE player_combat_stats
	SET kills = kills + ?, deaths = deaths + ?, damage_dealt = damage_dealt + ?,
	    damage_taken = damage_taken + ?, streak = streak + ?
	WHERE player_id = ? AND session_date = ?`

func (s *ScyllaStore) ApplyCombatStatsDelta(ctx context.Context, delta PlayerCombatStatsDelta) error {
	q := s.session.Query(updateCombatStatsCQL,
		delta.Kills, delta.Deaths, delta.DamageDealt, delta.DamageTaken, delta.StreakDelta,
		delta.PlayerID, delta.SessionDate,
	).WithContext(ctx)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("persistence: update player_combat_stats: %w", err)
	}
	return nil
}

// NewScyllaCluster constructs a gocql.ClusterConfig from the zone's Scylla
// config, the shape callers pass to gocql.NewCluster(...).CreateSession().
func NewScyllaCluster(hosts []string, port int, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(hosts...)
	cluster.Port = port
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	return cluster
}

var _ ColdStore = (*ScyllaStore)(nil)
