package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// sessionTTL matches the session:<playerId> TTL of 3600s.
const sessionTTL = 3600 * time.Second

// RedisStore implements HotStore against github.com/redis/go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore over an already-dialed client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(playerID uint64) string   { return fmt.Sprintf("session:%d", playerID) }
func banKey(playerID uint64) string       { return fmt.Sprintf("ban:%d", playerID) }
func posKey(playerID uint64) string       { return fmt.Sprintf("pos:%d", playerID) }
func zonePlayersKey(zoneID uint32) string { return fmt.Sprintf("zone:%d:players", zoneID) }
func zoneStatusKey(zoneID uint32) string  { return fmt.Sprintf("zone:%d:status", zoneID) }

func (r *RedisStore) SaveSession(ctx context.Context, session PlayerSession) error {
	data, err := marshalJSON(session)
	if err != nil {
		return fmt.Errorf("persistence: marshal session: %w", err)
	}
	return r.client.Set(ctx, sessionKey(session.PlayerID), data, sessionTTL).Err()
}

func (r *RedisStore) LoadSession(ctx context.Context, playerID uint64) (PlayerSession, bool, error) {
	raw, err := r.client.Get(ctx, sessionKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PlayerSession{}, false, nil
	}
	if err != nil {
		return PlayerSession{}, false, err
	}
	var s PlayerSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return PlayerSession{}, false, fmt.Errorf("persistence: unmarshal session: %w", err)
	}
	return s, true, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, playerID uint64) error {
	return r.client.Del(ctx, sessionKey(playerID)).Err()
}

func (r *RedisStore) AddZonePlayer(ctx context.Context, zoneID uint32, playerID uint64) error {
	return r.client.SAdd(ctx, zonePlayersKey(zoneID), playerID).Err()
}

func (r *RedisStore) RemoveZonePlayer(ctx context.Context, zoneID uint32, playerID uint64) error {
	return r.client.SRem(ctx, zonePlayersKey(zoneID), playerID).Err()
}

func (r *RedisStore) SaveZoneStatus(ctx context.Context, status ZoneStatus) error {
	data, err := marshalJSON(status)
	if err != nil {
		return fmt.Errorf("persistence: marshal zone status: %w", err)
	}
	return r.client.Set(ctx, zoneStatusKey(status.ZoneID), data, 0).Err()
}

func (r *RedisStore) SaveBan(ctx context.Context, playerID uint64, ban Ban) error {
	data, err := marshalJSON(ban)
	if err != nil {
		return fmt.Errorf("persistence: marshal ban: %w", err)
	}
	var ttl time.Duration
	if ban.ExpiryUnix > 0 {
		ttl = time.Until(time.Unix(ban.ExpiryUnix, 0))
		if ttl < 0 {
			ttl = time.Second
		}
	}
	return r.client.Set(ctx, banKey(playerID), data, ttl).Err()
}

func (r *RedisStore) LoadBan(ctx context.Context, playerID uint64) (Ban, bool, error) {
	raw, err := r.client.Get(ctx, banKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ban{}, false, nil
	}
	if err != nil {
		return Ban{}, false, err
	}
	var b Ban
	if err := json.Unmarshal(raw, &b); err != nil {
		return Ban{}, false, fmt.Errorf("persistence: unmarshal ban: %w", err)
	}
	return b, true, nil
}

func (r *RedisStore) SavePosition(ctx context.Context, playerID uint64, pos fixedpoint.Vec3) error {
	data, err := marshalJSON(pos)
	if err != nil {
		return fmt.Errorf("persistence: marshal position: %w", err)
	}
	return r.client.Set(ctx, posKey(playerID), data, 0).Err()
}

func (r *RedisStore) LoadPosition(ctx context.Context, playerID uint64) (fixedpoint.Vec3, bool, error) {
	raw, err := r.client.Get(ctx, posKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fixedpoint.Vec3{}, false, nil
	}
	if err != nil {
		return fixedpoint.Vec3{}, false, err
	}
	var p fixedpoint.Vec3
	if err := json.Unmarshal(raw, &p); err != nil {
		return fixedpoint.Vec3{}, false, fmt.Errorf("persistence: unmarshal position: %w", err)
	}
	return p, true, nil
}

var _ HotStore = (*RedisStore)(nil)
