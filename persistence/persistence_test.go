package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// memHotStore is an in-memory HotStore fake that exercises the interface
// contract here without a live Redis connection. It lives in a test file,
// so other packages' tests (zone's among them) carry their own fakes.
type memHotStore struct {
	sessions    map[uint64]PlayerSession
	bans        map[uint64]Ban
	positions   map[uint64]fixedpoint.Vec3
	zonePlayers map[uint32]map[uint64]bool
	zoneStatus  map[uint32]ZoneStatus
}

func newMemHotStore() *memHotStore {
	return &memHotStore{
		sessions:    make(map[uint64]PlayerSession),
		bans:        make(map[uint64]Ban),
		positions:   make(map[uint64]fixedpoint.Vec3),
		zonePlayers: make(map[uint32]map[uint64]bool),
		zoneStatus:  make(map[uint32]ZoneStatus),
	}
}

func (m *memHotStore) SaveSession(_ context.Context, session PlayerSession) error {
	m.sessions[session.PlayerID] = session
	return nil
}

func (m *memHotStore) LoadSession(_ context.Context, playerID uint64) (PlayerSession, bool, error) {
	s, ok := m.sessions[playerID]
	return s, ok, nil
}

func (m *memHotStore) DeleteSession(_ context.Context, playerID uint64) error {
	delete(m.sessions, playerID)
	return nil
}

func (m *memHotStore) AddZonePlayer(_ context.Context, zoneID uint32, playerID uint64) error {
	set, ok := m.zonePlayers[zoneID]
	if !ok {
		set = make(map[uint64]bool)
		m.zonePlayers[zoneID] = set
	}
	set[playerID] = true
	return nil
}

func (m *memHotStore) RemoveZonePlayer(_ context.Context, zoneID uint32, playerID uint64) error {
	if set, ok := m.zonePlayers[zoneID]; ok {
		delete(set, playerID)
	}
	return nil
}

func (m *memHotStore) SaveZoneStatus(_ context.Context, status ZoneStatus) error {
	m.zoneStatus[status.ZoneID] = status
	return nil
}

func (m *memHotStore) SaveBan(_ context.Context, playerID uint64, ban Ban) error {
	m.bans[playerID] = ban
	return nil
}

func (m *memHotStore) LoadBan(_ context.Context, playerID uint64) (Ban, bool, error) {
	b, ok := m.bans[playerID]
	return b, ok, nil
}

func (m *memHotStore) SavePosition(_ context.Context, playerID uint64, pos fixedpoint.Vec3) error {
	m.positions[playerID] = pos
	return nil
}

func (m *memHotStore) LoadPosition(_ context.Context, playerID uint64) (fixedpoint.Vec3, bool, error) {
	p, ok := m.positions[playerID]
	return p, ok, nil
}

var _ HotStore = (*memHotStore)(nil)

// memColdStore is an in-memory ColdStore fake for tests.
type memColdStore struct {
	events []CombatEventRecord
	deltas []PlayerCombatStatsDelta
}

func newMemColdStore() *memColdStore {
	return &memColdStore{}
}

func (m *memColdStore) RecordCombatEvent(_ context.Context, event CombatEventRecord) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memColdStore) ApplyCombatStatsDelta(_ context.Context, delta PlayerCombatStatsDelta) error {
	m.deltas = append(m.deltas, delta)
	return nil
}

var _ ColdStore = (*memColdStore)(nil)

func TestMemHotStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemHotStore()

	session := PlayerSession{PlayerID: 1, ZoneID: 2, ConnectionID: 3, Username: "abbey"}
	require.NoError(t, store.SaveSession(ctx, session))

	loaded, ok, err := store.LoadSession(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, session, loaded)

	require.NoError(t, store.DeleteSession(ctx, 1))
	_, ok, err = store.LoadSession(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemHotStoreZonePlayers(t *testing.T) {
	ctx := context.Background()
	store := newMemHotStore()

	require.NoError(t, store.AddZonePlayer(ctx, 5, 100))
	require.NoError(t, store.AddZonePlayer(ctx, 5, 101))
	require.True(t, store.zonePlayers[5][100])
	require.True(t, store.zonePlayers[5][101])

	require.NoError(t, store.RemoveZonePlayer(ctx, 5, 100))
	require.False(t, store.zonePlayers[5][100])
}

func TestMemHotStoreBanAndPosition(t *testing.T) {
	ctx := context.Background()
	store := newMemHotStore()

	ban := Ban{Reason: "cheating", ExpiryUnix: time.Now().Add(time.Hour).Unix()}
	require.NoError(t, store.SaveBan(ctx, 7, ban))
	loaded, ok, err := store.LoadBan(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ban, loaded)

	pos := fixedpoint.Vec3{X: 1000, Y: 0, Z: 2000}
	require.NoError(t, store.SavePosition(ctx, 7, pos))
	loadedPos, ok, err := store.LoadPosition(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pos, loadedPos)
}

func TestMemColdStoreRecordsEvents(t *testing.T) {
	ctx := context.Background()
	store := newMemColdStore()

	event := CombatEventRecord{
		EventID:    "evt-1",
		ZoneID:     1,
		EventTime:  time.Unix(1000, 0),
		AttackerID: 10,
		TargetID:   20,
		EventType:  "attack",
	}
	require.NoError(t, store.RecordCombatEvent(ctx, event))
	require.Len(t, store.events, 1)
	require.Equal(t, event, store.events[0])

	delta := PlayerCombatStatsDelta{PlayerID: 10, SessionDate: "2026-07-29", Kills: 1}
	require.NoError(t, store.ApplyCombatStatsDelta(ctx, delta))
	require.Len(t, store.deltas, 1)
	require.Equal(t, delta, store.deltas[0])
}

func TestSessionAndBanKeyConventions(t *testing.T) {
	require.Equal(t, "session:42", sessionKey(42))
	require.Equal(t, "ban:42", banKey(42))
	require.Equal(t, "pos:42", posKey(42))
	require.Equal(t, "zone:3:players", zonePlayersKey(3))
	require.Equal(t, "zone:3:status", zoneStatusKey(3))
}

func TestMarshalJSONRoundTrip(t *testing.T) {
	status := ZoneStatus{ZoneID: 1, PlayerCount: 50, TickRateHz: 60, Healthy: true}
	data, err := marshalJSON(status)
	require.NoError(t, err)
	require.Contains(t, string(data), "\"zoneId\":1")
}
