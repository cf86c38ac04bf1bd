package migration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/ecs"
)

func TestMigrationHappyPath(t *testing.T) {
	var redirected uint32
	m := NewManager(1, 5*time.Second, 500*time.Millisecond, func(connID, newZone uint32, newPort int) {
		redirected = newZone
	})
	e := ecs.Entity{}
	now := time.Now()

	mig := m.InitiateMigration(e, 2, EntitySnapshot{ConnectionID: 7}, now)
	require.Equal(t, Preparing, mig.State)

	require.NoError(t, m.BeginTransfer(e))
	out, _ := m.Outgoing(e)
	require.Equal(t, Transferring, out.State)

	require.NoError(t, m.OnTargetAck(e))
	out, _ = m.Outgoing(e)
	require.Equal(t, Syncing, out.State)

	require.False(t, m.ReadyToComplete(e, now))
	require.True(t, m.ReadyToComplete(e, now.Add(600*time.Millisecond)))

	require.NoError(t, m.Complete(e, 9400, now.Add(600*time.Millisecond)))
	require.Equal(t, uint32(2), redirected)
	_, ok := m.Outgoing(e)
	require.False(t, ok)
}

func TestMigrationRejectsOutOfOrderTransitions(t *testing.T) {
	m := NewManager(1, 5*time.Second, 500*time.Millisecond, nil)
	e := ecs.Entity{}
	require.Error(t, m.BeginTransfer(e))

	m.InitiateMigration(e, 2, EntitySnapshot{}, time.Now())
	require.Error(t, m.OnTargetAck(e))
}

func TestMigrationTimeoutFails(t *testing.T) {
	m := NewManager(1, 10*time.Millisecond, 500*time.Millisecond, nil)
	e := ecs.Entity{}
	now := time.Now()
	m.InitiateMigration(e, 2, EntitySnapshot{}, now)

	failed := m.CheckTimeout(now.Add(50 * time.Millisecond))
	require.Contains(t, failed, e)
	_, ok := m.Outgoing(e)
	require.False(t, ok)
}

func TestAcceptIncomingDedupsSequence(t *testing.T) {
	m := NewManager(2, 5*time.Second, 500*time.Millisecond, nil)
	require.True(t, m.AcceptIncoming(1, 100))
	require.False(t, m.AcceptIncoming(1, 100))
	require.True(t, m.AcceptIncoming(1, 101))
	require.True(t, m.AcceptIncoming(3, 100))
}
