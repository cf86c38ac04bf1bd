// Package messenger implements the cross-zone message envelope and
// channel-naming convention over Redis pub/sub (github.com/redis/go-
// redis/v9), with defensive per-source-zone sequence dedup on top of
// Redis's per-subscriber FIFO guarantee.
package messenger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/aycrith/darkages-zoned/logging"
)

// MessageType enumerates the cross-zone envelope's type byte.
type MessageType uint8

const (
	EntitySync MessageType = iota + 1
	MigrationRequest
	MigrationState
	MigrationComplete
	Broadcast
	Chat
	ZoneStatus
)

// Envelope is one cross-zone message.
type Envelope struct {
	Type         MessageType
	SourceZoneID uint32
	TargetZoneID uint32
	Sequence     uint32
	Timestamp    uint32
	Payload      []byte
}

// Encode serializes an Envelope to its wire form.
func (e Envelope) Encode() []byte {
	buf := make([]byte, 0, envelopeHeaderLen+len(e.Payload))
	buf = append(buf, byte(e.Type))
	buf = binary.LittleEndian.AppendUint32(buf, e.SourceZoneID)
	buf = binary.LittleEndian.AppendUint32(buf, e.TargetZoneID)
	buf = binary.LittleEndian.AppendUint32(buf, e.Sequence)
	buf = binary.LittleEndian.AppendUint32(buf, e.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Payload)))
	buf = append(buf, e.Payload...)
	return buf
}

// envelopeHeaderLen is type(1) + sourceZone(4) + targetZone(4) +
// sequence(4) + timestamp(4) + payloadLen(4), per the wire layout.
const envelopeHeaderLen = 21

// Decode parses the wire form of an Envelope.
func Decode(data []byte) (Envelope, error) {
	if len(data) < envelopeHeaderLen {
		return Envelope{}, fmt.Errorf("messenger: truncated envelope header (%d bytes)", len(data))
	}
	e := Envelope{
		Type:         MessageType(data[0]),
		SourceZoneID: binary.LittleEndian.Uint32(data[1:5]),
		TargetZoneID: binary.LittleEndian.Uint32(data[5:9]),
		Sequence:     binary.LittleEndian.Uint32(data[9:13]),
		Timestamp:    binary.LittleEndian.Uint32(data[13:17]),
	}
	payloadLen := binary.LittleEndian.Uint32(data[17:21])
	if uint32(len(data)-envelopeHeaderLen) < payloadLen {
		return Envelope{}, fmt.Errorf("messenger: truncated payload: want %d have %d", payloadLen, len(data)-envelopeHeaderLen)
	}
	e.Payload = data[envelopeHeaderLen : envelopeHeaderLen+int(payloadLen)]
	return e, nil
}

// ChannelName returns the Redis pub/sub channel a directed message to
// zoneID is published on.
func ChannelName(zoneID uint32) string {
	return fmt.Sprintf("zone:%d:messages", zoneID)
}

// BroadcastChannel is the all-zones channel.
const BroadcastChannel = "zone:broadcast"

// Handler processes one received Envelope.
type Handler func(Envelope)

// Messenger publishes and subscribes to cross-zone envelopes over a Redis
// client. Redis pub/sub already guarantees per-subscriber FIFO and never
// redelivers, but migration requests additionally carry a per-source
// monotone sequence, so stale duplicates of those are dropped here before
// they reach the simulation queue. Other envelope types are passed through:
// entity syncs are idempotent state refreshes, and migration acks echo the
// requester's sequence space, which is not monotone from the acking zone's
// point of view.
type Messenger struct {
	client *redis.Client
	logger *logging.Logger
	zoneID uint32

	mu       sync.Mutex
	lastSeen map[uint32]uint32 // sourceZoneId -> highest MigrationRequest sequence seen
}

// New constructs a Messenger bound to client for zoneID.
func New(client *redis.Client, logger *logging.Logger, zoneID uint32) *Messenger {
	return &Messenger{client: client, logger: logger, zoneID: zoneID, lastSeen: make(map[uint32]uint32)}
}

// Publish sends env to the directed channel for env.TargetZoneID.
func (m *Messenger) Publish(ctx context.Context, env Envelope) error {
	return m.client.Publish(ctx, ChannelName(env.TargetZoneID), env.Encode()).Err()
}

// PublishBroadcast sends env to the all-zones channel.
func (m *Messenger) PublishBroadcast(ctx context.Context, env Envelope) error {
	return m.client.Publish(ctx, BroadcastChannel, env.Encode()).Err()
}

// acceptEnvelope reports whether env should reach the handler. Only
// MigrationRequest envelopes are sequence-checked against the per-source
// watermark; everything else is accepted unconditionally.
func (m *Messenger) acceptEnvelope(env Envelope) bool {
	if env.Type != MigrationRequest {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.lastSeen[env.SourceZoneID]
	if ok && env.Sequence <= last {
		return false
	}
	m.lastSeen[env.SourceZoneID] = env.Sequence
	return true
}

// Listen subscribes to this zone's directed channel plus the broadcast
// channel and invokes handler for each newly accepted envelope until ctx
// is cancelled. Intended to run on the background pub/sub reader goroutine
// — handler pushes into the mutex-protected
// queue the simulation goroutine drains each tick, it does not itself run
// on the simulation goroutine.
func (m *Messenger) Listen(ctx context.Context, handler Handler) error {
	sub := m.client.Subscribe(ctx, ChannelName(m.zoneID), BroadcastChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := Decode([]byte(msg.Payload))
			if err != nil {
				if m.logger != nil {
					m.logger.Warn(fmt.Sprintf("messenger: dropping malformed envelope: %v", err))
				}
				continue
			}
			if !m.acceptEnvelope(env) {
				continue
			}
			handler(env)
		}
	}
}
