// Package transport defines the zone's view of a client connection and
// provides a concrete WebRTC-backed implementation. The simulation core
// never imports this package's concrete types directly — it depends only on
// the Channel interface declared here, so tests can substitute an
// in-memory fake.
package transport

import "errors"

// ErrChannelClosed is returned by Send/Recv once a Channel has been closed.
var ErrChannelClosed = errors.New("transport: channel closed")

// Channel is one client's duplex connection, carrying both the unreliable
// datagram stream (input, snapshots, ping) and the reliable stream (events,
// handshake, disconnect) the wire protocol distinguishes by PacketType. A
// WebRTC PeerConnection with one ordered and one unordered DataChannel
// satisfies this with a single underlying connection.
type Channel interface {
	// Send transmits a framed packet. reliable selects the ordered/
	// retransmitting data channel versus the unordered one.
	Send(reliable bool, data []byte) error

	// Recv returns the channel's next inbound packet, or ErrChannelClosed
	// once no more will arrive. Safe to call from one reader goroutine.
	Recv() ([]byte, error)

	// RemoteAddr identifies the peer for rate-limiting/ban bookkeeping.
	RemoteAddr() string

	// Close tears down the underlying connection.
	Close() error
}

// InputPump is the network-poll side of the background-goroutine model: it
// feeds inbound packets into a queue the simulation goroutine drains once
// per tick, rather than handing them to simulation code directly.
type InputPump struct {
	queue chan inboundPacket
}

type inboundPacket struct {
	channel Channel
	data    []byte
}

// NewInputPump constructs a pump with a bounded backlog; a full queue drops
// the oldest packet rather than blocking the transport goroutine, since a
// stale unreliable packet is worthless anyway.
func NewInputPump(capacity int) *InputPump {
	return &InputPump{queue: make(chan inboundPacket, capacity)}
}

// Push enqueues a packet received on ch. Called from the transport-poll
// goroutine.
func (p *InputPump) Push(ch Channel, data []byte) {
	select {
	case p.queue <- inboundPacket{channel: ch, data: data}:
	default:
		select {
		case <-p.queue:
		default:
		}
		select {
		case p.queue <- inboundPacket{channel: ch, data: data}:
		default:
		}
	}
}

// Drain removes every currently queued packet, invoking fn for each. Called
// once per tick from the zone's network update step.
func (p *InputPump) Drain(fn func(ch Channel, data []byte)) {
	for {
		select {
		case pkt := <-p.queue:
			fn(pkt.channel, pkt.data)
		default:
			return
		}
	}
}
