// Package protocol implements the client wire protocol: the one-byte
// PacketType framing, the handshake/disconnect/ping payload codecs, and the
// packet validator that every ClientInput passes through before it
// ever touches simulation state.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// PacketType is the one-byte prefix every wire packet carries.
type PacketType uint8

const (
	PacketClientInput PacketType = iota + 1
	PacketServerSnapshot
	PacketReliableEvent
	PacketPing
	PacketHandshake
	PacketDisconnect
)

func (t PacketType) String() string {
	switch t {
	case PacketClientInput:
		return "ClientInput"
	case PacketServerSnapshot:
		return "ServerSnapshot"
	case PacketReliableEvent:
		return "ReliableEvent"
	case PacketPing:
		return "Ping"
	case PacketHandshake:
		return "Handshake"
	case PacketDisconnect:
		return "Disconnect"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// ErrTruncated is returned by any decode function given fewer bytes than
// its fixed layout requires.
var ErrTruncated = fmt.Errorf("protocol: truncated packet")

// PeekType reads the leading PacketType byte without consuming the rest.
func PeekType(data []byte) (PacketType, error) {
	if len(data) < 1 {
		return 0, ErrTruncated
	}
	return PacketType(data[0]), nil
}

// Input flag bits, packed into a single byte for the wire.
const (
	flagForward = 1 << iota
	flagBackward
	flagLeft
	flagRight
	flagJump
	flagAttack
	flagBlock
	flagSprint
)

func encodeFlags(f ecs.InputFlags) uint8 {
	var b uint8
	if f.Forward {
		b |= flagForward
	}
	if f.Backward {
		b |= flagBackward
	}
	if f.Left {
		b |= flagLeft
	}
	if f.Right {
		b |= flagRight
	}
	if f.Jump {
		b |= flagJump
	}
	if f.Attack {
		b |= flagAttack
	}
	if f.Block {
		b |= flagBlock
	}
	if f.Sprint {
		b |= flagSprint
	}
	return b
}

func decodeFlags(b uint8) ecs.InputFlags {
	return ecs.InputFlags{
		Forward:  b&flagForward != 0,
		Backward: b&flagBackward != 0,
		Left:     b&flagLeft != 0,
		Right:    b&flagRight != 0,
		Jump:     b&flagJump != 0,
		Attack:   b&flagAttack != 0,
		Block:    b&flagBlock != 0,
		Sprint:   b&flagSprint != 0,
	}
}

// clientInputWireLen is type(1) + flags(1) + yaw(4) + pitch(4) + seq(4) +
// timestamp(8).
const clientInputWireLen = 22

// EncodeClientInput frames an InputState as a ClientInput packet.
func EncodeClientInput(in ecs.InputState) []byte {
	buf := make([]byte, 0, clientInputWireLen)
	buf = append(buf, byte(PacketClientInput))
	buf = append(buf, encodeFlags(in.Flags))
	buf = binary.LittleEndian.AppendUint32(buf, float32bits(in.Yaw))
	buf = binary.LittleEndian.AppendUint32(buf, float32bits(in.Pitch))
	buf = binary.LittleEndian.AppendUint32(buf, in.Sequence)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(in.Timestamp))
	return buf
}

// DecodeClientInput parses a ClientInput packet (including its leading type
// byte).
func DecodeClientInput(data []byte) (ecs.InputState, error) {
	if len(data) < clientInputWireLen {
		return ecs.InputState{}, ErrTruncated
	}
	if PacketType(data[0]) != PacketClientInput {
		return ecs.InputState{}, fmt.Errorf("protocol: expected ClientInput, got %s", PacketType(data[0]))
	}
	return ecs.InputState{
		Flags:     decodeFlags(data[1]),
		Yaw:       float64(float32frombits(binary.LittleEndian.Uint32(data[2:6]))),
		Pitch:     float64(float32frombits(binary.LittleEndian.Uint32(data[6:10]))),
		Sequence:  binary.LittleEndian.Uint32(data[10:14]),
		Timestamp: int64(binary.LittleEndian.Uint64(data[14:22])),
	}, nil
}

// EncodePing frames an opaque echo payload: whatever bytes the client
// sends in a Ping packet are sent back verbatim in the reply.
func EncodePing(echo []byte) []byte {
	buf := make([]byte, 0, 1+len(echo))
	buf = append(buf, byte(PacketPing))
	buf = append(buf, echo...)
	return buf
}

// DecodePing strips the leading type byte and returns the echo payload.
func DecodePing(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, ErrTruncated
	}
	if PacketType(data[0]) != PacketPing {
		return nil, fmt.Errorf("protocol: expected Ping, got %s", PacketType(data[0]))
	}
	return data[1:], nil
}

// EncodeDisconnect frames a human-readable reason string as a Disconnect
// packet.
func EncodeDisconnect(reason string) []byte {
	buf := make([]byte, 0, 1+len(reason))
	buf = append(buf, byte(PacketDisconnect))
	buf = append(buf, []byte(reason)...)
	return buf
}

// DecodeDisconnect strips the leading type byte and returns the reason.
func DecodeDisconnect(data []byte) (string, error) {
	if len(data) < 1 {
		return "", ErrTruncated
	}
	if PacketType(data[0]) != PacketDisconnect {
		return "", fmt.Errorf("protocol: expected Disconnect, got %s", PacketType(data[0]))
	}
	return string(data[1:]), nil
}

// ReliableEventSubtype distinguishes the payload carried by a ReliableEvent
// packet: event subtype plus payload.
type ReliableEventSubtype uint8

const (
	EventZoneTransfer ReliableEventSubtype = iota + 1
	EventChatMessage
	EventEntityDeath
	EventAbilityResult
	EventServerCorrection
)

// ServerCorrection is the server-authority position/velocity override sent
// when an input fails movement validation. The client rolls its predicted
// state back to this and replays inputs after LastInputSequence.
type ServerCorrection struct {
	ServerTick        uint32
	Position          fixedpoint.Vec3
	Velocity          fixedpoint.Vec3
	LastInputSequence uint32
}

// serverCorrectionWireLen is tick(4) + pos(24) + vel(24) + seq(4).
const serverCorrectionWireLen = 56

// EncodeServerCorrection serializes a ServerCorrection payload; callers
// frame it with EncodeReliableEvent(EventServerCorrection, ...).
func EncodeServerCorrection(c ServerCorrection) []byte {
	buf := make([]byte, 0, serverCorrectionWireLen)
	buf = binary.LittleEndian.AppendUint32(buf, c.ServerTick)
	for _, v := range []int64{c.Position.X, c.Position.Y, c.Position.Z, c.Velocity.X, c.Velocity.Y, c.Velocity.Z} {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
	}
	buf = binary.LittleEndian.AppendUint32(buf, c.LastInputSequence)
	return buf
}

// DecodeServerCorrection parses an EventServerCorrection payload.
func DecodeServerCorrection(data []byte) (ServerCorrection, error) {
	if len(data) < serverCorrectionWireLen {
		return ServerCorrection{}, ErrTruncated
	}
	c := ServerCorrection{ServerTick: binary.LittleEndian.Uint32(data[0:4])}
	vals := make([]int64, 6)
	for i := range vals {
		off := 4 + i*8
		vals[i] = int64(binary.LittleEndian.Uint64(data[off : off+8]))
	}
	c.Position = fixedpoint.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}
	c.Velocity = fixedpoint.Vec3{X: vals[3], Y: vals[4], Z: vals[5]}
	c.LastInputSequence = binary.LittleEndian.Uint32(data[52:56])
	return c, nil
}

// EncodeReliableEvent frames subtype+payload as a ReliableEvent packet.
func EncodeReliableEvent(subtype ReliableEventSubtype, payload []byte) []byte {
	buf := make([]byte, 0, 2+len(payload))
	buf = append(buf, byte(PacketReliableEvent))
	buf = append(buf, byte(subtype))
	buf = append(buf, payload...)
	return buf
}

// DecodeReliableEvent splits a ReliableEvent packet into its subtype and
// payload.
func DecodeReliableEvent(data []byte) (ReliableEventSubtype, []byte, error) {
	if len(data) < 2 {
		return 0, nil, ErrTruncated
	}
	if PacketType(data[0]) != PacketReliableEvent {
		return 0, nil, fmt.Errorf("protocol: expected ReliableEvent, got %s", PacketType(data[0]))
	}
	return ReliableEventSubtype(data[1]), data[2:], nil
}

func float32bits(f float64) uint32 {
	return math.Float32bits(float32(f))
}

func float32frombits(b uint32) float32 {
	return math.Float32frombits(b)
}
