package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

func TestClientInputRoundTrip(t *testing.T) {
	in := ecs.InputState{
		Flags:     ecs.InputFlags{Forward: true, Attack: true, Sprint: true},
		Yaw:       45.5,
		Pitch:     -12.25,
		Sequence:  7,
		Timestamp: 123456,
	}
	raw := EncodeClientInput(in)
	require.Equal(t, PacketClientInput, mustType(t, raw))

	decoded, err := DecodeClientInput(raw)
	require.NoError(t, err)
	require.Equal(t, in.Flags, decoded.Flags)
	require.InDelta(t, in.Yaw, decoded.Yaw, 0.001)
	require.InDelta(t, in.Pitch, decoded.Pitch, 0.001)
	require.Equal(t, in.Sequence, decoded.Sequence)
	require.Equal(t, in.Timestamp, decoded.Timestamp)
}

func TestClientInputTruncated(t *testing.T) {
	_, err := DecodeClientInput([]byte{byte(PacketClientInput), 0, 0})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestPingRoundTrip(t *testing.T) {
	raw := EncodePing([]byte("echo-me"))
	payload, err := DecodePing(raw)
	require.NoError(t, err)
	require.Equal(t, []byte("echo-me"), payload)
}

func TestDisconnectRoundTrip(t *testing.T) {
	raw := EncodeDisconnect("kicked for idle")
	reason, err := DecodeDisconnect(raw)
	require.NoError(t, err)
	require.Equal(t, "kicked for idle", reason)
}

func TestReliableEventRoundTrip(t *testing.T) {
	raw := EncodeReliableEvent(EventChatMessage, []byte("hello zone"))
	subtype, payload, err := DecodeReliableEvent(raw)
	require.NoError(t, err)
	require.Equal(t, EventChatMessage, subtype)
	require.Equal(t, []byte("hello zone"), payload)
}

func TestHandshakeRequestRoundTrip(t *testing.T) {
	req := HandshakeRequest{VersionMajor: 1, VersionMinor: 2, AuthToken: "tok123", Username: "abbey"}
	raw := EncodeHandshakeRequest(req)
	decoded, err := DecodeHandshakeRequest(raw)
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	resp := HandshakeResponse{
		Accepted:   true,
		EntityID:   42,
		SpawnPos:   fixedpoint.Vec3{X: 1000, Y: 0, Z: -500},
		ServerTick: 99,
		Reason:     "",
	}
	raw := EncodeHandshakeResponse(resp)
	decoded, err := DecodeHandshakeResponse(raw)
	require.NoError(t, err)
	require.Equal(t, resp, decoded)
}

func TestHandshakeResponseRejectionCarriesReason(t *testing.T) {
	resp := HandshakeResponse{Accepted: false, Reason: "protocol version mismatch"}
	raw := EncodeHandshakeResponse(resp)
	decoded, err := DecodeHandshakeResponse(raw)
	require.NoError(t, err)
	require.False(t, decoded.Accepted)
	require.Equal(t, "protocol version mismatch", decoded.Reason)
}

func TestVersionCompatible(t *testing.T) {
	require.True(t, VersionCompatible(1, 2, 1, 2))
	require.True(t, VersionCompatible(1, 2, 1, 3))
	require.False(t, VersionCompatible(1, 2, 1, 1))
	require.False(t, VersionCompatible(1, 2, 2, 2))
}

func TestServerCorrectionRoundTrip(t *testing.T) {
	c := ServerCorrection{
		ServerTick:        77,
		Position:          fixedpoint.Vec3{X: 1500, Y: -20, Z: 300},
		Velocity:          fixedpoint.Vec3{X: 0, Y: 0, Z: -4000},
		LastInputSequence: 9,
	}
	raw := EncodeReliableEvent(EventServerCorrection, EncodeServerCorrection(c))
	subtype, payload, err := DecodeReliableEvent(raw)
	require.NoError(t, err)
	require.Equal(t, EventServerCorrection, subtype)
	decoded, err := DecodeServerCorrection(payload)
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}

func TestServerCorrectionTruncated(t *testing.T) {
	_, err := DecodeServerCorrection([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncated)
}

func mustType(t *testing.T, data []byte) PacketType {
	t.Helper()
	typ, err := PeekType(data)
	require.NoError(t, err)
	return typ
}
