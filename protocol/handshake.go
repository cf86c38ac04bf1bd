package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// HandshakeRequest is the client->server Handshake payload:
// {protocolVersion, authToken, username}.
type HandshakeRequest struct {
	VersionMajor uint8
	VersionMinor uint8
	AuthToken    string
	Username     string
}

// EncodeHandshakeRequest frames req as a Handshake packet.
func EncodeHandshakeRequest(req HandshakeRequest) []byte {
	buf := make([]byte, 0, 1+2+2+len(req.AuthToken)+2+len(req.Username))
	buf = append(buf, byte(PacketHandshake))
	buf = append(buf, req.VersionMajor, req.VersionMinor)
	buf = appendString(buf, req.AuthToken)
	buf = appendString(buf, req.Username)
	return buf
}

// DecodeHandshakeRequest parses a Handshake request packet.
func DecodeHandshakeRequest(data []byte) (HandshakeRequest, error) {
	if len(data) < 3 {
		return HandshakeRequest{}, ErrTruncated
	}
	if PacketType(data[0]) != PacketHandshake {
		return HandshakeRequest{}, fmt.Errorf("protocol: expected Handshake, got %s", PacketType(data[0]))
	}
	req := HandshakeRequest{VersionMajor: data[1], VersionMinor: data[2]}
	rest := data[3:]
	token, rest, err := readString(rest)
	if err != nil {
		return HandshakeRequest{}, err
	}
	req.AuthToken = token
	username, _, err := readString(rest)
	if err != nil {
		return HandshakeRequest{}, err
	}
	req.Username = username
	return req, nil
}

// HandshakeResponse is the server->client Handshake reply:
// {accepted, entityId, spawnPos, serverTick}, plus a reason when rejected.
type HandshakeResponse struct {
	Accepted   bool
	EntityID   uint32
	SpawnPos   fixedpoint.Vec3
	ServerTick uint32
	Reason     string
}

// EncodeHandshakeResponse frames resp as a Handshake packet.
func EncodeHandshakeResponse(resp HandshakeResponse) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(PacketHandshake))
	if resp.Accepted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, resp.EntityID)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(resp.SpawnPos.X))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(resp.SpawnPos.Y))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(resp.SpawnPos.Z))
	buf = binary.LittleEndian.AppendUint32(buf, resp.ServerTick)
	buf = appendString(buf, resp.Reason)
	return buf
}

// DecodeHandshakeResponse parses a Handshake response packet.
func DecodeHandshakeResponse(data []byte) (HandshakeResponse, error) {
	const fixedLen = 1 + 1 + 4 + 8 + 8 + 8 + 4
	if len(data) < fixedLen {
		return HandshakeResponse{}, ErrTruncated
	}
	if PacketType(data[0]) != PacketHandshake {
		return HandshakeResponse{}, fmt.Errorf("protocol: expected Handshake, got %s", PacketType(data[0]))
	}
	resp := HandshakeResponse{
		Accepted: data[1] != 0,
		EntityID: binary.LittleEndian.Uint32(data[2:6]),
		SpawnPos: fixedpoint.Vec3{
			X: int64(binary.LittleEndian.Uint64(data[6:14])),
			Y: int64(binary.LittleEndian.Uint64(data[14:22])),
			Z: int64(binary.LittleEndian.Uint64(data[22:30])),
		},
		ServerTick: binary.LittleEndian.Uint32(data[30:34]),
	}
	reason, _, err := readString(data[34:])
	if err != nil {
		return HandshakeResponse{}, err
	}
	resp.Reason = reason
	return resp, nil
}

// VersionCompatible reports whether a client's handshake version is
// acceptable against the server's (clientMajor, clientMinor) versus
// (serverMajor, serverMinor): major must match exactly, minor must be >=
// the server's minimum.
func VersionCompatible(serverMajor, serverMinor, clientMajor, clientMinor uint8) bool {
	return clientMajor == serverMajor && clientMinor >= serverMinor
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint16(data[:2]))
	data = data[2:]
	if len(data) < n {
		return "", nil, ErrTruncated
	}
	return string(data[:n]), data[n:], nil
}
