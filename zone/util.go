package zone

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/aycrith/darkages-zoned/protocol"
)

// requestCtx bounds the one-off synchronous persistence calls the zone
// makes outside the steady-state tick loop (a player's position load at
// handshake time): unlike the per-tick outbox, which never blocks the
// simulation goroutine, a handshake is already a one-time, latency-
// tolerant event, so loading the player's last position inline is
// preferable to spawning them at the default point and correcting a tick
// later.
func requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 500*time.Millisecond)
}

// migrationRedirectPayload encodes the ZoneTransfer reliable-event payload:
// the new zone's id and listen port.
func migrationRedirectPayload(newZone uint32, newPort int) []byte {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], newZone)
	binary.LittleEndian.PutUint32(payload[4:8], uint32(newPort))
	return protocol.EncodeReliableEvent(protocol.EventZoneTransfer, payload)
}
