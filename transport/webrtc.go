package transport

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/aycrith/darkages-zoned/logging"
)

// reliableLabel/unreliableLabel name the two data channels every peer
// connection opens, mirroring the wire protocol's reliable/unreliable
// packet classes onto WebRTC's native ordered/unordered channels.
const (
	reliableLabel   = "reliable"
	unreliableLabel = "unreliable"
)

// WebRTCManager accepts WebSocket signaling connections, negotiates one
// PeerConnection per client, and exposes each as a Channel to the rest of
// the zone. There are no session rooms (a zone has exactly one room —
// itself) and no multi-party mesh: every peer talks only to the zone.
type WebRTCManager struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader
	config   webrtc.Configuration
	api      *webrtc.API

	mu    sync.Mutex
	peers map[string]*webrtcChannel

	pump *InputPump
}

// NewWebRTCManager constructs a manager that pushes inbound packets into
// pump as they arrive, for the simulation goroutine to drain each tick.
func NewWebRTCManager(logger *logging.Logger, pump *InputPump) *WebRTCManager {
	return &WebRTCManager{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		},
		api:   webrtc.NewAPI(),
		peers: make(map[string]*webrtcChannel),
		pump:  pump,
	}
}

// signalingMessage is the JSON envelope exchanged over the signaling
// WebSocket during offer/answer/candidate negotiation.
type signalingMessage struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// ServeSignaling upgrades r to a WebSocket and negotiates a new
// PeerConnection, registering the resulting Channel under remoteAddr so the
// rate limiter and anti-cheat layers can key off a stable identity before
// the handshake packet arrives.
func (m *WebRTCManager) ServeSignaling(w http.ResponseWriter, r *http.Request, remoteAddr string) error {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("transport: websocket upgrade: %w", err)
	}

	pc, err := m.api.NewPeerConnection(m.config)
	if err != nil {
		ws.Close()
		return fmt.Errorf("transport: new peer connection: %w", err)
	}

	ch := &webrtcChannel{
		remoteAddr: remoteAddr,
		pc:         pc,
		ws:         ws,
		recvCh:     make(chan []byte, 256),
		closed:     make(chan struct{}),
		logger:     m.logger,
	}

	reliableDC, err := pc.CreateDataChannel(reliableLabel, &webrtc.DataChannelInit{Ordered: boolPtr(true)})
	if err != nil {
		pc.Close()
		ws.Close()
		return fmt.Errorf("transport: create reliable channel: %w", err)
	}
	unreliable := false
	unreliableDC, err := pc.CreateDataChannel(unreliableLabel, &webrtc.DataChannelInit{
		Ordered:        &unreliable,
		MaxRetransmits: uint16Ptr(0),
	})
	if err != nil {
		pc.Close()
		ws.Close()
		return fmt.Errorf("transport: create unreliable channel: %w", err)
	}
	ch.reliable = reliableDC
	ch.unreliable = unreliableDC

	m.wireChannel(ch)

	m.mu.Lock()
	m.peers[remoteAddr] = ch
	m.mu.Unlock()

	go m.signalingLoop(ch)

	if err := ch.offer(); err != nil {
		ch.Close()
		return fmt.Errorf("transport: send offer: %w", err)
	}
	return nil
}

func (m *WebRTCManager) wireChannel(ch *webrtcChannel) {
	onMsg := func(msg webrtc.DataChannelMessage) {
		m.pump.Push(ch, msg.Data)
		select {
		case ch.recvCh <- msg.Data:
		default:
		}
	}
	ch.reliable.OnMessage(onMsg)
	ch.unreliable.OnMessage(onMsg)

	ch.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateDisconnected {
			ch.Close()
			m.mu.Lock()
			delete(m.peers, ch.remoteAddr)
			m.mu.Unlock()
		}
	})
	ch.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		m.logger.Debug("ice connection state changed", map[string]interface{}{
			"remote_addr": ch.remoteAddr, "state": s.String(),
		})
	})
}

func (m *WebRTCManager) signalingLoop(ch *webrtcChannel) {
	defer ch.ws.Close()
	for {
		var msg signalingMessage
		if err := ch.ws.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "answer":
			if msg.SDP != nil {
				if err := ch.pc.SetRemoteDescription(*msg.SDP); err != nil {
					m.logger.Error("set remote description failed", map[string]interface{}{"error": err.Error()})
				}
			}
		case "ice-candidate":
			if msg.Candidate != nil {
				if err := ch.pc.AddICECandidate(*msg.Candidate); err != nil {
					m.logger.Error("add ice candidate failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}
}

// offer creates and sends the initial SDP offer over the signaling
// WebSocket. The zone always offers; the client answers.
func (ch *webrtcChannel) offer() error {
	o, err := ch.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := ch.pc.SetLocalDescription(o); err != nil {
		return err
	}
	return ch.ws.WriteJSON(signalingMessage{Type: "offer", SDP: &o})
}

func boolPtr(b bool) *bool       { return &b }
func uint16Ptr(v uint16) *uint16 { return &v }

// webrtcChannel implements Channel over one client's PeerConnection.
type webrtcChannel struct {
	remoteAddr string
	pc         *webrtc.PeerConnection
	reliable   *webrtc.DataChannel
	unreliable *webrtc.DataChannel
	ws         *websocket.Conn
	recvCh     chan []byte
	closeOnce  sync.Once
	closed     chan struct{}
	logger     *logging.Logger
}

func (c *webrtcChannel) Send(reliable bool, data []byte) error {
	dc := c.unreliable
	if reliable {
		dc = c.reliable
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelClosed
	}
	return dc.Send(data)
}

func (c *webrtcChannel) Recv() ([]byte, error) {
	select {
	case data, ok := <-c.recvCh:
		if !ok {
			return nil, ErrChannelClosed
		}
		return data, nil
	case <-c.closed:
		return nil, ErrChannelClosed
	}
}

func (c *webrtcChannel) RemoteAddr() string { return c.remoteAddr }

func (c *webrtcChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.pc != nil {
			err = c.pc.Close()
		}
		if c.ws != nil {
			c.ws.Close()
		}
	})
	return err
}
