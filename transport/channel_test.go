package transport

import "testing"

type recordingChannel struct{ addr string }

func (c *recordingChannel) Send(reliable bool, data []byte) error { return nil }
func (c *recordingChannel) Recv() ([]byte, error)                 { return nil, ErrChannelClosed }
func (c *recordingChannel) RemoteAddr() string                    { return c.addr }
func (c *recordingChannel) Close() error                          { return nil }

func TestInputPumpDrainDeliversPushedPackets(t *testing.T) {
	pump := NewInputPump(4)
	ch := &recordingChannel{addr: "a"}
	pump.Push(ch, []byte{1, 2, 3})
	pump.Push(ch, []byte{4, 5})

	var got [][]byte
	pump.Drain(func(c Channel, data []byte) {
		if c != Channel(ch) {
			t.Errorf("unexpected channel in callback")
		}
		got = append(got, data)
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 drained packets, got %d", len(got))
	}
	if got[0][0] != 1 || got[1][0] != 4 {
		t.Fatalf("unexpected drain order: %v", got)
	}
}

func TestInputPumpDrainIsIdempotentOnceEmpty(t *testing.T) {
	pump := NewInputPump(4)
	pump.Push(&recordingChannel{addr: "a"}, []byte{9})

	count := 0
	pump.Drain(func(Channel, []byte) { count++ })
	pump.Drain(func(Channel, []byte) { count++ })

	if count != 1 {
		t.Fatalf("expected only the first Drain to see the packet, got count=%d", count)
	}
}

func TestInputPumpPushDropsOldestWhenFull(t *testing.T) {
	pump := NewInputPump(2)
	ch := &recordingChannel{addr: "a"}
	pump.Push(ch, []byte{1})
	pump.Push(ch, []byte{2})
	pump.Push(ch, []byte{3})

	var got [][]byte
	pump.Drain(func(c Channel, data []byte) { got = append(got, data) })

	if len(got) != 2 {
		t.Fatalf("expected queue capacity to cap delivered packets at 2, got %d", len(got))
	}
	if got[0][0] != 2 || got[1][0] != 3 {
		t.Fatalf("expected the oldest packet to be dropped, got %v", got)
	}
}
