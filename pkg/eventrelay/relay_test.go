package eventrelay

import (
	"encoding/json"
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/fluxorio/stormsocket/pkg/storm"
)

func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()

	opts := &natssrv.Options{Port: -1}
	s, err := natssrv.NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestNATSRelay_ConnectedAndDisconnected(t *testing.T) {
	s := runTestNATSServer(t)

	relay, err := NewNATSRelay(Config{URL: s.ClientURL(), Prefix: "stormsocket.test"})
	if err != nil {
		t.Fatalf("NewNATSRelay failed: %v", err)
	}
	t.Cleanup(func() { relay.Close() })

	connected := make(chan connectEvent, 1)
	sub, err := relay.Subscribe(func(m *nats.Msg) {
		var ev connectEvent
		if err := json.Unmarshal(m.Data, &ev); err == nil {
			connected <- ev
		}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	disconnected := make(chan disconnectEvent, 1)
	dsub, err := relay.SubscribeDisconnected(func(m *nats.Msg) {
		var ev disconnectEvent
		if err := json.Unmarshal(m.Data, &ev); err == nil {
			disconnected <- ev
		}
	})
	if err != nil {
		t.Fatalf("SubscribeDisconnected failed: %v", err)
	}
	defer dsub.Unsubscribe()

	id := storm.ConnectionId{Slot: 7, Generation: 2}
	relay.Connected(id, storm.FrontendId(99), "10.0.0.5", 5555)

	select {
	case ev := <-connected:
		if ev.Slot != 7 || ev.RemoteIP != "10.0.0.5" || ev.RemotePort != 5555 {
			t.Fatalf("unexpected connect event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connect event")
	}

	relay.Disconnected(id, storm.FrontendId(99))

	select {
	case ev := <-disconnected:
		if ev.Slot != 7 || ev.FrontendID != 99 {
			t.Fatalf("unexpected disconnect event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for disconnect event")
	}
}
