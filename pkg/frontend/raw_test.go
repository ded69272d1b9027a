package frontend

import (
	"bytes"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/fluxorio/stormsocket/pkg/storm"
)

func testSettings() storm.Settings {
	s := storm.DefaultSettings()
	s.MaxConnections = 16
	s.NumSendThreads = 2
	s.NumIOThreads = 2
	s.HeapSize = 1 << 20
	s.BlockSize = 512
	return s
}

func TestRawFrontend_Echo(t *testing.T) {
	b := storm.New(testSettings())
	defer b.Close()

	server := NewRawFrontend(b, EchoHandler)
	acceptorID, err := b.InitAcceptor(server, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("InitAcceptor failed: %v", err)
	}
	defer b.DestroyAcceptor(acceptorID)

	received := make(chan []byte, 1)
	client := NewRawFrontend(b, func(id storm.ConnectionId, data []byte) []byte {
		received <- data
		return nil
	})

	netAddr, err := b.AcceptorAddr(acceptorID)
	if err != nil {
		t.Fatalf("AcceptorAddr failed: %v", err)
	}
	host, portStr, err := net.SplitHostPort(netAddr.String())
	if err != nil {
		t.Fatalf("SplitHostPort failed: %v", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("ParseUint failed: %v", err)
	}

	connID := b.RequestConnect(client, host, uint16(port), nil)
	if !connID.IsValid() {
		t.Fatalf("RequestConnect should return a valid id")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !b.ConnectionIdValid(connID) {
		time.Sleep(5 * time.Millisecond)
	}

	w := b.CreateWriter(false)
	w.Write([]byte("ping"))
	if !b.SendPacketToConnection(w, connID) {
		t.Fatalf("SendPacketToConnection should succeed")
	}
	w.Unref()

	select {
	case got := <-received:
		if !bytes.Equal(got, []byte("ping")) {
			t.Fatalf("echoed data = %q, want %q", got, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for echo")
	}
}
