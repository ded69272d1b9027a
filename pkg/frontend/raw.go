// Package frontend provides reference Frontend implementations on top of
// pkg/storm: a raw byte-stream frontend, and a WebSocket frontend framed
// with gorilla/websocket and gated by a JWT bearer token.
package frontend

import (
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/fluxorio/stormsocket/pkg/storm"
	"github.com/fluxorio/stormsocket/pkg/stormlog"
)

// Handler processes a raw byte message received on a connection and
// returns the bytes to write back, or nil to send nothing.
type Handler func(id storm.ConnectionId, data []byte) []byte

// RawFrontend is the simplest possible Frontend: it hands every delivered
// byte run to a Handler and writes back whatever the handler returns.
// Grounded on the original's raw TCP echo usage of the backend, with no
// protocol framing of its own -- message boundaries are whatever the
// Handler decides to treat them as.
type RawFrontend struct {
	Backend *storm.Backend
	Handle  Handler
	Logger  stormlog.Logger

	nextID atomic.Uint64

	mu    sync.Mutex
	conns map[storm.ConnectionId]struct{}
}

// NewRawFrontend constructs a RawFrontend bound to backend, invoking
// handle for every delivery.
func NewRawFrontend(backend *storm.Backend, handle Handler) *RawFrontend {
	return &RawFrontend{
		Backend: backend,
		Handle:  handle,
		Logger:  stormlog.NewDefaultLogger(),
		conns:   make(map[storm.ConnectionId]struct{}),
	}
}

func (f *RawFrontend) AllocateFrontendId() (storm.FrontendId, bool) {
	return storm.FrontendId(f.nextID.Add(1)), true
}

func (f *RawFrontend) FreeFrontendId(storm.FrontendId) {}

func (f *RawFrontend) InitConnection(id storm.ConnectionId, fid storm.FrontendId, initData []byte) error {
	return nil
}

func (f *RawFrontend) AssociateConnectionId(id storm.ConnectionId) {
	f.mu.Lock()
	f.conns[id] = struct{}{}
	f.mu.Unlock()
}

func (f *RawFrontend) DisassociateConnectionId(id storm.ConnectionId) {
	f.mu.Lock()
	delete(f.conns, id)
	f.mu.Unlock()
}

func (f *RawFrontend) QueueConnectEvent(storm.ConnectionId, storm.FrontendId, string, uint16) {}
func (f *RawFrontend) QueueDisconnectEvent(storm.ConnectionId, storm.FrontendId)              {}
func (f *RawFrontend) ConnectionEstablishComplete(storm.ConnectionId, storm.FrontendId)       {}
func (f *RawFrontend) UseSSL(storm.ConnectionId, storm.FrontendId) bool                       { return false }
func (f *RawFrontend) GetSSLConfig() *tls.Config                                              { return nil }
func (f *RawFrontend) SendClosePacket(storm.ConnectionId, storm.FrontendId)                   {}
func (f *RawFrontend) CleanupConnection(storm.ConnectionId, storm.FrontendId)                 {}

// ProcessData reads whatever is pending, hands it to Handle, and writes
// back any reply. Per the Frontend contract this never blocks and never
// calls back into the backend for id outside Discard/Peek/CreateWriter/
// SendPacketToConnection.
func (f *RawFrontend) ProcessData(id storm.ConnectionId, fid storm.FrontendId) bool {
	data := f.Backend.PeekParserData(id)
	if len(data) == 0 {
		return true
	}
	consumed := append([]byte(nil), data...)
	f.Backend.DiscardParserData(id, len(consumed))

	reply := f.Handle(id, consumed)
	if reply == nil {
		return true
	}

	w := f.Backend.CreateWriter(false)
	w.Write(reply)
	ok := f.Backend.SendPacketToConnection(w, id)
	w.Unref()
	if !ok {
		f.Logger.Warnf("frontend: dropped reply for %s, output queue full", id)
	}
	return true
}

// EchoHandler is a Handler that returns exactly what it received.
func EchoHandler(_ storm.ConnectionId, data []byte) []byte {
	return data
}
