package storm

import (
	"context"
	"net"

	"github.com/fluxorio/stormsocket/internal/concurrency"
)

// InitAcceptor binds and listens on addr, then begins an accept loop on
// its own goroutine. Per spec.md §4.3/§4.5.
func (b *Backend) InitAcceptor(frontend Frontend, addr string) (AcceptorId, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		b.logger.Warnf("storm: InitAcceptor bind %s failed: %v", addr, err)
		return InvalidAcceptorId, ErrListenerBindFailed
	}

	id := AcceptorId(b.nextAcceptorID.Add(1))
	state := &acceptorState{id: id, listener: ln, frontend: frontend}

	b.acceptorsMu.Lock()
	b.acceptors[id] = state
	b.acceptorsMu.Unlock()

	go b.acceptLoop(state)
	return id, nil
}

// DestroyAcceptor removes the acceptor; its in-flight accepts complete
// and then find it gone (Accept returns an error once the listener is
// closed, which acceptLoop treats as its stop signal).
func (b *Backend) DestroyAcceptor(id AcceptorId) error {
	b.acceptorsMu.Lock()
	state, ok := b.acceptors[id]
	if ok {
		delete(b.acceptors, id)
	}
	b.acceptorsMu.Unlock()

	if !ok {
		return ErrAcceptorNotFound
	}
	return state.listener.Close()
}

func (b *Backend) acceptLoop(state *acceptorState) {
	for {
		conn, err := state.listener.Accept()
		if err != nil {
			return // listener closed, by DestroyAcceptor or Backend.Close
		}
		b.handleAccept(conn, state.frontend)
	}
}

// handleAccept realizes spec.md §4.5: tune the socket, allocate a slot,
// optionally negotiate TLS, then notify the frontend and start receiving.
func (b *Backend) handleAccept(conn net.Conn, frontend Frontend) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetLinger(1)
	}

	fid, ok := frontend.AllocateFrontendId()
	if !ok {
		conn.Close()
		return
	}

	id, slot := b.slots.allocate(b.settings)
	if !id.IsValid() {
		frontend.FreeFrontendId(fid)
		conn.Close()
		return
	}

	slot.frontend = frontend
	slot.frontendID = fid
	slot.conn = conn
	if host, port, err := splitHostPort(conn.RemoteAddr()); err == nil {
		slot.remoteIP = host
		slot.remotePort = port
	}

	// Listener path: kConnectFinished is set immediately and the connect
	// event fires right away (spec.md §4.4).
	b.setDisconnectFlagOnSlot(id, slot, kConnectFinished)

	if err := frontend.InitConnection(id, fid, nil); err != nil {
		b.logger.Warnf("storm: InitConnection failed for %s: %v", id, err)
		b.setSocketDisconnected(id)
		return
	}

	frontend.QueueConnectEvent(id, fid, slot.remoteIP, slot.remotePort)
	if b.eventRelay != nil {
		b.eventRelay.Connected(id, fid, slot.remoteIP, slot.remotePort)
	}
	if b.metrics != nil {
		b.metrics.ConnectionOpened()
	}

	if frontend.UseSSL(id, fid) {
		if err := b.negotiateServerTLS(id, slot, frontend); err != nil {
			b.logger.Warnf("storm: TLS handshake failed for %s: %v", id, err)
			b.setSocketDisconnected(id)
			return
		}
	}

	frontend.ConnectionEstablishComplete(id, fid)
	b.startRecvLoop(id, slot)
}

// RequestConnect resolves host (numeric fast path or blocking DNS
// resolution, off the caller's goroutine) and connects. Per spec.md §4.6.
func (b *Backend) RequestConnect(frontend Frontend, host string, port uint16, initData []byte) ConnectionId {
	fid, ok := frontend.AllocateFrontendId()
	if !ok {
		return InvalidConnectionId
	}

	id, slot := b.slots.allocate(b.settings)
	if !id.IsValid() {
		frontend.FreeFrontendId(fid)
		return InvalidConnectionId
	}

	slot.frontend = frontend
	slot.frontendID = fid

	task := concurrency.TaskFunc(func(context.Context) error {
		b.connectAsync(id, slot, frontend, host, port, initData)
		return nil
	})
	if err := b.bgTasks.Submit(task); err != nil {
		// Background queue is saturated; still finish the attempt rather
		// than leaving the slot connecting forever.
		go b.connectAsync(id, slot, frontend, host, port, initData)
	}
	return id
}

func (b *Backend) connectAsync(id ConnectionId, slot *connectionSlot, frontend Frontend, host string, port uint16, initData []byte) {
	addr := net.JoinHostPort(host, portString(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		b.connectFailed(id, slot)
		return
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetLinger(1)
	}
	slot.conn = conn
	slot.remoteIP, slot.remotePort, _ = splitHostPort(conn.RemoteAddr())

	if err := frontend.InitConnection(id, slot.frontendID, initData); err != nil {
		b.connectFailed(id, slot)
		return
	}

	if frontend.UseSSL(id, slot.frontendID) {
		if err := b.negotiateClientTLS(id, slot, frontend, host); err != nil {
			b.connectFailed(id, slot)
			return
		}
	}

	frontend.QueueConnectEvent(id, slot.frontendID, slot.remoteIP, slot.remotePort)
	if b.eventRelay != nil {
		b.eventRelay.Connected(id, slot.frontendID, slot.remoteIP, slot.remotePort)
	}
	if b.metrics != nil {
		b.metrics.ConnectionOpened()
	}

	b.setDisconnectFlagOnSlot(id, slot, kConnectFinished)
	frontend.ConnectionEstablishComplete(id, slot.frontendID)
	b.startRecvLoop(id, slot)
}

// connectFailed realizes spec.md §4.6's ConnectFailed: marks the socket
// disconnected and the connect attempt finished.
func (b *Backend) connectFailed(id ConnectionId, slot *connectionSlot) {
	b.setSocketDisconnected(id)
	b.setDisconnectFlagOnSlot(id, slot, kConnectFinished)
}
