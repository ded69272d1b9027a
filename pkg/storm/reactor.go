package storm

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// negotiateServerTLS wraps slot.conn in a server-side *tls.Conn and runs
// the handshake to completion. Go's crypto/tls does its own internal
// record buffering, so -- unlike the original design's manual pump
// against decrypt_buffer/encrypt_writer -- there is nothing else to wire
// up here: every subsequent Read/Write through slot.conn is transparently
// plaintext on this side, ciphertext on the wire.
func (b *Backend) negotiateServerTLS(id ConnectionId, slot *connectionSlot, frontend Frontend) error {
	cfg := frontend.GetSSLConfig()
	tlsConn := tls.Server(slot.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	slot.conn = tlsConn
	slot.useTLS = true
	return nil
}

// negotiateClientTLS is the connector-side twin of negotiateServerTLS.
func (b *Backend) negotiateClientTLS(id ConnectionId, slot *connectionSlot, frontend Frontend, serverName string) error {
	cfg := frontend.GetSSLConfig()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = serverName
	}
	tlsConn := tls.Client(slot.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	slot.conn = tlsConn
	slot.useTLS = true
	return nil
}

// startRecvLoop launches the per-connection blocking-read goroutine that
// stands in for the original's async_read_some + I/O thread pool (spec.md
// §9's sanctioned "task-based, one cooperative task per connection per
// direction" equivalent design). socketReadDeadline bounds each Read so
// the goroutine notices a disconnect/shutdown without needing a
// context-aware net.Conn.
func (b *Backend) startRecvLoop(id ConnectionId, slot *connectionSlot) {
	buf := newRecvBuffer(b.packetPool)
	if buf == nil {
		b.setSocketDisconnected(id)
		return
	}
	slot.recvBuf = buf

	b.wg.Add(1)
	go b.recvLoop(id, slot)
}

func (b *Backend) recvLoop(id ConnectionId, slot *connectionSlot) {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		if slot.disconnectFlags.Load()&kCloseFlags != 0 {
			return
		}

		slot.conn.SetReadDeadline(time.Now().Add(socketReadDeadline))
		n, err := slot.conn.Read(slot.recvBuf.AvailableForWrite())
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			b.setSocketDisconnected(id)
			b.setDisconnectFlag(id, kRecvThread)
			return
		}

		if !slot.recvBuf.GotData(n) {
			b.setSocketDisconnected(id)
			b.setDisconnectFlag(id, kRecvThread)
			return
		}
		slot.packetsRecved.Add(1)
		if b.metrics != nil {
			b.metrics.BytesReceived(n)
		}

		b.processReceivedData(id, slot)
	}
}

// processReceivedData implements spec.md §4.7's TryProcessReceivedData:
// take the recv critical section, hand bytes to the frontend, retry
// briefly if the frontend couldn't make progress. Because exactly one
// goroutine ever reads for a given connection, the section is never truly
// contended here -- it's kept for fidelity and to protect against a
// frontend that reaches back into Backend from another goroutine.
func (b *Backend) processReceivedData(id ConnectionId, slot *connectionSlot) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !slot.recvCritical.CompareAndSwap(0, 1) {
			yieldSpin()
			continue
		}

		ok := slot.frontend.ProcessData(id, slot.frontendID)
		slot.recvCritical.Store(0)

		if ok {
			return
		}
		yieldSpin()
	}
}

func splitHostPort(addr net.Addr) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(port), nil
}

func portString(p uint16) string {
	return strconv.FormatUint(uint64(p), 10)
}
