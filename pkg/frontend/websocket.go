package frontend

import (
	"bufio"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/fluxorio/stormsocket/pkg/storm"
	"github.com/fluxorio/stormsocket/pkg/stormlog"
)

// websocketGUID is the fixed GUID RFC 6455 combines with the client's
// Sec-WebSocket-Key to compute Sec-WebSocket-Accept.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// MessageHandler processes one complete WebSocket text/binary frame and
// optionally returns a frame to send back.
type MessageHandler func(id storm.ConnectionId, messageType int, data []byte) (replyType int, reply []byte, ok bool)

// WebSocketFrontend frames a WebSocket server on top of the raw Frontend
// contract: it performs the HTTP/1.1 Upgrade handshake itself (there is no
// net/http server sitting in front of a pkg/storm connection, so the
// handshake that gorilla/websocket normally expects http.ResponseWriter to
// have already completed has to happen here), then hands frames to
// MessageHandler via gorilla/websocket.Conn running over a pipeAdapter fed
// by ProcessData.
//
// JWTSecret, when non-empty, gates the handshake: the client's first
// request must carry a bearer token in the Sec-WebSocket-Protocol header
// (the only header field a browser WebSocket client lets application code
// set before the handshake completes) and the token must verify against
// JWTSecret before the handshake's 101 response is sent.
type WebSocketFrontend struct {
	Backend   *storm.Backend
	Handle    MessageHandler
	JWTSecret []byte
	Logger    stormlog.Logger

	nextID atomic.Uint64

	mu    sync.Mutex
	conns map[storm.ConnectionId]*wsConnState
}

type wsConnState struct {
	pipe       *pipeAdapter
	conn       *websocket.Conn
	authorized bool
}

func NewWebSocketFrontend(backend *storm.Backend, handle MessageHandler, jwtSecret []byte) *WebSocketFrontend {
	return &WebSocketFrontend{
		Backend:   backend,
		Handle:    handle,
		JWTSecret: jwtSecret,
		Logger:    stormlog.NewDefaultLogger(),
		conns:     make(map[storm.ConnectionId]*wsConnState),
	}
}

func (f *WebSocketFrontend) AllocateFrontendId() (storm.FrontendId, bool) {
	return storm.FrontendId(f.nextID.Add(1)), true
}

func (f *WebSocketFrontend) FreeFrontendId(storm.FrontendId) {}

func (f *WebSocketFrontend) InitConnection(id storm.ConnectionId, fid storm.FrontendId, initData []byte) error {
	state := &wsConnState{}
	state.pipe = newPipeAdapter(func(b []byte) error {
		w := f.Backend.CreateWriter(false)
		defer w.Unref()
		w.Write(b)
		f.Backend.SendPacketToConnectionBlocking(w, id)
		return nil
	})

	f.mu.Lock()
	f.conns[id] = state
	f.mu.Unlock()

	go f.runHandshakeAndServe(id, state)
	return nil
}

func (f *WebSocketFrontend) AssociateConnectionId(storm.ConnectionId)    {}
func (f *WebSocketFrontend) DisassociateConnectionId(storm.ConnectionId) {}

func (f *WebSocketFrontend) QueueConnectEvent(storm.ConnectionId, storm.FrontendId, string, uint16) {}
func (f *WebSocketFrontend) QueueDisconnectEvent(id storm.ConnectionId, fid storm.FrontendId) {
	f.mu.Lock()
	state, ok := f.conns[id]
	f.mu.Unlock()
	if ok {
		state.pipe.Close()
	}
}

// ConnectionEstablishComplete is a no-op here: for this frontend,
// "established" in the Frontend sense (TCP/TLS ready) happens before the
// WebSocket upgrade handshake even starts, so the meaningful readiness
// signal is runHandshakeAndServe completing, not this callback.
func (f *WebSocketFrontend) ConnectionEstablishComplete(storm.ConnectionId, storm.FrontendId) {}

func (f *WebSocketFrontend) UseSSL(storm.ConnectionId, storm.FrontendId) bool { return false }
func (f *WebSocketFrontend) GetSSLConfig() *tls.Config                       { return nil }
func (f *WebSocketFrontend) SendClosePacket(storm.ConnectionId, storm.FrontendId) {}

func (f *WebSocketFrontend) CleanupConnection(id storm.ConnectionId, fid storm.FrontendId) {
	f.mu.Lock()
	state, ok := f.conns[id]
	delete(f.conns, id)
	f.mu.Unlock()
	if ok {
		state.pipe.Close()
	}
}

// ProcessData feeds newly arrived bytes into the connection's pipe; the
// handshake/frame-reading goroutine started in InitConnection does the
// actual parsing off this call's critical section.
func (f *WebSocketFrontend) ProcessData(id storm.ConnectionId, fid storm.FrontendId) bool {
	data := f.Backend.PeekParserData(id)
	if len(data) == 0 {
		return true
	}
	f.mu.Lock()
	state, ok := f.conns[id]
	f.mu.Unlock()
	if !ok {
		f.Backend.DiscardParserData(id, len(data))
		return true
	}
	state.pipe.Feed(data)
	f.Backend.DiscardParserData(id, len(data))
	return true
}

// runHandshakeAndServe performs the HTTP/1.1 Upgrade handshake over the
// pipe, then loops reading frames and dispatching them to Handle.
func (f *WebSocketFrontend) runHandshakeAndServe(id storm.ConnectionId, state *wsConnState) {
	reader := bufio.NewReader(state.pipe)
	key, protocolHeader, err := readUpgradeRequest(reader)
	if err != nil {
		f.Logger.Warnf("frontend: websocket handshake read failed for %s: %v", id, err)
		f.Backend.ForceDisconnect(id)
		return
	}

	if len(f.JWTSecret) > 0 {
		if err := f.verifyBearerToken(protocolHeader); err != nil {
			f.Logger.Warnf("frontend: websocket auth failed for %s: %v", id, err)
			state.pipe.Write([]byte("HTTP/1.1 401 Unauthorized\r\nConnection: close\r\n\r\n"))
			f.Backend.ForceDisconnect(id)
			return
		}
	}
	state.authorized = true

	accept := computeAcceptKey(key)
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := state.pipe.Write([]byte(response)); err != nil {
		return
	}

	wsConn := websocket.NewConn(state.pipe, true, 4096, 4096)
	state.conn = wsConn

	for {
		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			f.Backend.ForceDisconnect(id)
			return
		}
		if f.Handle == nil {
			continue
		}
		replyType, reply, ok := f.Handle(id, msgType, data)
		if !ok || reply == nil {
			continue
		}
		if err := wsConn.WriteMessage(replyType, reply); err != nil {
			f.Backend.ForceDisconnect(id)
			return
		}
	}
}

func (f *WebSocketFrontend) verifyBearerToken(protocolHeader string) error {
	token := strings.TrimSpace(protocolHeader)
	if token == "" {
		return fmt.Errorf("missing Sec-WebSocket-Protocol bearer token")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return f.JWTSecret, nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("invalid bearer token: %w", err)
	}
	return nil
}

// readUpgradeRequest reads a minimal HTTP/1.1 Upgrade request line and
// headers, returning the Sec-WebSocket-Key and Sec-WebSocket-Protocol
// values. It does not validate the request method/path/version beyond
// what's needed to locate the headers this handshake cares about.
func readUpgradeRequest(r *bufio.Reader) (key, protocol string, err error) {
	// Request line.
	if _, err = r.ReadString('\n'); err != nil {
		return "", "", err
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		switch strings.ToLower(name) {
		case "sec-websocket-key":
			key = value
		case "sec-websocket-protocol":
			protocol = value
		}
	}
	if key == "" {
		return "", "", fmt.Errorf("missing Sec-WebSocket-Key")
	}
	return key, protocol, nil
}

func computeAcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
