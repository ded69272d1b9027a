package storm

import "crypto/tls"

// Frontend is the upper-layer protocol collaborator the backend drives.
// One implementation exists per protocol (HTTP server, HTTP client,
// WebSocket, raw echo, ...); see pkg/frontend for reference
// implementations. The backend never assumes anything about the bytes a
// Frontend parses -- it only calls these methods at well-defined points in
// a connection's lifecycle.
//
// ProcessData runs with the connection's receive critical section held
// (an atomic flag, not a lock): implementations must not block. Calls back
// into the Backend for the same connection (PeekParserData,
// DiscardParserData, CreateWriter, SendPacketToConnection) are allowed from
// within ProcessData; the reference frontends make them.
type Frontend interface {
	// AllocateFrontendId reserves an opaque per-connection token. Returning
	// ok=false aborts connection allocation (treated like slot exhaustion).
	AllocateFrontendId() (id FrontendId, ok bool)

	// FreeFrontendId releases a token allocated by AllocateFrontendId. Called
	// exactly once, during final cleanup.
	FreeFrontendId(id FrontendId)

	// InitConnection lets the frontend set up its own per-connection state.
	// initData is the caller-supplied payload passed to RequestConnect, or
	// nil for accepted connections.
	InitConnection(conn ConnectionId, fid FrontendId, initData []byte) error

	// AssociateConnectionId/DisassociateConnectionId register or unregister
	// conn for external lookup (e.g. a frontend-side map from its own
	// session key to a ConnectionId).
	AssociateConnectionId(conn ConnectionId)
	DisassociateConnectionId(conn ConnectionId)

	// QueueConnectEvent posts a connect notification; for accepted
	// connections this fires immediately on allocation, for outbound
	// connections after the socket connects and, when UseSSL is true, after
	// the client TLS handshake.
	QueueConnectEvent(conn ConnectionId, fid FrontendId, remoteIP string, remotePort uint16)

	// QueueDisconnectEvent posts a disconnect notification. Fires once,
	// from SetSocketDisconnected.
	QueueDisconnectEvent(conn ConnectionId, fid FrontendId)

	// ConnectionEstablishComplete fires once a connection is ready to
	// exchange application data: immediately for plaintext, after a
	// successful TLS handshake otherwise.
	ConnectionEstablishComplete(conn ConnectionId, fid FrontendId)

	// ProcessData is invoked under the connection's receive critical
	// section whenever new bytes are available. It should consume bytes by
	// calling Backend.DiscardReaderData / Backend.DiscardParserData.
	// Returning false means "more bytes were consumed but I couldn't queue
	// a reply" and is not treated as an error: the backend calls
	// ProcessData again, up to three attempts in all, yielding between
	// them. If every attempt returns false, the next call comes only when
	// more bytes arrive on the connection.
	ProcessData(conn ConnectionId, fid FrontendId) bool

	// UseSSL decides whether this connection negotiates TLS.
	UseSSL(conn ConnectionId, fid FrontendId) bool

	// GetSSLConfig supplies the TLS configuration when UseSSL returns true.
	GetSSLConfig() *tls.Config

	// SendClosePacket lets the frontend enqueue a protocol-level close
	// message before the socket actually closes. Called once, when
	// kLocalClose is first set.
	SendClosePacket(conn ConnectionId, fid FrontendId)

	// CleanupConnection releases any frontend-side per-connection state.
	// Called exactly once, during final cleanup, before the slot generation
	// advances.
	CleanupConnection(conn ConnectionId, fid FrontendId)
}
