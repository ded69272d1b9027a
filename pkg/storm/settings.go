package storm

import "time"

// Settings configures a Backend. Every field has a spec-mandated meaning;
// see SPEC_FULL.md's AMBIENT STACK / Configuration section for how these
// are loaded from YAML/JSON via pkg/stormconfig.
type Settings struct {
	// HeapSize sizes each of the two block pools (packet memory and writer
	// descriptors): HeapSize / BlockSize blocks, raised to MaxConnections
	// if smaller, are allocated up front for each.
	HeapSize int
	// BlockSize is the fixed size, in bytes, of every block.
	BlockSize int
	// MaxConnections is the fixed capacity of the connection slot table.
	MaxConnections int

	// MaxPendingOutgoingPacketsPerConnection bounds each connection's
	// output queue.
	MaxPendingOutgoingPacketsPerConnection int
	// MaxPendingFreeingPacketsPerConnection bounds pending_packets
	// reservations (spec.md: capacity is 2x this value).
	MaxPendingFreeingPacketsPerConnection int
	// MaxSendQueueElements bounds each send worker's op queue.
	MaxSendQueueElements int

	NumSendThreads int
	NumIOThreads   int

	// CloseQueueSize bounds the close worker's job queue; not named in spec.md's table but needed for a concrete
	// Go realization of "the close thread's queue".
	CloseQueueSize int

	// RecvBufferBlocks is loaded from configuration and kept in Settings,
	// but the recv buffer does not consult it: a connection's recv chain
	// has no per-connection block cap (spec.md leaves this unbounded at the
	// backend layer and relies on the frontend consuming bytes).
	RecvBufferBlocks int

	// SynchronousAudit makes cleanup wait for the audit sink's
	// RecordDisconnect call before advancing the slot generation, trading
	// cleanup latency for a durability guarantee on the disconnect
	// record. Ambient addition, not present in spec.md.
	SynchronousAudit bool
	// AuditTimeout is loaded from configuration and kept in Settings; the
	// backend does not apply it, so a synchronous RecordDisconnect call
	// runs for as long as the sink takes.
	AuditTimeout time.Duration
}

// DefaultSettings returns sane defaults, useful as a starting point before
// overriding the fields a caller cares about.
func DefaultSettings() Settings {
	return Settings{
		HeapSize:                                64 * 1024 * 1024,
		BlockSize:                                4096,
		MaxConnections:                           4096,
		MaxPendingOutgoingPacketsPerConnection:    256,
		MaxPendingFreeingPacketsPerConnection:     128,
		MaxSendQueueElements:                      1024,
		NumSendThreads:                            4,
		NumIOThreads:                              4,
		CloseQueueSize:                            256,
		RecvBufferBlocks:                          64,
		SynchronousAudit:                          false,
		AuditTimeout:                              2 * time.Second,
	}
}

// socketReadDeadline bounds each blocking recv-loop Read call so the
// recv goroutine can observe shutdown in bounded time even though
// net.Conn.Read has no context parameter.
const socketReadDeadline = 200 * time.Millisecond

// sendSemaphoreTimeout mirrors spec.md's "waits on semaphore (100ms
// timeout)" send-worker behavior.
const sendSemaphoreTimeout = 100 * time.Millisecond
