// Package storm implements the connection backend: a fixed-capacity slot
// table, block-allocator-backed buffers and writers, a reactor driving
// per-connection recv goroutines, and a send/close worker pool. See
// SPEC_FULL.md for the full component breakdown; pkg/storm never imports
// pkg/frontend or any other upper-layer collaborator -- the Frontend
// interface in frontend.go is the only coupling in either direction.
package storm

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/stormsocket/internal/block"
	"github.com/fluxorio/stormsocket/internal/concurrency"
	"github.com/fluxorio/stormsocket/internal/ring"
	"github.com/fluxorio/stormsocket/pkg/stormlog"
)

// Metrics receives connection-lifecycle counters. A nil Metrics is
// treated as the no-op implementation -- callers that don't care about
// observability don't have to construct one. pkg/observability supplies a
// Prometheus-backed implementation.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	BytesSent(n int)
	BytesReceived(n int)
}

// EventRelay republishes connection lifecycle events to an external bus.
// A nil EventRelay is never consulted. pkg/eventrelay supplies a
// NATS-backed implementation.
type EventRelay interface {
	Connected(id ConnectionId, fid FrontendId, remoteIP string, remotePort uint16)
	Disconnected(id ConnectionId, fid FrontendId)
}

// AuditSink durably records connection lifecycle events. A nil AuditSink
// is never consulted. pkg/audit supplies Postgres and SQLite backends.
type AuditSink interface {
	RecordDisconnect(id ConnectionId, fid FrontendId) error
}

// AcceptorId names one listening acceptor registered with InitAcceptor.
type AcceptorId uint32

// InvalidAcceptorId is returned by InitAcceptor on failure.
const InvalidAcceptorId AcceptorId = 0

type acceptorState struct {
	id       AcceptorId
	listener net.Listener
	frontend Frontend
}

// Backend is the façade spec.md §4.3 describes: the entry point callers
// construct once per listening process.
type Backend struct {
	settings   Settings
	packetPool *block.Pool
	writerPool *block.Pool
	slots      *slotTable

	logger     stormlog.Logger
	metrics    Metrics
	auditSink  AuditSink
	eventRelay EventRelay

	sendQueues []*ring.Ring[sendOp]
	sendSem    []chan struct{}

	closeQueue *ring.Ring[ConnectionId]
	closeSem   chan struct{}

	// bgTasks bounds off-thread work that isn't on the hot send/recv
	// path and doesn't need its own dedicated goroutine: outbound connect
	// attempts and, when SynchronousAudit is false, audit sink writes.
	// Submission failure (queue full) runs an audit write inline and
	// starts a connect attempt on its own goroutine, so neither is dropped.
	bgTasks concurrency.Executor

	acceptorsMu    sync.Mutex
	acceptors      map[AcceptorId]*acceptorState
	nextAcceptorID atomic.Uint32

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// BackendOption configures optional ambient collaborators on New.
type BackendOption func(*Backend)

func WithLogger(l stormlog.Logger) BackendOption   { return func(b *Backend) { b.logger = l } }
func WithMetrics(m Metrics) BackendOption          { return func(b *Backend) { b.metrics = m } }
func WithAuditSink(a AuditSink) BackendOption      { return func(b *Backend) { b.auditSink = a } }
func WithEventRelay(r EventRelay) BackendOption    { return func(b *Backend) { b.eventRelay = r } }

// New allocates the slot table, per-connection queues, send workers, and
// the close worker, per spec.md §4.3's `new(settings)`.
func New(settings Settings, opts ...BackendOption) *Backend {
	blockCount := settings.HeapSize / settings.BlockSize
	if blockCount < settings.MaxConnections {
		blockCount = settings.MaxConnections
	}

	b := &Backend{
		settings:   settings,
		packetPool: block.NewPool(settings.BlockSize, blockCount, block.TagPacket),
		writerPool: block.NewPool(settings.BlockSize, blockCount, block.TagWriterDescriptor),
		slots:      newSlotTable(settings),
		logger:     stormlog.NewDefaultLogger(),
		acceptors:  make(map[AcceptorId]*acceptorState),
		stopCh:     make(chan struct{}),
		closeQueue: ring.New[ConnectionId](settings.CloseQueueSize, 0),
		closeSem:   make(chan struct{}, 1),
	}
	b.bgTasks = concurrency.NewExecutor(context.Background(), concurrency.ExecutorConfig{
		Workers:   settings.NumIOThreads,
		QueueSize: settings.MaxConnections,
	})

	for _, opt := range opts {
		opt(b)
	}

	b.sendQueues = make([]*ring.Ring[sendOp], settings.NumSendThreads)
	b.sendSem = make([]chan struct{}, settings.NumSendThreads)
	for i := 0; i < settings.NumSendThreads; i++ {
		b.sendQueues[i] = ring.New[sendOp](settings.MaxSendQueueElements, 0)
		b.sendSem[i] = make(chan struct{}, 1)
	}

	for i := 0; i < settings.NumSendThreads; i++ {
		b.wg.Add(1)
		go b.sendWorkerLoop(i)
	}
	b.wg.Add(1)
	go b.closeWorkerLoop()

	return b
}

// Close requests stop, joins every acceptor/send/close worker, then reaps
// any slots still marked used (spec.md §4.3 `drop()`).
func (b *Backend) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.acceptorsMu.Lock()
	for _, a := range b.acceptors {
		a.listener.Close()
	}
	b.acceptorsMu.Unlock()

	close(b.stopCh)
	b.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	b.bgTasks.Shutdown(shutdownCtx)
	cancel()

	for i := range b.slots.slots {
		s := &b.slots.slots[i]
		if s.used.Load() {
			if s.conn != nil {
				s.conn.Close()
			}
			id := ConnectionId{Slot: uint32(i), Generation: s.generation()}
			b.checkDisconnectFlags(id, s)
		}
	}
}

// AcceptorAddr returns the address an acceptor is actually listening on
// (useful after InitAcceptor was called with a ":0" port, to discover the
// port the OS assigned).
func (b *Backend) AcceptorAddr(id AcceptorId) (net.Addr, error) {
	b.acceptorsMu.Lock()
	defer b.acceptorsMu.Unlock()
	state, ok := b.acceptors[id]
	if !ok {
		return nil, ErrAcceptorNotFound
	}
	return state.listener.Addr(), nil
}

// ConnectionIdValid reports whether id still names a live connection.
func (b *Backend) ConnectionIdValid(id ConnectionId) bool {
	return b.slots.lookup(id) != nil
}

// CreateWriter allocates a zero-length writer from the backend's
// writer-descriptor pool. The send worker resolves a writer's block
// handles back through that same pool (Writer.Pool), never through
// packetPool -- a Handle only means anything within the pool that issued
// it (internal/block.Pool keeps a separate arena and link array per pool).
func (b *Backend) CreateWriter(isEncrypted bool) *Writer {
	return NewWriter(b.writerPool, isEncrypted)
}

// SendPacketToConnection enqueues writer onto id's output queue and wakes
// its send worker. Non-blocking: fails if the writer is empty, id is
// stale, the output queue is full, or the pending-packet reservation is
// refused.
func (b *Backend) SendPacketToConnection(writer *Writer, id ConnectionId) bool {
	if writer.TotalLength() == 0 {
		return false
	}
	slot := b.slots.lookup(id)
	if slot == nil {
		return false
	}

	maxPackets := int32(b.settings.MaxPendingFreeingPacketsPerConnection * 2)
	if !reserveOne(&slot.pendingPackets, maxPackets) {
		return false
	}

	writer.Ref()
	if !slot.outputQueue.Enqueue(writer, uint32(id.Generation)) {
		slot.pendingPackets.Add(-1)
		writer.Unref()
		return false
	}

	b.signalSendWorker(id, sendOp{kind: sendOpSendPacket})
	return true
}

// SendPacketToConnectionBlocking yield-spins until the send succeeds or
// becomes impossible (stale generation, or a close already underway).
// kConnectFinished is set on every established connection the instant it
// becomes sendable, so checking the whole disconnectFlags mask here would
// make this return immediately on every live connection; only a genuine
// close (kCloseFlags or kSocket) is grounds to give up.
func (b *Backend) SendPacketToConnectionBlocking(writer *Writer, id ConnectionId) {
	for {
		slot := b.slots.lookup(id)
		if slot == nil {
			return
		}
		if slot.disconnectFlags.Load()&(kCloseFlags|kSocket) != 0 {
			return
		}
		if b.SendPacketToConnection(writer, id) {
			return
		}
		yieldSpin()
	}
}

// reserveOne does an atomic CAS-loop increment of counter, refusing once
// it would exceed max. Mirrors spec.md §5's "atomic CAS loop on increment"
// rule for pending_packets.
func reserveOne(counter *atomic.Int32, max int32) bool {
	for {
		old := counter.Load()
		if old >= max {
			return false
		}
		if counter.CompareAndSwap(old, old+1) {
			return true
		}
	}
}

// FinalizeConnection sets kMainThread: the caller will no longer touch id.
func (b *Backend) FinalizeConnection(id ConnectionId) {
	b.setDisconnectFlag(id, kMainThread)
}

// ForceDisconnect sets kLocalClose, beginning an orderly local close.
func (b *Backend) ForceDisconnect(id ConnectionId) {
	b.setDisconnectFlag(id, kLocalClose)
}

// PeekParserData returns the contiguous unparsed bytes currently
// available for id, without consuming them. A frontend's ProcessData
// reads through this and then calls DiscardParserData for what it
// consumed; if PeekParserData returns fewer bytes than a full message
// needs, ProcessData should return true (nothing more to do yet) and
// wait for the next delivery rather than blocking for more.
func (b *Backend) PeekParserData(id ConnectionId) []byte {
	slot := b.slots.lookup(id)
	if slot == nil || slot.recvBuf == nil {
		return nil
	}
	return slot.recvBuf.Peek()
}

// DiscardParserData advances the frontend's parse cursor by n bytes.
// Underflow (n exceeding what's unparsed) is a programmer error.
func (b *Backend) DiscardParserData(id ConnectionId, n int) {
	slot := b.slots.lookup(id)
	if slot == nil || slot.recvBuf == nil {
		return
	}
	if n > slot.recvBuf.UnparsedLength() {
		panic("storm: DiscardParserData underflow")
	}
	slot.recvBuf.Discard(n)
}

// DiscardReaderData is the reader-side twin of DiscardParserData. In this
// implementation reader and parser share one recv buffer (see
// recvbuffer.go), so it is an alias; kept distinct to mirror spec.md's
// two-cursor API for frontends migrating from the original design.
func (b *Backend) DiscardReaderData(id ConnectionId, n int) {
	b.DiscardParserData(id, n)
}

func (b *Backend) recordDisconnectAudit(id ConnectionId, slot *connectionSlot) {
	if b.auditSink == nil {
		return
	}
	record := func() {
		if err := b.auditSink.RecordDisconnect(id, slot.frontendID); err != nil {
			b.logger.Warnf("storm: audit sink RecordDisconnect failed for %s: %v", id, err)
			return
		}
		slot.audited.Store(true)
	}
	if b.settings.SynchronousAudit {
		record()
		return
	}
	task := concurrency.TaskFunc(func(context.Context) error {
		record()
		return nil
	})
	if err := b.bgTasks.Submit(task); err != nil {
		record()
	}
}
