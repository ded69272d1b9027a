package storm

import (
	"net"
	"runtime"
	"time"

	"github.com/fluxorio/stormsocket/internal/block"
)

// kBufferSetCount bounds how many scatter segments one vectored send
// assembles before issuing the write, per spec.md §4.10.
const kBufferSetCount = 4

type sendOpKind uint8

const (
	sendOpFreePacket sendOpKind = iota
	sendOpClearQueue
	sendOpClose
	sendOpSendPacket
)

// sendOp is one unit of work on a send thread's queue: spec.md §4.10's
// `{connection_id, type, size}`.
type sendOp struct {
	id   ConnectionId
	kind sendOpKind
	size int
}

// signalSendWorker enqueues op on the send thread owning id's partition
// (id.Slot % NumSendThreads, so a given connection is always serialized
// through the same worker) and wakes it. Enqueue spins rather than
// blocking: the shared per-thread queue has no generation of its own
// (ops for any connection on that partition interleave), so it is sized
// generously and spinning here should be rare and brief.
func (b *Backend) signalSendWorker(id ConnectionId, op sendOp) {
	op.id = id
	t := int(id.Slot) % len(b.sendQueues)
	for !b.sendQueues[t].Enqueue(op, 0) {
		runtime.Gosched()
	}
	select {
	case b.sendSem[t] <- struct{}{}:
	default:
	}
}

func (b *Backend) sendWorkerLoop(t int) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.sendSem[t]:
		case <-time.After(sendSemaphoreTimeout):
		}

		for {
			var op sendOp
			if !b.sendQueues[t].TryDequeue(&op, 0) {
				break
			}
			b.handleSendOp(op)
		}

		select {
		case <-b.stopCh:
			return
		default:
		}
	}
}

func (b *Backend) handleSendOp(op sendOp) {
	slot := b.slots.lookup(op.id)
	if slot == nil {
		return
	}

	switch op.kind {
	case sendOpFreePacket:
		b.handleFreePacket(op.id, slot, op.size)
	case sendOpClearQueue:
		b.releaseSendQueue(op.id, slot)
		b.setDisconnectFlagOnSlot(op.id, slot, kSendThread)
		b.enqueueClose(op.id)
	case sendOpClose:
		b.enqueueClose(op.id)
	case sendOpSendPacket:
		b.handleSendPacket(op.id, slot)
	}
}

// handleFreePacket matches freshly-acknowledged bytes against writers
// sitting at the head of the free queue, freeing every one whose full
// length is now covered and releasing its packet-slot reservation.
func (b *Backend) handleFreePacket(id ConnectionId, slot *connectionSlot, size int) {
	slot.pendingFreeData += size

	for {
		var w *Writer
		if !slot.freeQueue.PeekTop(&w, uint32(id.Generation), 0) {
			break
		}
		if w == nil || w.TotalLength() > slot.pendingFreeData {
			break
		}

		slot.freeQueue.TryDequeue(&w, uint32(id.Generation))
		slot.pendingFreeData -= w.TotalLength()
		slot.pendingPackets.Add(-1)
		w.Unref()
	}
}

// enqueueFree moves a fully-sent writer from the output queue onto the
// free queue, where handleFreePacket will release it once the kernel
// confirms the bytes were transferred. If the free queue is unexpectedly
// full, the writer is released immediately instead of retried forever --
// pending_packets accounting is sized so this should not happen in
// practice.
func (b *Backend) enqueueFree(id ConnectionId, slot *connectionSlot, w *Writer) {
	if slot.freeQueue.Enqueue(w, uint32(id.Generation)) {
		return
	}
	slot.pendingPackets.Add(-1)
	w.Unref()
}

// handleSendPacket implements spec.md §4.10's `SendPacket` case: peek up
// to kBufferSetCount scatter segments across one or more queued writers,
// issue one vectored write, and requeue a continuation if a writer was
// only partially consumed.
//
// TLS framing needs no special case here: slot.conn is either a raw
// net.Conn or a *tls.Conn wrapping one, and Write on either transparently
// produces the right bytes on the wire, so the same segment-building loop
// serves both. See DESIGN.md for why this replaces the original's
// separate EncryptWriter/ReplaceTop step.
func (b *Backend) handleSendPacket(id ConnectionId, slot *connectionSlot) {
	var segments [][]byte
	peeked := 0
	lastFullyConsumed := true

	for len(segments) < kBufferSetCount {
		var w *Writer
		if !slot.outputQueue.PeekTop(&w, uint32(id.Generation), peeked) || w == nil {
			break
		}

		// Every block handle in w's chain was allocated from w.Pool(), not
		// necessarily the same pool backing a different writer in the
		// queue -- always resolve through the writer that owns the chain.
		pool := w.Pool()
		blockSize := pool.GetBlockSize()

		if slot.pendingSendBlock == block.InvalidHandle {
			slot.pendingSendBlock = w.StartBlock()
			slot.pendingRemaining = w.TotalLength()
			slot.pendingHeaderOffset = w.SendOffset()
		}

		for slot.pendingRemaining > 0 && len(segments) < kBufferSetCount && slot.pendingSendBlock != block.InvalidHandle {
			reserved := w.ReservedHeaderLength() + w.ReservedTrailerLength()
			potential := blockSize - slot.pendingHeaderOffset - reserved
			setLen := slot.pendingRemaining
			if setLen > potential {
				setLen = potential
			}

			// Header/trailer bytes were only ever written into the
			// writer's first/last block (SetHeader/SetTrailer); every
			// block reserves the space, but only those two blocks hold
			// real bytes there. Including headerLength/trailerLength on
			// every block would send (block_count-1) extra copies worth
			// of uninitialized reserved-region bytes for a multi-block
			// writer.
			headerLen := 0
			if slot.pendingSendBlock == w.StartBlock() {
				headerLen = w.HeaderLength()
			}
			trailerLen := 0
			if setLen == slot.pendingRemaining {
				trailerLen = w.TrailerLength()
			}

			dataStart := w.ReservedHeaderLength() - headerLen + slot.pendingHeaderOffset
			dataLength := headerLen + setLen + trailerLen

			mem := pool.ResolveHandle(slot.pendingSendBlock)
			segments = append(segments, mem[dataStart:dataStart+dataLength])

			slot.pendingSendBlock = pool.GetNextBlock(slot.pendingSendBlock)
			slot.pendingHeaderOffset = 0
			slot.pendingRemaining -= setLen
		}

		consumedThisWriter := slot.pendingRemaining == 0
		if consumedThisWriter {
			slot.pendingSendBlock = block.InvalidHandle
		}

		lastFullyConsumed = consumedThisWriter
		peeked++

		if !consumedThisWriter {
			break
		}
	}

	if peeked == 0 {
		return
	}

	advanceCount := peeked
	if !lastFullyConsumed {
		advanceCount = peeked - 1
	}
	for i := 0; i < advanceCount; i++ {
		var w *Writer
		if slot.outputQueue.TryDequeue(&w, uint32(id.Generation)) && w != nil {
			b.enqueueFree(id, slot, w)
		}
	}

	if len(segments) == 0 {
		return
	}

	n, err := (net.Buffers(segments)).WriteTo(slot.conn)
	if err != nil {
		b.setSocketDisconnected(id)
		return
	}
	if b.metrics != nil {
		b.metrics.BytesSent(int(n))
	}

	if !lastFullyConsumed {
		b.signalSendWorker(id, sendOp{kind: sendOpSendPacket})
	}
	if n > 0 {
		b.signalSendWorker(id, sendOp{kind: sendOpFreePacket, size: int(n)})
	}
}
