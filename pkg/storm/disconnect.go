package storm

import "runtime"

// Disconnect flag bits, per spec.md §4.8. Bits are monotonic within a
// generation: SetDisconnectFlag only ever adds bits, never clears them.
const (
	kLocalClose uint32 = 1 << iota
	kRemoteClose
	kSocket
	kSendThread
	kRecvThread
	kThreadClose
	kSignalClose
	kConnectFinished
	kMainThread
)

// kCloseFlags marks a locally- or remotely-initiated close request.
const kCloseFlags = kLocalClose | kRemoteClose

// kAllFlags is the mask that triggers final cleanup once reached. Note
// kSignalClose is deliberately absent: it's a one-shot trigger consumed by
// the close worker, not part of the terminal state.
const kAllFlags = kSocket | kLocalClose | kRemoteClose | kSendThread | kRecvThread | kThreadClose | kConnectFinished | kMainThread

// setDisconnectFlag CASes flag into the slot's disconnect_flags. Stale ids
// (generation mismatch) are silently ignored -- the caller already lost
// the race with cleanup. Returns without effect if flag was already set.
func (b *Backend) setDisconnectFlag(id ConnectionId, flag uint32) {
	slot := b.slots.lookup(id)
	if slot == nil {
		return
	}
	b.setDisconnectFlagOnSlot(id, slot, flag)
}

func (b *Backend) setDisconnectFlagOnSlot(id ConnectionId, slot *connectionSlot, flag uint32) {
	for {
		old := slot.disconnectFlags.Load()
		newVal := old | flag
		if newVal == old {
			return // already set; flags are monotonic
		}
		if !slot.disconnectFlags.CompareAndSwap(old, newVal) {
			runtime.Gosched()
			continue
		}

		if newVal == kAllFlags {
			b.checkDisconnectFlags(id, slot)
			return
		}

		switch {
		case flag == kLocalClose:
			if slot.frontend != nil {
				slot.frontend.SendClosePacket(id, slot.frontendID)
			}
		case flag&kCloseFlags != 0 && newVal&kSocket == 0 && newVal&kCloseFlags == kCloseFlags:
			b.signalSendWorker(id, sendOp{kind: sendOpClose})
		case flag == kSignalClose:
			slot.failedConnection = true
			b.enqueueClose(id)
		}
		return
	}
}

// setSocketDisconnected ORs in kSocket|kLocalClose|kRemoteClose as a
// single transition, per spec.md §4.8. On a genuine transition it signals
// the send worker to clear the connection's queues and notifies the
// frontend of the disconnect, exactly once.
func (b *Backend) setSocketDisconnected(id ConnectionId) {
	slot := b.slots.lookup(id)
	if slot == nil {
		return
	}

	const bits = kSocket | kLocalClose | kRemoteClose
	for {
		old := slot.disconnectFlags.Load()
		newVal := old | bits
		if newVal == old {
			return
		}
		if !slot.disconnectFlags.CompareAndSwap(old, newVal) {
			runtime.Gosched()
			continue
		}

		b.signalSendWorker(id, sendOp{kind: sendOpClearQueue})
		if slot.frontend != nil {
			slot.frontend.QueueDisconnectEvent(id, slot.frontendID)
		}
		if b.eventRelay != nil {
			b.eventRelay.Disconnected(id, slot.frontendID)
		}

		if newVal == kAllFlags {
			b.checkDisconnectFlags(id, slot)
		}
		return
	}
}

// checkDisconnectFlags runs cleanup exactly once, on the goroutine whose
// CAS first brought disconnect_flags to kAllFlags (spec.md §4.9).
func (b *Backend) checkDisconnectFlags(id ConnectionId, slot *connectionSlot) {
	// Step 1 (TLS encrypt-writer teardown) does not apply: crypto/tls owns
	// its own write buffering internally, so there is no separate
	// encrypt-writer descriptor to free here -- see DESIGN.md.

	// Step 2: drain and free pending output under a fresh generation.
	b.releaseSendQueue(id, slot)

	// Step 3: frontend-side teardown.
	if slot.frontend != nil {
		slot.frontend.CleanupConnection(id, slot.frontendID)
		slot.frontend.FreeFrontendId(slot.frontendID)
		slot.frontend.DisassociateConnectionId(id)
	}

	// Step 4: free recv buffer chains.
	if slot.recvBuf != nil {
		slot.recvBuf.Close()
		slot.recvBuf = nil
	}

	// Ambient: durable disconnect record, optionally awaited.
	b.recordDisconnectAudit(id, slot)

	if b.metrics != nil {
		b.metrics.ConnectionClosed()
	}

	// Steps 5-6: advance generation, then clear used.
	b.slots.free(id)
}

// releaseSendQueue implements spec.md §4.11: lock both of the
// connection's queues at gen+1, drain and free every writer still
// sitting in them, then reset them empty under the new generation.
func (b *Backend) releaseSendQueue(id ConnectionId, slot *connectionSlot) {
	newGen := uint32(id.Generation) + 1

	slot.outputQueue.Lock(newGen)
	var w *Writer
	for slot.outputQueue.TryDequeue(&w, newGen) {
		if w != nil {
			w.Unref()
		}
	}
	slot.outputQueue.Reset(newGen)

	slot.freeQueue.Lock(newGen)
	for slot.freeQueue.TryDequeue(&w, newGen) {
		if w != nil {
			w.Unref()
		}
	}
	slot.freeQueue.Reset(newGen)
}
