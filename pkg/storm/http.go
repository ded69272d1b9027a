package storm

// SendHttpRequest enqueues a header writer immediately followed by a body
// writer for id, reserving both packet slots up front so the pair can
// never be split by a concurrent sender exhausting the reservation
// between the two enqueues. Per spec.md §4.3, this is what keeps an
// HTTP(-shaped) header and body adjacent on the wire: both land on the
// output queue before either's send worker signal is dispatched.
func (b *Backend) SendHttpRequest(headerWriter, bodyWriter *Writer, id ConnectionId) bool {
	return b.sendPair(headerWriter, bodyWriter, id)
}

// SendHttpResponse is the response-side twin of SendHttpRequest.
func (b *Backend) SendHttpResponse(headerWriter, bodyWriter *Writer, id ConnectionId) bool {
	return b.sendPair(headerWriter, bodyWriter, id)
}

func (b *Backend) sendPair(headerWriter, bodyWriter *Writer, id ConnectionId) bool {
	slot := b.slots.lookup(id)
	if slot == nil {
		return false
	}

	maxPackets := int32(b.settings.MaxPendingFreeingPacketsPerConnection * 2)
	if !reserveOne(&slot.pendingPackets, maxPackets) {
		return false
	}
	if !reserveOne(&slot.pendingPackets, maxPackets) {
		slot.pendingPackets.Add(-1)
		return false
	}

	headerWriter.Ref()
	if !slot.outputQueue.Enqueue(headerWriter, uint32(id.Generation)) {
		slot.pendingPackets.Add(-2)
		headerWriter.Unref()
		return false
	}

	bodyWriter.Ref()
	if !slot.outputQueue.Enqueue(bodyWriter, uint32(id.Generation)) {
		slot.pendingPackets.Add(-1)
		bodyWriter.Unref()
		// Header already landed on the queue; let it send on its own
		// rather than trying to retract it.
		b.signalSendWorker(id, sendOp{kind: sendOpSendPacket})
		return false
	}

	b.signalSendWorker(id, sendOp{kind: sendOpSendPacket})
	b.signalSendWorker(id, sendOp{kind: sendOpSendPacket})
	return true
}
