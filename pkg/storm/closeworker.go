package storm

import "time"

// enqueueClose schedules id for the close worker to physically close its
// socket. If the close queue is full the caller closes inline instead,
// best-effort, per spec.md §4.12.
func (b *Backend) enqueueClose(id ConnectionId) {
	if b.closeQueue.Enqueue(id, 0) {
		select {
		case b.closeSem <- struct{}{}:
		default:
		}
		return
	}
	b.closeInline(id)
}

func (b *Backend) closeInline(id ConnectionId) {
	slot := b.slots.lookup(id)
	if slot == nil {
		return
	}
	if slot.conn != nil {
		slot.conn.Close()
	}
	b.setSocketDisconnected(id)
	b.setDisconnectFlagOnSlot(id, slot, kThreadClose)
}

func (b *Backend) closeWorkerLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.closeSem:
		case <-time.After(sendSemaphoreTimeout):
		}

		for {
			var id ConnectionId
			if !b.closeQueue.TryDequeue(&id, 0) {
				break
			}
			b.closeInline(id)
		}

		select {
		case <-b.stopCh:
			return
		default:
		}
	}
}
