package storm

import (
	"sync/atomic"

	"github.com/fluxorio/stormsocket/internal/block"
)

// Writer is an outgoing message under construction: a refcounted chain of
// fixed-size blocks allocated from a block.Pool. Every block in the chain
// leaves ReservedHeaderLength bytes free at its start and
// ReservedTrailerLength bytes free at its end -- not just the first and
// last block -- so a header and trailer can be written in place
// (SetHeader, SetTrailer) without reflowing already-written body bytes.
//
// A freshly created Writer has a refcount of 1, held by its creator.
// SendPacketToConnection bumps it to 2 when the packet is handed to the send
// path; both the caller and the send path must Unref when done with their
// reference. The chain is returned to pool once the last reference drops.
type Writer struct {
	pool        *block.Pool
	refcount    atomic.Int32
	isEncrypted bool

	reservedHeaderLength int
	reservedTrailerLength int
	headerLength          int
	trailerLength         int
	totalLength           int // body bytes written, excludes header/trailer
	sendOffset            int // bytes of totalLength already sent, for partial-send resume

	startBlock block.Handle
	lastBlock  block.Handle
	lastUsed   int // body bytes used in lastBlock's payload region
}

// payloadPerBlock is the number of body bytes a block can hold once its
// reserved header and trailer regions are set aside.
func (w *Writer) payloadPerBlock() int {
	return w.pool.GetBlockSize() - w.reservedHeaderLength - w.reservedTrailerLength
}

// NewWriter allocates a fresh, empty Writer with no header/trailer
// reservation -- the common case for application-level packets.
func NewWriter(pool *block.Pool, isEncrypted bool) *Writer {
	return NewReservedWriter(pool, isEncrypted, 0, 0)
}

// NewReservedWriter allocates a Writer that reserves reservedHeader bytes
// at the start and reservedTrailer bytes at the end of every block in its
// chain. The backend itself only creates unreserved writers; TLS is done
// by crypto/tls on the connection, not by framing blocks in place.
func NewReservedWriter(pool *block.Pool, isEncrypted bool, reservedHeader, reservedTrailer int) *Writer {
	w := &Writer{
		pool:                  pool,
		isEncrypted:           isEncrypted,
		reservedHeaderLength:  reservedHeader,
		reservedTrailerLength: reservedTrailer,
		startBlock:            block.InvalidHandle,
		lastBlock:             block.InvalidHandle,
	}
	w.refcount.Store(1)
	return w
}

// Write appends data to the writer's body, allocating new blocks from the
// pool as needed. It reports false if the pool ran out of blocks partway
// through -- the writer is left holding whatever prefix was successfully
// appended, and the caller should treat this the same as any other
// allocation failure (drop the connection's send, do not retry forever).
func (w *Writer) Write(data []byte) bool {
	per := w.payloadPerBlock()

	for len(data) > 0 {
		if w.lastBlock == block.InvalidHandle {
			h := w.pool.Allocate()
			if h == block.InvalidHandle {
				return false
			}
			w.startBlock = h
			w.lastBlock = h
			w.lastUsed = 0
		} else if w.lastUsed >= per {
			h := w.pool.Allocate()
			if h == block.InvalidHandle {
				return false
			}
			w.pool.LinkBlock(w.lastBlock, h)
			w.lastBlock = h
			w.lastUsed = 0
		}

		room := per - w.lastUsed
		n := len(data)
		if n > room {
			n = room
		}

		mem := w.pool.ResolveHandle(w.lastBlock)
		copy(mem[w.reservedHeaderLength+w.lastUsed:], data[:n])

		w.lastUsed += n
		w.totalLength += n
		data = data[n:]
	}

	return true
}

// SetHeader writes data into the first block's reserved header region,
// right-aligned against the start of the body (so header bytes occupy
// [ReservedHeaderLength-len(data), ReservedHeaderLength) of the first
// block). It reports false if data is longer than ReservedHeaderLength or
// no block has been allocated yet.
func (w *Writer) SetHeader(data []byte) bool {
	if len(data) > w.reservedHeaderLength || w.startBlock == block.InvalidHandle {
		return false
	}
	mem := w.pool.ResolveHandle(w.startBlock)
	start := w.reservedHeaderLength - len(data)
	copy(mem[start:w.reservedHeaderLength], data)
	w.headerLength = len(data)
	return true
}

// SetTrailer writes data into the last block's reserved trailer region,
// left-aligned immediately after that block's body bytes. It reports
// false if data does not fit in ReservedTrailerLength or no block has
// been allocated yet.
func (w *Writer) SetTrailer(data []byte) bool {
	if len(data) > w.reservedTrailerLength || w.lastBlock == block.InvalidHandle {
		return false
	}
	mem := w.pool.ResolveHandle(w.lastBlock)
	start := w.reservedHeaderLength + w.lastUsed
	copy(mem[start:start+len(data)], data)
	w.trailerLength = len(data)
	return true
}

// Pool returns the block.Pool this writer's chain was allocated from. The
// send worker resolves handles through this rather than a backend-wide
// pool, since a Handle is only meaningful within the pool that issued it.
func (w *Writer) Pool() *block.Pool           { return w.pool }
func (w *Writer) IsEncrypted() bool           { return w.isEncrypted }
func (w *Writer) TotalLength() int            { return w.totalLength }
func (w *Writer) HeaderLength() int           { return w.headerLength }
func (w *Writer) TrailerLength() int          { return w.trailerLength }
func (w *Writer) ReservedHeaderLength() int   { return w.reservedHeaderLength }
func (w *Writer) ReservedTrailerLength() int  { return w.reservedTrailerLength }
func (w *Writer) StartBlock() block.Handle    { return w.startBlock }
func (w *Writer) SendOffset() int             { return w.sendOffset }
func (w *Writer) SetSendOffset(offset int)    { w.sendOffset = offset }

// Ref increments the writer's refcount. Call this whenever a new owner
// (the send queue, the free queue) takes a copy of the writer handle.
func (w *Writer) Ref() {
	w.refcount.Add(1)
}

// Unref drops a reference. It reports true if this call brought the
// refcount to zero, in which case Unref has already returned the block
// chain to its pool -- the caller must not touch the writer again.
func (w *Writer) Unref() bool {
	if w.refcount.Add(-1) != 0 {
		return false
	}
	if w.startBlock != block.InvalidHandle {
		w.pool.FreeBlockChain(w.startBlock, block.TagWriterDescriptor)
	}
	return true
}
