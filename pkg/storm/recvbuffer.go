package storm

import "github.com/fluxorio/stormsocket/internal/block"

// recvBuffer accumulates inbound bytes for one connection as a chain of
// blocks. The reactor appends freshly-read bytes at the tail (via
// AvailableForWrite/GotData) and the frontend consumes them from the head
// (via Discard) as it parses. Unlike a Writer, a recvBuffer's chain grows
// and shrinks from opposite ends concurrently with use, so blocks are
// returned to the pool one at a time as they're fully drained rather than
// all at once.
//
// The original backend fills two asio buffers per Read -- the remainder
// of the current block and the whole of a pre-allocated next block -- so
// a single recv() syscall can straddle a block boundary. Go's net.Conn.Read
// takes one []byte, so that trick buys nothing here: this type hands the
// reactor one slice (the current block's remaining tail) per Read call
// and only allocates the next block once that tail fills.
type recvBuffer struct {
	pool *block.Pool

	head       block.Handle // oldest block holding undrained bytes
	readOffset int          // consumed-up-to offset within head

	tail        block.Handle // newest block, currently being written to
	writeOffset int          // written-up-to offset within tail

	unparsed int // bytes available to the frontend, across the whole chain
}

// newRecvBuffer allocates a recv buffer backed by a single initial block.
// Returns nil if the pool is already exhausted.
func newRecvBuffer(pool *block.Pool) *recvBuffer {
	h := pool.Allocate()
	if h == block.InvalidHandle {
		return nil
	}
	return &recvBuffer{pool: pool, head: h, tail: h}
}

// AvailableForWrite returns the slice the reactor should Read() into next.
func (b *recvBuffer) AvailableForWrite() []byte {
	mem := b.pool.ResolveHandle(b.tail)
	return mem[b.writeOffset:]
}

// GotData records that n bytes were read into the slice AvailableForWrite
// most recently returned. It reports false if growing the chain to make
// room for further writes failed because the pool is exhausted -- the n
// bytes already recorded remain valid either way.
func (b *recvBuffer) GotData(n int) bool {
	b.writeOffset += n
	b.unparsed += n

	if b.writeOffset < b.pool.GetBlockSize() {
		return true
	}

	h := b.pool.Allocate()
	if h == block.InvalidHandle {
		return false
	}
	b.pool.LinkBlock(b.tail, h)
	b.tail = h
	b.writeOffset = 0
	return true
}

// UnparsedLength reports how many undrained bytes the frontend has not
// yet consumed via Discard.
func (b *recvBuffer) UnparsedLength() int {
	return b.unparsed
}

// Peek returns the undrained bytes currently sitting in the head block,
// i.e. everything the frontend can parse without this package needing to
// copy across a block boundary. A frontend that needs more than one
// block's worth of contiguous bytes calls Peek again after Discard-ing
// what it already consumed.
func (b *recvBuffer) Peek() []byte {
	mem := b.pool.ResolveHandle(b.head)
	end := len(mem)
	if b.head == b.tail {
		end = b.writeOffset
	}
	return mem[b.readOffset:end]
}

// Discard marks n bytes, starting from the front of the chain, as
// consumed. It frees head blocks as they're fully drained.
func (b *recvBuffer) Discard(n int) {
	for n > 0 {
		blockSize := b.pool.GetBlockSize()
		avail := blockSize - b.readOffset
		if b.head == b.tail {
			avail = b.writeOffset - b.readOffset
		}
		if avail > n {
			avail = n
		}

		b.readOffset += avail
		b.unparsed -= avail
		n -= avail

		if b.head == b.tail || b.readOffset < blockSize {
			break
		}

		next := b.pool.GetNextBlock(b.head)
		b.pool.FreeSingleBlock(b.head, block.TagPacket)
		b.head = next
		b.readOffset = 0
	}
}

// Close returns every block still held by the buffer to the pool. Called
// once, during connection cleanup.
func (b *recvBuffer) Close() {
	if b.head == block.InvalidHandle {
		return
	}
	b.pool.FreeBlockChain(b.head, block.TagPacket)
	b.head = block.InvalidHandle
	b.tail = block.InvalidHandle
}
