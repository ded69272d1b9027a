// Package block implements the fixed-block allocator the backend carves
// packet and writer-descriptor memory from.
//
// Blocks never move and are never reclaimed by the garbage collector: a
// Handle stays valid (resolvable to the same underlying bytes) until it is
// explicitly returned through FreeBlockChain, which is what lets the
// backend hand out raw handles across goroutines and queues without
// pinning concerns.
package block

import (
	"sync"
	"sync/atomic"

	"github.com/fluxorio/stormsocket/internal/failfast"
)

// Handle addresses one block in a Pool. Blocks are numbered from 0, so the
// zero value addresses block 0; InvalidHandle addresses no block.
type Handle int32

// InvalidHandle is the sentinel returned when a pool is exhausted or a
// chain terminates.
const InvalidHandle Handle = -1

// Tag marks which logical pool a block was carved from, for diagnostics
// only -- Pool itself does not interpret it.
type Tag uint8

const (
	TagPacket Tag = iota
	TagWriterDescriptor
)

// Pool is a fixed-capacity, fixed-block-size arena. Blocks form singly
// linked chains through an index array kept parallel to the arena, so
// linking costs no allocation.
type Pool struct {
	arena     []byte
	next      []int32 // next[i] is the next block in i's chain, or freeSentinel
	blockSize int32
	capacity  int32
	tag       Tag

	// freeMu guards freeHead. A CAS-based free-list push/pop is tempting
	// here but is ABA-prone under concurrent Allocate/Free from many
	// goroutines; a short mutex section is simpler to get right and the
	// critical section is O(1).
	freeMu   sync.Mutex
	freeHead int32 // head of the free list, or freeSentinel

	inUse atomic.Int32 // diagnostic counter
}

const freeSentinel = int32(InvalidHandle)

// NewPool allocates capacity blocks of blockSize bytes each.
func NewPool(blockSize, capacity int, tag Tag) *Pool {
	failfast.If(blockSize > 0, "block: blockSize must be positive, got %d", blockSize)
	failfast.If(capacity > 0, "block: capacity must be positive, got %d", capacity)

	p := &Pool{
		arena:     make([]byte, int64(blockSize)*int64(capacity)),
		next:      make([]int32, capacity),
		blockSize: int32(blockSize),
		capacity:  int32(capacity),
		tag:       tag,
	}

	// Thread every block onto the free list up front: next[i] = i+1, last -> sentinel.
	for i := int32(0); i < p.capacity; i++ {
		if i == p.capacity-1 {
			p.next[i] = freeSentinel
		} else {
			p.next[i] = i + 1
		}
	}
	p.freeHead = 0

	return p
}

// GetBlockSize returns the fixed size, in bytes, of every block in the pool.
func (p *Pool) GetBlockSize() int {
	return int(p.blockSize)
}

// Allocate pops one block off the free list. Returns InvalidHandle if the
// pool is exhausted.
func (p *Pool) Allocate() Handle {
	p.freeMu.Lock()
	head := p.freeHead
	if head == freeSentinel {
		p.freeMu.Unlock()
		return InvalidHandle
	}
	p.freeHead = p.next[head]
	p.next[head] = freeSentinel
	p.freeMu.Unlock()

	p.inUse.Add(1)
	return Handle(head)
}

// GetNextBlock returns the block chained after h, or InvalidHandle if h
// terminates its chain.
func (p *Pool) GetNextBlock(h Handle) Handle {
	if h == InvalidHandle {
		return InvalidHandle
	}
	return Handle(p.next[h])
}

// LinkBlock sets the block following head to next, splicing next into
// head's chain. Callers use this to grow a chain one block at a time
// (e.g. the receive path appending a fresh block to a recv buffer).
func (p *Pool) LinkBlock(head, next Handle) {
	p.next[head] = int32(next)
}

// ResolveHandle returns the byte slice backing h. Panics on an invalid
// handle -- resolving a stale or free handle is a programmer error, never
// a runtime condition callers are expected to recover from.
func (p *Pool) ResolveHandle(h Handle) []byte {
	failfast.If(h >= 0 && int32(h) < p.capacity, "block: invalid handle %d", h)
	start := int64(h) * int64(p.blockSize)
	return p.arena[start : start+int64(p.blockSize)]
}

// FreeBlockChain walks the chain starting at head and returns every block
// in it to the free list. tag is accepted for symmetry with the backend's
// two logical pools (packet vs. writer-descriptor) and is not otherwise
// used by Pool.
func (p *Pool) FreeBlockChain(head Handle, _ Tag) {
	cur := head
	for cur != InvalidHandle {
		next := Handle(p.next[cur])
		p.freeOne(cur)
		cur = next
	}
}

// FreeSingleBlock returns just h to the free list, without following its
// chain link. Used by consumers that retire a chain head incrementally as
// they drain it (the receive buffer), as opposed to FreeBlockChain's
// all-at-once release of a fully consumed writer.
func (p *Pool) FreeSingleBlock(h Handle, _ Tag) {
	p.freeOne(h)
}

func (p *Pool) freeOne(h Handle) {
	p.freeMu.Lock()
	p.next[h] = p.freeHead
	p.freeHead = int32(h)
	p.freeMu.Unlock()
	p.inUse.Add(-1)
}

// InUse reports how many blocks are currently allocated, for metrics.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Capacity returns the total number of blocks in the pool.
func (p *Pool) Capacity() int {
	return int(p.capacity)
}
