// Package ring implements the bounded, generation-tagged queue the backend
// uses for per-connection output and free queues.
//
// Every operation is gated by a generation: a queue only accepts producers
// running under the generation it currently holds, so a connection slot
// that gets reused (new generation, after FreeConnectionSlot) cannot have a
// stale enqueue from the previous tenant silently land in the new
// tenant's queue. This is the structural half of the backend's stale-handle
// rejection story; the other half is the slot table's own generation check
// (see pkg/storm).
package ring

import (
	"sync"

	"github.com/fluxorio/stormsocket/internal/failfast"
)

// Ring is a fixed-capacity FIFO queue tagged with a generation. Concurrent
// producers and a single logical consumer share one Ring per connection
// partition.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int // index of the oldest element
	count int
	gen   uint32
}

// New creates a Ring with room for capacity elements, initially accepting
// generation gen.
func New[T any](capacity int, gen uint32) *Ring[T] {
	failfast.If(capacity > 0, "ring: capacity must be positive, got %d", capacity)
	return &Ring[T]{
		buf: make([]T, capacity),
		gen: gen,
	}
}

// Enqueue appends v if gen matches the ring's current generation and
// capacity remains. Returns false on generation mismatch or a full ring;
// callers decide whether that means spin, fail non-blocking, or abandon.
func (r *Ring[T]) Enqueue(v T, gen uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || r.count == len(r.buf) {
		return false
	}
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = v
	r.count++
	return true
}

// TryDequeue pops the head element into *out if gen matches and the ring
// is non-empty.
func (r *Ring[T]) TryDequeue(out *T, gen uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || r.count == 0 {
		return false
	}
	*out = r.buf[r.head]
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return true
}

// PeekTop reads the k-th element from the head (k=0 is the head itself)
// without removing it.
func (r *Ring[T]) PeekTop(out *T, gen uint32, k int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || k < 0 || k >= r.count {
		return false
	}
	*out = r.buf[(r.head+k)%len(r.buf)]
	return true
}

// ReplaceTop overwrites the k-th element from the head in place (used by
// the send worker to swap a plaintext writer for its encrypted form
// without disturbing queue order).
func (r *Ring[T]) ReplaceTop(v T, gen uint32, k int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || k < 0 || k >= r.count {
		return false
	}
	r.buf[(r.head+k)%len(r.buf)] = v
	return true
}

// Advance drops the head element without returning it. No-op (returns
// false) if the generation doesn't match or the ring is empty.
func (r *Ring[T]) Advance(gen uint32) bool {
	var discard T
	return r.TryDequeue(&discard, gen)
}

// AdvanceN drops up to n head elements under gen, stopping early if the
// ring empties or the generation stops matching. Returns the number
// actually dropped.
func (r *Ring[T]) AdvanceN(gen uint32, n int) int {
	dropped := 0
	for i := 0; i < n; i++ {
		if !r.Advance(gen) {
			break
		}
		dropped++
	}
	return dropped
}

// Lock freezes the ring against producers running under its current
// generation and transitions it to newGen: after Lock returns, Enqueue
// calls tagged with the old generation fail, and operations tagged with
// newGen are accepted. Existing elements are untouched -- drain them with
// TryDequeue(..., newGen) or discard them with Reset(newGen).
func (r *Ring[T]) Lock(newGen uint32) {
	r.mu.Lock()
	r.gen = newGen
	r.mu.Unlock()
}

// Reset clears every remaining element under gen. No-op if gen doesn't
// match the ring's current generation.
func (r *Ring[T]) Reset(gen uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		return
	}
	var zero T
	for i := 0; i < r.count; i++ {
		r.buf[(r.head+i)%len(r.buf)] = zero
	}
	r.head = 0
	r.count = 0
}

// Len returns the current number of queued elements, for metrics.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Generation returns the ring's current accepting generation.
func (r *Ring[T]) Generation() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}
