package block

import (
	"sync"
	"testing"
)

func TestPool_AllocateExhaustion(t *testing.T) {
	p := NewPool(64, 4, TagPacket)

	var handles []Handle
	for i := 0; i < 4; i++ {
		h := p.Allocate()
		if h == InvalidHandle {
			t.Fatalf("expected allocation %d to succeed", i)
		}
		handles = append(handles, h)
	}

	if h := p.Allocate(); h != InvalidHandle {
		t.Fatalf("expected pool exhaustion, got handle %d", h)
	}
	if got := p.InUse(); got != 4 {
		t.Fatalf("InUse() = %d, want 4", got)
	}

	p.FreeBlockChain(handles[0], TagPacket)
	if got := p.InUse(); got != 3 {
		t.Fatalf("InUse() after free = %d, want 3", got)
	}
	if h := p.Allocate(); h == InvalidHandle {
		t.Fatalf("expected allocation to succeed after free")
	}
}

func TestPool_ChainLinkingAndResolve(t *testing.T) {
	p := NewPool(16, 4, TagWriterDescriptor)

	a := p.Allocate()
	b := p.Allocate()
	p.LinkBlock(a, b)

	if got := p.GetNextBlock(a); got != b {
		t.Fatalf("GetNextBlock(a) = %d, want %d", got, b)
	}
	if got := p.GetNextBlock(b); got != InvalidHandle {
		t.Fatalf("GetNextBlock(b) = %d, want InvalidHandle", got)
	}

	buf := p.ResolveHandle(a)
	if len(buf) != 16 {
		t.Fatalf("ResolveHandle length = %d, want 16", len(buf))
	}
	buf[0] = 0xAB
	if p.ResolveHandle(a)[0] != 0xAB {
		t.Fatalf("ResolveHandle should return a view over the same backing array")
	}
}

func TestPool_FreeBlockChainFreesWholeChain(t *testing.T) {
	p := NewPool(8, 3, TagPacket)

	a := p.Allocate()
	b := p.Allocate()
	c := p.Allocate()
	p.LinkBlock(a, b)
	p.LinkBlock(b, c)

	p.FreeBlockChain(a, TagPacket)
	if got := p.InUse(); got != 0 {
		t.Fatalf("InUse() = %d, want 0 after freeing full chain", got)
	}

	// All three blocks should be allocatable again.
	for i := 0; i < 3; i++ {
		if p.Allocate() == InvalidHandle {
			t.Fatalf("expected reclaimed block %d to be allocatable", i)
		}
	}
}

func TestPool_FreeSingleBlockLeavesRestOfChain(t *testing.T) {
	p := NewPool(8, 3, TagPacket)

	a := p.Allocate()
	b := p.Allocate()
	c := p.Allocate()
	p.LinkBlock(a, b)
	p.LinkBlock(b, c)

	p.FreeSingleBlock(a, TagPacket)
	if got := p.InUse(); got != 2 {
		t.Fatalf("InUse() = %d, want 2 after freeing just the head", got)
	}
	if got := p.GetNextBlock(b); got != c {
		t.Fatalf("b->c link should be untouched, GetNextBlock(b) = %d, want %d", got, c)
	}
}

func TestPool_ConcurrentAllocateFree(t *testing.T) {
	const capacity = 64
	p := NewPool(32, capacity, TagPacket)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h := p.Allocate()
				if h != InvalidHandle {
					p.FreeBlockChain(h, TagPacket)
				}
			}
		}()
	}
	wg.Wait()

	if got := p.InUse(); got != 0 {
		t.Fatalf("InUse() = %d, want 0 after all goroutines finished", got)
	}
	for i := 0; i < capacity; i++ {
		if p.Allocate() == InvalidHandle {
			t.Fatalf("pool should have all %d blocks free, failed at %d", capacity, i)
		}
	}
}
