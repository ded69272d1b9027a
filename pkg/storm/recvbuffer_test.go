package storm

import (
	"bytes"
	"testing"

	"github.com/fluxorio/stormsocket/internal/block"
)

func TestRecvBuffer_WriteAndPeekWithinOneBlock(t *testing.T) {
	pool := block.NewPool(32, 4, block.TagPacket)
	b := newRecvBuffer(pool)

	copy(b.AvailableForWrite(), []byte("hello"))
	if !b.GotData(5) {
		t.Fatalf("GotData should succeed")
	}
	if b.UnparsedLength() != 5 {
		t.Fatalf("UnparsedLength = %d, want 5", b.UnparsedLength())
	}
	if !bytes.Equal(b.Peek(), []byte("hello")) {
		t.Fatalf("Peek = %q, want hello", b.Peek())
	}
}

func TestRecvBuffer_GrowsAcrossBlockBoundary(t *testing.T) {
	pool := block.NewPool(8, 4, block.TagPacket)
	b := newRecvBuffer(pool)

	copy(b.AvailableForWrite(), bytes.Repeat([]byte("a"), 8))
	if !b.GotData(8) {
		t.Fatalf("GotData should succeed and grow the chain")
	}
	if pool.InUse() != 2 {
		t.Fatalf("InUse() = %d, want 2 (first block full, second allocated)", pool.InUse())
	}

	copy(b.AvailableForWrite(), []byte("bb"))
	b.GotData(2)
	if b.UnparsedLength() != 10 {
		t.Fatalf("UnparsedLength = %d, want 10", b.UnparsedLength())
	}
}

func TestRecvBuffer_DiscardFreesDrainedBlocks(t *testing.T) {
	pool := block.NewPool(4, 4, block.TagPacket)
	b := newRecvBuffer(pool)

	copy(b.AvailableForWrite(), []byte("abcd"))
	b.GotData(4)
	copy(b.AvailableForWrite(), []byte("ef"))
	b.GotData(2)

	if pool.InUse() != 2 {
		t.Fatalf("InUse() = %d, want 2", pool.InUse())
	}

	b.Discard(4) // drains the first block entirely
	if pool.InUse() != 1 {
		t.Fatalf("InUse() = %d, want 1 after draining the first block", pool.InUse())
	}
	if !bytes.Equal(b.Peek(), []byte("ef")) {
		t.Fatalf("Peek = %q, want ef", b.Peek())
	}

	b.Discard(2)
	if b.UnparsedLength() != 0 {
		t.Fatalf("UnparsedLength = %d, want 0", b.UnparsedLength())
	}
}

func TestRecvBuffer_Close(t *testing.T) {
	pool := block.NewPool(4, 4, block.TagPacket)
	b := newRecvBuffer(pool)
	copy(b.AvailableForWrite(), []byte("abcd"))
	b.GotData(4)
	copy(b.AvailableForWrite(), []byte("ef"))
	b.GotData(2)

	b.Close()
	if pool.InUse() != 0 {
		t.Fatalf("InUse() = %d, want 0 after Close", pool.InUse())
	}
}
