package storm

import (
	"bytes"
	"testing"

	"github.com/fluxorio/stormsocket/internal/block"
)

func TestWriter_WriteSingleBlock(t *testing.T) {
	pool := block.NewPool(64, 4, block.TagWriterDescriptor)
	w := NewWriter(pool, false)

	if !w.Write([]byte("hello")) {
		t.Fatalf("Write should succeed")
	}
	if w.TotalLength() != 5 {
		t.Fatalf("TotalLength = %d, want 5", w.TotalLength())
	}

	mem := pool.ResolveHandle(w.StartBlock())
	if !bytes.Equal(mem[:5], []byte("hello")) {
		t.Fatalf("body bytes = %q, want hello", mem[:5])
	}
}

func TestWriter_WriteSpansMultipleBlocks(t *testing.T) {
	pool := block.NewPool(16, 8, block.TagWriterDescriptor)
	w := NewWriter(pool, false)

	payload := bytes.Repeat([]byte("x"), 40)
	if !w.Write(payload) {
		t.Fatalf("Write should succeed")
	}
	if w.TotalLength() != 40 {
		t.Fatalf("TotalLength = %d, want 40", w.TotalLength())
	}

	blocks := 0
	h := w.StartBlock()
	for h != block.InvalidHandle {
		blocks++
		h = pool.GetNextBlock(h)
	}
	if blocks != 3 {
		t.Fatalf("chain length = %d blocks, want 3 (16 bytes/block, 40 byte payload)", blocks)
	}
}

func TestWriter_ExhaustsPool(t *testing.T) {
	pool := block.NewPool(16, 2, block.TagWriterDescriptor)
	w := NewWriter(pool, false)

	if w.Write(bytes.Repeat([]byte("x"), 64)) {
		t.Fatalf("Write should fail once the pool runs out of blocks")
	}
}

func TestWriter_HeaderAndTrailerReservation(t *testing.T) {
	pool := block.NewPool(32, 4, block.TagWriterDescriptor)
	w := NewReservedWriter(pool, true, 8, 4)

	if !w.Write([]byte("payload")) {
		t.Fatalf("Write should succeed")
	}
	if !w.SetHeader([]byte("HDR")) {
		t.Fatalf("SetHeader should succeed within reservation")
	}
	if !w.SetTrailer([]byte("TRL")) {
		t.Fatalf("SetTrailer should succeed within reservation")
	}

	mem := pool.ResolveHandle(w.StartBlock())
	if !bytes.Equal(mem[5:8], []byte("HDR")) {
		t.Fatalf("header should be right-aligned in reserved region, got %q", mem[0:8])
	}
	if !bytes.Equal(mem[8:15], []byte("payload")) {
		t.Fatalf("body should start right after the reserved header, got %q", mem[8:15])
	}
	if !bytes.Equal(mem[15:18], []byte("TRL")) {
		t.Fatalf("trailer should be left-aligned after the body, got %q", mem[15:18])
	}

	if w.SetHeader(bytes.Repeat([]byte("y"), 9)) {
		t.Fatalf("SetHeader should reject data larger than the reservation")
	}
}

func TestWriter_RefcountFreesOnZero(t *testing.T) {
	pool := block.NewPool(16, 4, block.TagWriterDescriptor)
	w := NewWriter(pool, false)
	w.Write([]byte("hi"))

	if pool.InUse() != 1 {
		t.Fatalf("InUse() = %d, want 1 after one block allocated", pool.InUse())
	}

	w.Ref()
	if w.Unref() {
		t.Fatalf("Unref should not free while a second reference remains")
	}
	if pool.InUse() != 1 {
		t.Fatalf("block should still be in use, InUse() = %d", pool.InUse())
	}

	if !w.Unref() {
		t.Fatalf("final Unref should report the chain was freed")
	}
	if pool.InUse() != 0 {
		t.Fatalf("InUse() = %d, want 0 after final Unref", pool.InUse())
	}
}
