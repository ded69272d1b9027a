package storm

import "testing"

func TestSlotTable_AllocateAndLookup(t *testing.T) {
	tbl := newSlotTable(Settings{MaxConnections: 4, MaxPendingOutgoingPacketsPerConnection: 8, MaxPendingFreeingPacketsPerConnection: 4})

	id, slot := tbl.allocate(Settings{MaxConnections: 4, MaxPendingOutgoingPacketsPerConnection: 8, MaxPendingFreeingPacketsPerConnection: 4})
	if !id.IsValid() {
		t.Fatalf("allocate should succeed on an empty table")
	}
	if slot == nil {
		t.Fatalf("allocate should return a non-nil slot")
	}
	if got := tbl.lookup(id); got != slot {
		t.Fatalf("lookup should return the same slot just allocated")
	}
}

func TestSlotTable_ExhaustionReturnsInvalid(t *testing.T) {
	settings := Settings{MaxConnections: 2, MaxPendingOutgoingPacketsPerConnection: 4, MaxPendingFreeingPacketsPerConnection: 2}
	tbl := newSlotTable(settings)

	id1, _ := tbl.allocate(settings)
	id2, _ := tbl.allocate(settings)
	if !id1.IsValid() || !id2.IsValid() {
		t.Fatalf("both allocations should succeed with capacity 2")
	}

	id3, slot3 := tbl.allocate(settings)
	if id3.IsValid() || slot3 != nil {
		t.Fatalf("third allocation should fail on a 2-slot table")
	}
}

func TestSlotTable_FreeBumpsGenerationBeforeClearingUsed(t *testing.T) {
	settings := Settings{MaxConnections: 2, MaxPendingOutgoingPacketsPerConnection: 4, MaxPendingFreeingPacketsPerConnection: 2}
	tbl := newSlotTable(settings)

	id, _ := tbl.allocate(settings)
	tbl.free(id)

	if got := tbl.lookup(id); got != nil {
		t.Fatalf("lookup with the stale (pre-free) id should fail after free")
	}

	id2, _ := tbl.allocate(settings)
	if id2.Slot != id.Slot {
		t.Fatalf("freed slot should be reused first, got slot %d want %d", id2.Slot, id.Slot)
	}
	if id2.Generation != id.Generation+1 {
		t.Fatalf("generation = %d, want %d", id2.Generation, id.Generation+1)
	}
}

func TestSlotTable_LookupRejectsOutOfRange(t *testing.T) {
	settings := Settings{MaxConnections: 2, MaxPendingOutgoingPacketsPerConnection: 4, MaxPendingFreeingPacketsPerConnection: 2}
	tbl := newSlotTable(settings)

	if got := tbl.lookup(ConnectionId{Slot: 99, Generation: 0}); got != nil {
		t.Fatalf("lookup of an out-of-range slot should return nil")
	}
}
