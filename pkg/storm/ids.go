package storm

import "fmt"

// ConnectionId names one connection slot at one generation. A handle whose
// Generation no longer matches the slot's current generation is stale and
// every backend operation rejects it as a no-op.
type ConnectionId struct {
	Slot       uint32
	Generation uint8
}

// InvalidConnectionId is the reserved sentinel returned whenever a
// connection could not be allocated.
var InvalidConnectionId = ConnectionId{Slot: ^uint32(0), Generation: 0}

// IsValid reports whether id is not the InvalidConnectionId sentinel. It
// does not check the id against a live backend -- use
// Backend.ConnectionIdValid for that.
func (id ConnectionId) IsValid() bool {
	return id != InvalidConnectionId
}

// Pack encodes id into a single uint64 for opaque storage by callers (e.g.
// as a map key, or carried across a process boundary by a frontend).
func (id ConnectionId) Pack() uint64 {
	return uint64(id.Slot)<<8 | uint64(id.Generation)
}

// Unpack decodes a handle produced by Pack.
func Unpack(handle uint64) ConnectionId {
	return ConnectionId{
		Slot:       uint32(handle >> 8),
		Generation: uint8(handle & 0xff),
	}
}

func (id ConnectionId) String() string {
	return fmt.Sprintf("conn(slot=%d,gen=%d)", id.Slot, id.Generation)
}

// FrontendId is an opaque per-connection token owned by the frontend
// collaborator; the backend stores it but never interprets it.
type FrontendId uint64

// InvalidFrontendId is returned by AllocateFrontendId on failure.
const InvalidFrontendId FrontendId = ^FrontendId(0)
