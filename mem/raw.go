package mem

import (
	"fmt"

	"github.com/wippyai/pgbridge"
)

// Allocator is anything that can hand out host memory from a known arena.
// RawArena and *Borrowed implement it.
type Allocator interface {
	// Raw returns the arena the allocations come from.
	Raw() RawArena

	// Alloc requests size bytes. On host exhaustion the host signal fires;
	// callers must be inside a guard call.
	Alloc(size uint32) pgbridge.Ptr
}

// RawArena is a non-owning handle to one host arena.
//
// Holding a RawArena across a reset or delete of its arena and then using it
// is the caller's error. With debug checks on, every use re-reads the node tag
// and panics with an invariant_violation if the arena is no longer live.
type RawArena struct {
	host pgbridge.Host
	ptr  pgbridge.ArenaPtr
}

// FromRaw builds a handle for p.
//
// Safety: p must point to a live arena and stay valid and unreset for as long
// as the handle is used. A nil host or null p always panics; the live-kind
// check runs only with debug checks on.
func FromRaw(h pgbridge.Host, p pgbridge.ArenaPtr) RawArena {
	if h == nil {
		violation("nil host")
	}
	if p == 0 {
		violation("null arena pointer")
	}
	a := RawArena{host: h, ptr: p}
	if DebugChecks() && !a.Valid() {
		violation("arena %#x is not a live arena (tag %s)", uintptr(p), h.ArenaTag(p))
	}
	return a
}

// Ptr returns the raw arena pointer.
func (a RawArena) Ptr() pgbridge.ArenaPtr {
	return a.ptr
}

// Host returns the host that owns the arena.
func (a RawArena) Host() pgbridge.Host {
	return a.host
}

// Raw implements Allocator.
func (a RawArena) Raw() RawArena {
	return a
}

// Tag reads the arena's node tag.
func (a RawArena) Tag() pgbridge.NodeTag {
	return a.host.ArenaTag(a.ptr)
}

// Valid reports whether the arena's tag is a live arena kind.
func (a RawArena) Valid() bool {
	return a.host != nil && a.ptr != 0 && pgbridge.IsLiveArena(a.Tag())
}

// IsZero reports whether a is the zero handle.
func (a RawArena) IsZero() bool {
	return a.host == nil && a.ptr == 0
}

// Alloc requests size bytes from the arena.
func (a RawArena) Alloc(size uint32) pgbridge.Ptr {
	a.check()
	return a.host.Alloc(a.ptr, size, 0)
}

// Alloc0 requests size zeroed bytes from the arena.
func (a RawArena) Alloc0(size uint32) pgbridge.Ptr {
	a.check()
	return a.host.Alloc(a.ptr, size, pgbridge.AllocZero)
}

// TryAlloc requests size bytes and reports false instead of raising when
// the host is out of memory. Other host failures still raise.
func (a RawArena) TryAlloc(size uint32) (pgbridge.Ptr, bool) {
	a.check()
	p := a.host.Alloc(a.ptr, size, pgbridge.AllocNoOOM)
	return p, p != 0
}

// Free returns p to the arena. A null p is ignored.
func (a RawArena) Free(p pgbridge.Ptr) {
	if p == 0 {
		return
	}
	a.check()
	a.host.Free(a.ptr, p)
}

func (a RawArena) check() {
	if !DebugChecks() {
		return
	}
	if a.host == nil || a.ptr == 0 {
		violation("use of zero arena handle")
	}
	if !a.Valid() {
		violation("use of arena %#x after it was deleted", uintptr(a.ptr))
	}
}

// String describes the arena. The host is only asked for details when it
// implements pgbridge.Inspector; the arena must still be valid.
func (a RawArena) String() string {
	if a.host == nil {
		return "RawArena(nil)"
	}
	insp, ok := a.host.(pgbridge.Inspector)
	if !ok {
		return fmt.Sprintf("RawArena(%#x)", uintptr(a.ptr))
	}
	info, ok := insp.ArenaInfo(a.ptr)
	if !ok {
		return fmt.Sprintf("RawArena(%#x, unknown)", uintptr(a.ptr))
	}
	name := info.Name
	if name == "" {
		name = "(null)"
	}
	s := fmt.Sprintf("RawArena(%#x %q %s, allocated=%d, children=%d", uintptr(a.ptr), name, info.Tag, info.Allocated, info.Children)
	if info.Global != "" {
		s += ", global=" + info.Global
	}
	return s + ")"
}
