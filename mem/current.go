package mem

import (
	"github.com/wippyai/pgbridge"
)

// Current returns a handle to the host's current arena.
func Current(h pgbridge.Host) RawArena {
	return FromRaw(h, h.CurrentArena())
}

// Top returns a handle to the host's top-level arena.
func Top(h pgbridge.Host) RawArena {
	return FromRaw(h, h.TopArena())
}

// MakeCurrent runs body with a's arena as the host's current arena and
// restores the previous one however body exits.
//
// Keep body small: ideally one host entry point that allocates from the
// current arena. Do not use it to tell Go code where to allocate; pass the
// Allocator instead.
func MakeCurrent(a Allocator, body func()) {
	raw := a.Raw()
	raw.check()
	h := raw.host
	prev := h.CurrentArena()
	h.SetCurrentArena(raw.ptr)
	defer h.SetCurrentArena(prev)
	body()
}

// MakeCurrentValue is MakeCurrent for a body that returns a value.
func MakeCurrentValue[T any](a Allocator, body func() T) T {
	var v T
	MakeCurrent(a, func() {
		v = body()
	})
	return v
}
