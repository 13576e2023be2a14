package mem

import (
	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
)

// Owned couples a value with the host block backing it.
//
// Release runs the teardown, if any, then frees the block from its arena
// exactly once. Go has no move semantics, so the wrapper carries a released
// flag: Release after Release or after IntoRaw does nothing, and Get after
// Release panics with an invariant_violation error.
type Owned[T any] struct {
	value    T
	teardown func(T)
	live     *liveness
	arena    RawArena
	ptr      pgbridge.Ptr
	released bool
}

// NewOwned takes ownership of the block p in a's arena, which backs value.
// A null p means value needs teardown but has no block to free.
func NewOwned[T any](value T, p pgbridge.Ptr, a Allocator, teardown func(T)) *Owned[T] {
	raw := a.Raw()
	return &Owned[T]{
		value:    value,
		teardown: teardown,
		arena:    raw,
		ptr:      p,
		live:     track(raw),
	}
}

// OwnedFromRaw re-wraps a block previously disarmed with IntoRaw.
//
// Safety: the caller proves no other owner of p exists and that arena is the
// arena p was allocated from.
func OwnedFromRaw[T any](value T, p pgbridge.Ptr, arena RawArena) *Owned[T] {
	return NewOwned(value, p, arena, nil)
}

// Get returns the owned value.
func (o *Owned[T]) Get() T {
	if o.released {
		violation("owned value used after release")
	}
	if DebugChecks() && o.live.dead() {
		violation("owned value used after arena %#x was reset", uintptr(o.arena.ptr))
	}
	return o.value
}

// Ptr returns the backing block.
func (o *Owned[T]) Ptr() pgbridge.Ptr {
	return o.ptr
}

// Arena returns the arena that reclaims the backing block.
func (o *Owned[T]) Arena() RawArena {
	return o.arena
}

// Released reports whether Release or IntoRaw has been called.
func (o *Owned[T]) Released() bool {
	return o.released
}

// Release tears the value down and frees its block. If the arena was reset
// since the value was created the host already reclaimed the block in bulk
// and only the teardown runs.
func (o *Owned[T]) Release() {
	if o == nil || o.released {
		return
	}
	o.released = true

	if o.teardown != nil {
		o.teardown(o.value)
	}
	if o.ptr == 0 {
		return
	}
	if o.live.dead() {
		Logger().Debug("skip free of block in reset arena",
			zap.Uint64("ptr", uint64(o.ptr)),
			zap.Uintptr("arena", uintptr(o.arena.ptr)))
		return
	}
	o.arena.Free(o.ptr)
}

// IntoRaw disarms the wrapper and hands the block to the caller, who must
// make sure it is eventually reclaimed, typically by passing it to host code
// that frees it when its arena resets.
func (o *Owned[T]) IntoRaw() (T, pgbridge.Ptr, RawArena) {
	if o.released {
		violation("IntoRaw on released owned value")
	}
	o.released = true
	return o.value, o.ptr, o.arena
}
