package mem

import (
	"github.com/wippyai/pgbridge"
)

// Borrowed is an arena borrowed for the duration of a callback.
//
// The *Borrowed passed to the callback must not be retained after the
// callback returns. With debug checks on, use after the scope closed or after
// the arena was reset panics with an invariant_violation error.
type Borrowed struct {
	live *liveness
	raw  RawArena
	open bool
}

// BorrowCurrent borrows the host's current arena for fn.
func BorrowCurrent(h pgbridge.Host, fn func(*Borrowed) error) error {
	return borrow(FromRaw(h, h.CurrentArena()), fn)
}

// BorrowTop borrows the host's top-level permanent arena for fn.
func BorrowTop(h pgbridge.Host, fn func(*Borrowed) error) error {
	return borrow(FromRaw(h, h.TopArena()), fn)
}

// BorrowUnchecked borrows an arbitrary arena for fn.
//
// Safety: the caller promises that raw's arena is not reset or deleted while
// fn runs, including by host code fn calls.
func BorrowUnchecked(raw RawArena, fn func(*Borrowed) error) error {
	return borrow(raw, fn)
}

func borrow(raw RawArena, fn func(*Borrowed) error) error {
	b := &Borrowed{raw: raw, open: true, live: track(raw)}
	defer b.close()
	return fn(b)
}

func (b *Borrowed) close() {
	b.open = false
}

// Raw implements Allocator.
func (b *Borrowed) Raw() RawArena {
	b.check()
	return b.raw
}

// Host returns the host that owns the borrowed arena.
func (b *Borrowed) Host() pgbridge.Host {
	return b.raw.host
}

// Alloc requests size bytes from the borrowed arena.
func (b *Borrowed) Alloc(size uint32) pgbridge.Ptr {
	b.check()
	return b.raw.Alloc(size)
}

// Alloc0 requests size zeroed bytes from the borrowed arena.
func (b *Borrowed) Alloc0(size uint32) pgbridge.Ptr {
	b.check()
	return b.raw.Alloc0(size)
}

// Free returns p to the borrowed arena.
func (b *Borrowed) Free(p pgbridge.Ptr) {
	b.check()
	b.raw.Free(p)
}

// Open reports whether the borrow scope is still active.
func (b *Borrowed) Open() bool {
	return b.open
}

// MakeCurrent runs body with the borrowed arena as the current arena.
func (b *Borrowed) MakeCurrent(body func()) {
	MakeCurrent(b, body)
}

func (b *Borrowed) check() {
	if !DebugChecks() {
		return
	}
	if !b.open {
		violation("borrowed arena %#x used after its scope ended", uintptr(b.raw.ptr))
	}
	if b.live.dead() {
		violation("borrowed arena %#x was reset while borrowed", uintptr(b.raw.ptr))
	}
}
