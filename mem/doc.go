// Package mem wraps the host's arena hierarchy.
//
// # Handles
//
// RawArena is a validated, non-owning handle to one arena node. FromRaw is
// the only way to build one; its caller promises the arena stays valid and
// unreset while the handle is used. With debug checks on (the default unless
// built with -tags pgbridge_release) FromRaw asserts the node tag is a live
// arena kind and use of a handle after its arena was reset panics with an
// invariant_violation error.
//
// # Borrowing
//
// A Borrowed arena is a RawArena scoped to a callback:
//
//	err := mem.BorrowCurrent(host, func(cx *mem.Borrowed) error {
//	    p := cx.Alloc(32)
//	    ...
//	})
//
// Only the current arena and the top arena can be borrowed this way. Any
// other arena needs BorrowUnchecked and the caller's promise that nothing
// resets or deletes it while the borrow is open.
//
// # Current Arena
//
// MakeCurrent swaps the host's current-arena slot for the duration of a small
// body, normally a single host entry point that allocates implicitly, and
// restores the previous value on every exit path:
//
//	p := mem.MakeCurrentValue(cx, func() pgbridge.Ptr {
//	    return hostFunctionThatAllocates()
//	})
//
// Go code never uses the slot to tell another Go function where to allocate.
// Functions that allocate for their caller take a mem.Allocator.
//
// # Ownership
//
// Owned[T] pairs a value with the block that backs it. Release runs the
// value's teardown and then frees the block exactly once; IntoRaw disarms the
// wrapper when the host takes over the block.
package mem
