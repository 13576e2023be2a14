package pgbridge

import (
	"github.com/wippyai/pgbridge/errors"
)

// ArenaPtr is an opaque pointer to a host arena node. Zero is the null arena.
type ArenaPtr uintptr

// Ptr is an address in host memory. Zero is the null pointer.
type Ptr uint64

// Datum is the host's machine-word value representation. It holds either a
// by-value scalar in place or a Ptr to a variable-length value.
type Datum uint64

// Oid is the host's type identifier. Zero is the invalid oid.
type Oid uint32

// InvalidOid is the null type identifier.
const InvalidOid Oid = 0

// NullableDatum is a datum together with the host's null marker.
type NullableDatum struct {
	Value  Datum
	IsNull bool
}

// CallInfo is the host's call frame for a function invoked through the
// function manager. The callee sets IsNull to return null.
type CallInfo struct {
	Args       []NullableDatum
	ArgTypes   []Oid
	ResultType Oid
	IsNull     bool
}

// Function is the host calling convention for an exported function.
type Function func(fc *CallInfo) Datum

// NodeTag identifies the allocation strategy of an arena node.
type NodeTag uint16

const (
	TagInvalid NodeTag = iota
	TagAllocSet
	TagSlab
	TagGeneration
)

// String returns the host name of the node tag.
func (t NodeTag) String() string {
	switch t {
	case TagAllocSet:
		return "AllocSetContext"
	case TagSlab:
		return "SlabContext"
	case TagGeneration:
		return "GenerationContext"
	default:
		return "Invalid"
	}
}

// IsLiveArena reports whether tag is one of the recognized live arena kinds.
func IsLiveArena(tag NodeTag) bool {
	switch tag {
	case TagAllocSet, TagSlab, TagGeneration:
		return true
	}
	return false
}

// AllocFlags modify an allocation request.
type AllocFlags uint8

const (
	// AllocZero zero-fills the returned block.
	AllocZero AllocFlags = 1 << iota
	// AllocNoOOM makes the host return 0 on exhaustion instead of raising.
	AllocNoOOM
)

// Memory represents the host address space.
type Memory interface {
	Read(p Ptr, length uint32) ([]byte, error)
	Write(p Ptr, data []byte) error
	ReadU8(p Ptr) (uint8, error)
	ReadU32(p Ptr) (uint32, error)
	WriteU32(p Ptr, value uint32) error
}

// Host is the set of host entry points the bridge calls. Alloc and the
// functions passed to Intercept may raise the host's abrupt signal; callers
// must only invoke them inside Intercept (see package guard).
type Host interface {
	Memory

	// Alloc requests size bytes from arena.
	Alloc(arena ArenaPtr, size uint32, flags AllocFlags) Ptr

	// Free returns a block previously allocated from arena.
	Free(arena ArenaPtr, p Ptr)

	// ArenaTag reads the node tag of arena.
	ArenaTag(arena ArenaPtr) NodeTag

	// TopArena returns the top-level permanent arena.
	TopArena() ArenaPtr

	// CurrentArena returns the arena implicit allocations target.
	CurrentArena() ArenaPtr

	// SetCurrentArena replaces the current arena.
	SetCurrentArena(arena ArenaPtr)

	// RegisterResetCallback runs fn once, the next time arena is reset or deleted.
	RegisterResetCallback(arena ArenaPtr, fn func())

	// Intercept runs body at a fresh catch point. If the host signal fires
	// inside body, Intercept returns a copy of the captured report.
	Intercept(body func()) *errors.Report

	// Raise reports to the host. For levels at or above errors.LevelError it
	// fires the host signal and does not return.
	Raise(report *errors.Report)
}

// Signal is implemented by the values a host's abrupt signal panics with.
// Go code that recovers panics must re-panic a Signal untouched.
type Signal interface {
	HostSignal()
}

// ArenaInfo describes an arena for diagnostics.
type ArenaInfo struct {
	Name      string
	Global    string
	Tag       NodeTag
	Parent    ArenaPtr
	Allocated uint64
	Children  int
}

// Inspector is optionally implemented by hosts that can describe arenas.
type Inspector interface {
	ArenaInfo(arena ArenaPtr) (ArenaInfo, bool)
}
