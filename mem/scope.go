package mem

import (
	"sync"

	"github.com/wippyai/pgbridge"
)

type pendingFree struct {
	live  *liveness
	arena RawArena
	ptr   pgbridge.Ptr
}

// Scope collects blocks that must be freed when the enclosing function exits,
// whatever the exit path:
//
//	s := mem.NewScope()
//	defer s.Release()
//	tmp := s.Alloc(cx, 128)
type Scope struct {
	pending []pendingFree
}

var scopePool = sync.Pool{
	New: func() any {
		return &Scope{pending: make([]pendingFree, 0, 8)}
	},
}

const maxPooledScopeCapacity = 128

// NewScope returns an empty scope from the pool.
func NewScope() *Scope {
	return scopePool.Get().(*Scope)
}

// Alloc allocates size bytes from a and schedules them for release.
func (s *Scope) Alloc(a Allocator, size uint32) pgbridge.Ptr {
	p := a.Alloc(size)
	s.Defer(a, p)
	return p
}

// Defer schedules p, allocated from a, to be freed on Release.
func (s *Scope) Defer(a Allocator, p pgbridge.Ptr) {
	if p == 0 {
		return
	}
	raw := a.Raw()
	s.pending = append(s.pending, pendingFree{arena: raw, ptr: p, live: track(raw)})
}

// Keep removes p from the scope so Release leaves it alone.
func (s *Scope) Keep(p pgbridge.Ptr) bool {
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].ptr == p {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of pending blocks.
func (s *Scope) Len() int {
	return len(s.pending)
}

// Release frees every pending block, newest first, and returns the scope to
// the pool. The scope must not be used afterwards.
func (s *Scope) Release() {
	for i := len(s.pending) - 1; i >= 0; i-- {
		f := s.pending[i]
		if f.live.dead() {
			continue
		}
		f.arena.Free(f.ptr)
	}
	// Only pool small scopes to prevent memory bloat
	if cap(s.pending) > maxPooledScopeCapacity {
		return
	}
	clear(s.pending)
	s.pending = s.pending[:0]
	scopePool.Put(s)
}
