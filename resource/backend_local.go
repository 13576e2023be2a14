package resource

import (
	"sync"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

var (
	ErrClosed            = errors.InvalidInput(errors.PhaseMemory, "resource table closed")
	ErrOutstandingBorrow = errors.InvalidInput(errors.PhaseMemory, "cannot drop resource with outstanding borrows")
	ErrFull              = errors.InvalidInput(errors.PhaseMemory, "resource table full")
)

// LocalBackend is the in-memory slot store behind a Table, with borrow
// tracking and per-arena ownership.
type LocalBackend struct {
	entries  []entry
	freeList []uint32
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value       any
	arena       pgbridge.ArenaPtr
	kind        Kind
	borrowCount uint32
	gen         uint8
	valid       bool
}

// Dropped is a value removed from the backend.
type Dropped struct {
	Value  any
	Arena  pgbridge.ArenaPtr
	Handle Handle
	Kind   Kind
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Create stores value as owned by arena and returns its handle.
func (b *LocalBackend) Create(kind Kind, arena pgbridge.ArenaPtr, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	if n := len(b.freeList); n > 0 {
		slot := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		e := &b.entries[slot-1]
		e.gen++
		if e.gen == 0 {
			e.gen = 1
		}
		e.value, e.arena, e.kind, e.valid = value, arena, kind, true
		return makeHandle(slot, e.gen), nil
	}

	if len(b.entries) >= maxSlots {
		return 0, ErrFull
	}
	b.entries = append(b.entries, entry{
		value: value,
		arena: arena,
		kind:  kind,
		gen:   1,
		valid: true,
	})
	return makeHandle(uint32(len(b.entries)), 1), nil
}

// lookup returns the live entry for handle. Callers hold b.mu.
func (b *LocalBackend) lookup(handle Handle) *entry {
	slot := handle.slot()
	if slot == 0 || int(slot) > len(b.entries) {
		return nil
	}
	e := &b.entries[slot-1]
	if !e.valid || e.gen != handle.gen() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Info returns the kind and owning arena of handle.
func (b *LocalBackend) Info(handle Handle) (Kind, pgbridge.ArenaPtr, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, 0, false
	}
	return e.kind, e.arena, true
}

// Drop removes a resource. It fails for unknown handles and for handles
// with outstanding borrows.
func (b *LocalBackend) Drop(handle Handle) (Dropped, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return Dropped{}, errors.NotFound(errors.PhaseMemory, "resource", handleName(handle))
	}
	if e.borrowCount > 0 {
		return Dropped{}, ErrOutstandingBorrow
	}
	return b.release(handle.slot()), nil
}

// DropArena removes every resource owned by arena, borrowed or not, and
// returns them in slot order.
func (b *LocalBackend) DropArena(arena pgbridge.ArenaPtr) []Dropped {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Dropped
	for i := range b.entries {
		if b.entries[i].valid && b.entries[i].arena == arena {
			out = append(out, b.release(uint32(i+1)))
		}
	}
	return out
}

func (b *LocalBackend) release(slot uint32) Dropped {
	e := &b.entries[slot-1]
	d := Dropped{
		Value:  e.value,
		Arena:  e.arena,
		Handle: makeHandle(slot, e.gen),
		Kind:   e.kind,
	}
	e.valid = false
	e.value = nil
	e.arena = 0
	e.borrowCount = 0
	b.freeList = append(b.freeList, slot)
	return d
}

// Close drops all resources, calling Dropper on each, and stops accepting
// new ones.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var values []any
	for i := range b.entries {
		if b.entries[i].valid {
			values = append(values, b.entries[i].value)
		}
	}
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	for _, v := range values {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

// Borrow increments the borrow count for a handle.
func (b *LocalBackend) Borrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return false
	}
	e.borrowCount++
	return true
}

// ReturnBorrow decrements the borrow count for a handle.
func (b *LocalBackend) ReturnBorrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil || e.borrowCount == 0 {
		return false
	}
	e.borrowCount--
	return true
}

// Len returns the number of active resources.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all active resources.
func (b *LocalBackend) Each(fn func(Handle, Kind, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(makeHandle(uint32(i+1), e.gen), e.kind, e.value) {
				break
			}
		}
	}
}
