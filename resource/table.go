package resource

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/mem"
)

// Table maps handles to Go values whose lifetime is bound to a host arena.
//
// When an owning arena is reset or deleted, every value it owns is dropped
// and its handles stop resolving.
type Table struct {
	host      pgbridge.Host
	backend   *LocalBackend
	watched   map[pgbridge.ArenaPtr]struct{}
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
}

// NewTable creates a table for values owned by arenas of h.
func NewTable(h pgbridge.Host) *Table {
	return &Table{
		host:    h,
		backend: NewLocalBackend(),
		watched: make(map[pgbridge.ArenaPtr]struct{}),
	}
}

func handleName(h Handle) string {
	return fmt.Sprintf("%#x", uint32(h))
}

// Insert stores value as owned by a's arena.
func (t *Table) Insert(a mem.Allocator, kind Kind, value any) (Handle, error) {
	arena := a.Raw()
	if !arena.Valid() {
		return 0, errors.InvalidInput(errors.PhaseMemory, fmt.Sprintf("arena %#x is not live", uintptr(arena.Ptr())))
	}
	handle, err := t.backend.Create(kind, arena.Ptr(), value)
	if err != nil {
		return 0, err
	}
	t.watch(arena.Ptr())

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Kind:   kind,
		Arena:  arena.Ptr(),
		Value:  value,
	})
	return handle, nil
}

// watch registers one reset callback per arena epoch.
func (t *Table) watch(arena pgbridge.ArenaPtr) {
	t.mu.Lock()
	_, ok := t.watched[arena]
	if !ok {
		t.watched[arena] = struct{}{}
	}
	t.mu.Unlock()
	if !ok {
		t.host.RegisterResetCallback(arena, func() { t.invalidate(arena) })
	}
}

func (t *Table) invalidate(arena pgbridge.ArenaPtr) {
	t.mu.Lock()
	delete(t.watched, arena)
	t.mu.Unlock()

	dropped := t.backend.DropArena(arena)
	if len(dropped) > 0 {
		Logger().Debug("arena reset invalidated resources",
			zap.Uintptr("arena", uintptr(arena)),
			zap.Int("count", len(dropped)))
	}
	for _, d := range dropped {
		if dr, ok := d.Value.(Dropper); ok {
			dr.Drop()
		}
		t.notify(Event{
			Type:   EventInvalidated,
			Handle: d.Handle,
			Kind:   d.Kind,
			Arena:  d.Arena,
			Value:  d.Value,
		})
	}
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it is of the expected kind.
func (t *Table) GetTyped(handle Handle, kind Kind) (any, bool) {
	k, _, ok := t.backend.Info(handle)
	if !ok || k != kind {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Arena returns the arena that owns handle.
func (t *Table) Arena(handle Handle) (pgbridge.ArenaPtr, bool) {
	_, a, ok := t.backend.Info(handle)
	return a, ok
}

// Borrow marks handle as in use. A borrowed handle cannot be removed, but is
// still invalidated by a reset of its arena.
func (t *Table) Borrow(handle Handle) bool {
	if !t.backend.Borrow(handle) {
		return false
	}
	t.notify(Event{Type: EventBorrowed, Handle: handle})
	return true
}

// ReturnBorrow ends one Borrow of handle.
func (t *Table) ReturnBorrow(handle Handle) bool {
	if !t.backend.ReturnBorrow(handle) {
		return false
	}
	t.notify(Event{Type: EventBorrowReturned, Handle: handle})
	return true
}

// Remove drops a resource, calling its Dropper, and returns its value.
func (t *Table) Remove(handle Handle) (any, error) {
	d, err := t.backend.Drop(handle)
	if err != nil {
		return nil, err
	}

	if dr, ok := d.Value.(Dropper); ok {
		dr.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   d.Kind,
		Arena:  d.Arena,
		Value:  d.Value,
	})
	return d.Value, nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of active resources.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over all active resources. fn must not modify the table.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	t.backend.Each(fn)
}

// Close drops all resources and stops accepting new ones. Reset callbacks
// already registered with the host become no-ops.
func (t *Table) Close() error {
	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// Typed is a view of a table holding values of one Go type under one kind.
type Typed[T any] struct {
	table *Table
	kind  Kind
}

// NewTyped creates a typed view of t for kind.
func NewTyped[T any](t *Table, kind Kind) *Typed[T] {
	return &Typed[T]{table: t, kind: kind}
}

// Insert stores v as owned by a's arena.
func (tt *Typed[T]) Insert(a mem.Allocator, v T) (Handle, error) {
	return tt.table.Insert(a, tt.kind, v)
}

// Get retrieves the value for handle.
func (tt *Typed[T]) Get(handle Handle) (T, bool) {
	v, ok := tt.table.GetTyped(handle, tt.kind)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Remove drops the value for handle.
func (tt *Typed[T]) Remove(handle Handle) (T, error) {
	var zero T
	if _, ok := tt.table.GetTyped(handle, tt.kind); !ok {
		return zero, errors.NotFound(errors.PhaseMemory, fmt.Sprintf("resource of kind %d", tt.kind), handleName(handle))
	}
	v, err := tt.table.Remove(handle)
	if err != nil {
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

// Len returns the number of values of this kind.
func (tt *Typed[T]) Len() int {
	n := 0
	tt.Each(func(Handle, T) bool {
		n++
		return true
	})
	return n
}

// Each iterates over the values of this kind.
func (tt *Typed[T]) Each(fn func(Handle, T) bool) {
	tt.table.Each(func(h Handle, k Kind, v any) bool {
		if k != tt.kind {
			return true
		}
		typed, ok := v.(T)
		if !ok {
			return true
		}
		return fn(h, typed)
	})
}
