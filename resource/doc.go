// Package resource provides arena-bound handle tables.
//
// Go values referenced from host memory, or from each other across an
// arena-resident structure, must not be held by raw pointer: the arena can
// be reset out from under them. A Table hands out integer handles instead
// and ties every value to the arena that owns it.
//
//	table := resource.NewTable(host)
//
//	// Insert a value owned by an arena
//	h, err := table.Insert(arena, NodeKind, node)
//
//	// Resolve it later
//	v, ok := table.Get(h)
//
//	// Remove it explicitly...
//	v, err = table.Remove(h)
//
//	// ...or let the arena take it: after a reset, Get(h) reports false
//
// Handles carry a generation, so a handle whose slot was reused does not
// resolve to the new occupant.
//
// # Type Safety
//
// Each kind of value gets a caller-chosen Kind. GetTyped checks it, and
// Typed wraps a table for a single Go type:
//
//	nodes := resource.NewTyped[*Node](table, NodeKind)
//	h, _ := nodes.Insert(arena, n)
//	n, ok := nodes.Get(h)
//
// # Observers
//
// Observers see every lifecycle event, including EventInvalidated for values
// dropped by an arena reset. Values implementing Dropper are dropped on
// Remove, on invalidation, and on Close.
package resource
