// Package sim is an in-process host engine that implements pgbridge.Host.
//
// It models the parts of the host the bridge depends on: a tree of arenas
// (AllocSet, Slab and Generation nodes) with bump allocation in chunks, bulk
// reset and delete that take all descendants with them, reset callbacks, the
// current-arena slot, and an abrupt error signal. The signal is a Go panic
// carrying a pointer to error data stored in the engine's ErrorContext arena;
// Intercept is the engine's catch point and Call is its top-level loop.
//
// # Usage
//
//	e := sim.New()
//	qctx, _ := e.NewContext(e.MessageContext(), "PerQuery", pgbridge.TagAllocSet)
//	e.SetCurrentArena(qctx)
//
//	res, err := e.Call(fn, &pgbridge.CallInfo{Args: args})
//	if err != nil {
//	    // err carries the report the function raised
//	}
//	defer res.Close()
//
// Engines can also be built from TOML scenario files, see LoadScenario.
//
// Only the host side uses the tree-shaping methods (NewContext, Reset,
// Delete, SetParent). Bridge code reaches the engine through pgbridge.Host.
package sim
