// Package pgbridge lets Go code allocate, own and exchange typed values with a
// C database engine that manages memory in arena hierarchies and reports
// errors with a non-local jump.
//
// The engine ("host") and Go disagree on two things. The host frees memory by
// resetting or deleting whole arenas ("memory contexts") and expects callers to
// allocate from whichever arena the global current-arena slot names. The host
// also reports errors by jumping straight to the nearest catch point, skipping
// every frame in between, while Go relies on returned errors and deferred
// cleanup. This module reconciles both.
//
// # Architecture Overview
//
//	pgbridge/          Root package with the Host and Memory interfaces
//	├── mem/           Arena handles, scoped borrows, the current-arena seam, Owned[T]
//	├── guard/         Error bridge: host signal <-> structured Go error
//	├── datum/         Value codec: Go values <-> tagged datums
//	├── fcall/         Function-call frames and exported entry points
//	├── resource/      Arena-bound handle table for opaque host structures
//	├── errors/        Structured error types and the host diagnostic report
//	├── sim/           In-process host engine used by tests and cmd/pgsim
//	└── cmd/pgsim/     Scenario runner and interactive function caller
//
// # Quick Start
//
// Export a function the host can call:
//
//	b := guard.New(host, nil)
//	upper := fcall.Export(b, func(fc *pgbridge.CallInfo, cx *mem.Borrowed) (datum.NullableDatum, error) {
//	    s, _, err := fcall.Arg(fc, 0, datum.Text, host)
//	    if err != nil {
//	        return datum.Null, err
//	    }
//	    return fcall.Encode(b, datum.Text, strings.ToUpper(s), cx)
//	})
//
// Or register it with overload resolution and strict null handling:
//
//	reg := fcall.NewRegistry(b)
//	reg.MustRegister(fcall.Signature{
//	    Name:   "upper",
//	    Args:   []datum.Oid{datum.TextOid},
//	    Result: datum.TextOid,
//	    Strict: true,
//	}, handler)
//
// Every call into host code that may raise goes through a guard call, so the
// host's jump never crosses Go frames:
//
//	p, err := guard.CallValue(b, func() pgbridge.Ptr {
//	    return arena.Alloc(64)
//	})
//
// # Memory Rules
//
// Pass the arena explicitly (a mem.Allocator) to every Go function that
// allocates on behalf of its caller. The current-arena slot is only for host
// entry points that read it implicitly; set it with mem.MakeCurrent around
// those calls and nothing else.
//
// Never reset or delete an arena while a mem.Borrowed for it is alive. Only
// the current arena and the top arena can be borrowed from safe code.
//
// # Thread Safety
//
// The host runs one logical thread per call. Nothing in mem, guard, datum or
// fcall is safe for concurrent use from several goroutines against one host.
package pgbridge
