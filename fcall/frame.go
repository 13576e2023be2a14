package fcall

import (
	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/datum"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/guard"
	"github.com/wippyai/pgbridge/mem"
)

// NArgs returns the number of argument slots.
func NArgs(fc *pgbridge.CallInfo) int {
	return len(fc.Args)
}

// ArgDatum returns argument slot i. ok is false when there is no such slot.
func ArgDatum(fc *pgbridge.CallInfo, i int) (d datum.NullableDatum, ok bool) {
	if i < 0 || i >= len(fc.Args) {
		return datum.Null, false
	}
	return fc.Args[i], true
}

// ArgIsNull reports whether slot i is null. Missing slots count as null.
func ArgIsNull(fc *pgbridge.CallInfo, i int) bool {
	d, ok := ArgDatum(fc, i)
	return !ok || d.IsNull
}

// ArgType returns the type tag of slot i, or pgbridge.InvalidOid if the
// frame does not carry one.
func ArgType(fc *pgbridge.CallInfo, i int) datum.Oid {
	if i < 0 || i >= len(fc.ArgTypes) {
		return pgbridge.InvalidOid
	}
	return fc.ArgTypes[i]
}

// Arg decodes slot i with c. A slot without a type tag is taken to be of
// the codec's own type. ok is false for a null argument.
func Arg[T any](fc *pgbridge.CallInfo, i int, c datum.Codec[T], m pgbridge.Memory) (v T, ok bool, err error) {
	d, present := ArgDatum(fc, i)
	if !present {
		return v, false, errors.OutOfBounds(errors.PhaseCall, i, len(fc.Args))
	}
	src := ArgType(fc, i)
	if src == pgbridge.InvalidOid {
		src = c.TypeOid()
	}
	return c.Decode(d, src, m)
}

// ReturnNull marks the result null.
func ReturnNull(fc *pgbridge.CallInfo) pgbridge.Datum {
	fc.IsNull = true
	return 0
}

// ReturnVoid returns the non-null void result.
func ReturnVoid(fc *pgbridge.CallInfo) pgbridge.Datum {
	fc.IsNull = false
	return 0
}

// Handler implements an exported function. a is the host's current arena at
// call time; by-reference results are encoded into it.
type Handler func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error)

// Export adapts fn to the host calling convention. Errors returned or thrown
// by fn, and Go panics, are raised to the host by b's boundary; the function
// then does not return to its caller.
func Export(b *guard.Bridge, fn Handler) pgbridge.Function {
	return func(fc *pgbridge.CallInfo) pgbridge.Datum {
		out := datum.Null
		b.Boundary(func() error {
			return mem.BorrowCurrent(b.Host(), func(a *mem.Borrowed) error {
				d, err := fn(fc, a)
				if err != nil {
					return err
				}
				out = d
				return nil
			})
		})
		fc.IsNull = out.IsNull
		return out.Value
	}
}

// Encode runs c.Encode at a guarded call so a host allocation failure comes
// back as a host_signaled error instead of a signal.
func Encode[T any](b *guard.Bridge, c datum.Codec[T], v T, a mem.Allocator) (datum.NullableDatum, error) {
	var encErr error
	d, err := guard.CallValue(b, func() datum.NullableDatum {
		enc, err := c.Encode(v, a)
		encErr = err
		return enc
	})
	if err != nil {
		return datum.Null, err
	}
	if encErr != nil {
		return datum.Null, encErr
	}
	return d, nil
}
