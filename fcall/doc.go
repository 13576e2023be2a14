// Package fcall exposes Go functions through the host's function-call
// convention.
//
// A host call frame carries nullable argument slots, their type tags, and a
// null flag for the result. Arg, ArgIsNull and ArgDatum read the slots;
// ReturnNull and ReturnVoid produce the two special results.
//
// Export wraps a Handler into a pgbridge.Function. The handler runs behind a
// guard.Boundary with the host's current arena borrowed for its result, so
// a returned error becomes a host error report:
//
//	fn := fcall.Export(bridge, func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
//	    s, ok, err := fcall.Arg(fc, 0, datum.Text, a.Host())
//	    if err != nil || !ok {
//	        return datum.Null, err
//	    }
//	    return fcall.Encode(bridge, datum.Text, strings.ToUpper(s), a)
//	})
//
// A Registry holds named, overloaded functions and resolves a call by
// argument types with the codec compatibility rules.
package fcall
