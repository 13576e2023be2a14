// Package datum converts Go values to and from the host's tagged binary
// value representation.
//
// A datum is a machine word. By-value kinds (bool, "char", int2, int4, oid,
// int8, float4, float8, void) are packed into the word itself; floats keep
// their IEEE-754 bit pattern and signed integers are sign-extended. Other
// kinds store a Ptr to a varlena in host memory: a 4-byte little-endian
// header holding the total length shifted left by two, followed by the
// payload.
//
// Every codec names its own type tag and a one-directional compatibility
// set. Int4 accepts "char" and int2 sources, but Int2 never accepts int4.
//
//	d, err := datum.Text.Encode("hello", arena) // 9 bytes: 4 header + 5 payload
//	s, ok, err := datum.Text.Decode(d, datum.VarcharOid, host)
//
// Encoding a by-reference value allocates from the given arena, which may
// fire the host signal, so encoders run inside a guard call.
package datum
