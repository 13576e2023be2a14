package datum

import (
	"bytes"
	"strings"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/mem"
)

// CString is the NUL-terminated string codec. Strings with an interior NUL
// cannot be represented and fail to encode.
var CString Codec[string] = cstringCodec{}

// cstringReadStep bounds each read while scanning for the terminator.
const cstringReadStep = 64

type cstringCodec struct{}

func (cstringCodec) TypeOid() Oid { return CStringOid }

func (cstringCodec) IsCompatible(src Oid) bool { return Compatible(CStringOid, src) }

func (cstringCodec) Encode(v string, a mem.Allocator) (NullableDatum, error) {
	if strings.IndexByte(v, 0) >= 0 {
		return Null, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			SQLType("cstring").
			Detail("string contains a NUL byte").
			Build()
	}
	if uint64(len(v))+1 > maxVarlenaSize {
		return Null, errors.EncodingOverflow("cstring", uint64(len(v))+1, maxVarlenaSize)
	}
	buf := make([]byte, len(v)+1)
	copy(buf, v)
	p := a.Alloc(uint32(len(buf)))
	if err := a.Raw().Host().Write(p, buf); err != nil {
		a.Raw().Free(p)
		return Null, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write cstring")
	}
	return NullableDatum{Value: pgbridge.Datum(p)}, nil
}

func (c cstringCodec) Decode(d NullableDatum, src Oid, m pgbridge.Memory) (string, bool, error) {
	if !c.IsCompatible(src) {
		return "", false, mismatch[string](CStringOid, src)
	}
	if d.IsNull {
		return "", false, nil
	}
	s, err := ReadCString(m, pgbridge.Ptr(d.Value))
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// ReadCString reads the NUL-terminated string at p.
func ReadCString(m pgbridge.Memory, p pgbridge.Ptr) (string, error) {
	if p == 0 {
		return "", errors.InvalidData(errors.PhaseDecode, "null cstring pointer")
	}
	var out []byte
	for {
		chunk, err := m.Read(p, cstringReadStep)
		if err != nil {
			// Near the end of mapped memory, fall back to byte reads.
			b, err := m.ReadU8(p)
			if err != nil {
				return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "unterminated cstring")
			}
			chunk = []byte{b}
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk...)
		p += pgbridge.Ptr(len(chunk))
	}
}
