package datum

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/mem"
)

const (
	// VarHdrSize is the size of the 4-byte varlena header.
	VarHdrSize = 4

	// MaxVarlenaSize is the largest total length a 4-byte header can hold.
	MaxVarlenaSize = 0x3FFFFFFF
)

// maxVarlenaSize is the enforced limit. Tests lower it.
var maxVarlenaSize uint64 = MaxVarlenaSize

// VarlenaSize returns the total encoded length of a payload of n bytes, or
// an encoding_overflow error if it does not fit a header.
func VarlenaSize(sqlType string, n int) (uint32, error) {
	total := uint64(n) + VarHdrSize
	if total > maxVarlenaSize {
		return 0, errors.EncodingOverflow(sqlType, total, maxVarlenaSize)
	}
	return uint32(total), nil
}

// WriteVarlena allocates a varlena in a and copies payload into it. The
// size is checked before anything is allocated.
func WriteVarlena(sqlType string, payload []byte, a mem.Allocator) (pgbridge.Ptr, error) {
	total, err := VarlenaSize(sqlType, len(payload))
	if err != nil {
		return 0, err
	}
	p := a.Alloc(total)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf, total<<2)
	copy(buf[VarHdrSize:], payload)
	if err := a.Raw().Host().Write(p, buf); err != nil {
		a.Raw().Free(p)
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write varlena")
	}
	return p, nil
}

// ReadVarlena returns a copy of the payload of the varlena at p. Both
// header forms are accepted; compressed and external values are not.
func ReadVarlena(m pgbridge.Memory, p pgbridge.Ptr) ([]byte, error) {
	if p == 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, "null varlena pointer")
	}
	first, err := m.ReadU8(p)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read varlena header")
	}

	var off, n uint32
	if first&0x01 != 0 {
		if first == 0x01 {
			return nil, errors.Unsupported(errors.PhaseDecode, "external varlena")
		}
		off, n = 1, uint32(first>>1)
		if n < 1 {
			return nil, errors.InvalidData(errors.PhaseDecode, "short varlena header too small")
		}
	} else {
		hdr, err := m.ReadU32(p)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read varlena header")
		}
		if hdr&0x03 == 0x02 {
			return nil, errors.Unsupported(errors.PhaseDecode, "compressed varlena")
		}
		off, n = VarHdrSize, hdr>>2
		if n < VarHdrSize {
			return nil, errors.InvalidData(errors.PhaseDecode, fmt.Sprintf("varlena length %d below header size", n))
		}
	}

	data, err := m.Read(p+pgbridge.Ptr(off), n-off)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read varlena payload")
	}
	return bytes.Clone(data), nil
}

// CopyVarlena copies the varlena at p into dst, normalising to a 4-byte
// header.
func CopyVarlena(p pgbridge.Ptr, dst mem.Allocator) (pgbridge.Ptr, error) {
	payload, err := ReadVarlena(dst.Raw().Host(), p)
	if err != nil {
		return 0, err
	}
	return WriteVarlena("varlena", payload, dst)
}

// varlena is a by-reference codec over a varlena payload.
type varlena[T any] struct {
	toBytes   func(T) []byte
	fromBytes func([]byte) T
	oid       Oid
}

func (c varlena[T]) TypeOid() Oid { return c.oid }

func (c varlena[T]) IsCompatible(src Oid) bool { return Compatible(c.oid, src) }

func (c varlena[T]) Encode(v T, a mem.Allocator) (NullableDatum, error) {
	p, err := WriteVarlena(TypeName(c.oid), c.toBytes(v), a)
	if err != nil {
		return Null, err
	}
	return NullableDatum{Value: pgbridge.Datum(p)}, nil
}

func (c varlena[T]) Decode(d NullableDatum, src Oid, m pgbridge.Memory) (T, bool, error) {
	var zero T
	if !c.IsCompatible(src) {
		return zero, false, mismatch[T](c.oid, src)
	}
	if d.IsNull {
		return zero, false, nil
	}
	payload, err := ReadVarlena(m, pgbridge.Ptr(d.Value))
	if err != nil {
		return zero, false, err
	}
	return c.fromBytes(payload), true, nil
}

func stringBytes(s string) []byte { return []byte(s) }
func bytesString(b []byte) string { return string(b) }
func identity(b []byte) []byte { return b }

// By-reference varlena codecs.
var (
	Text    Codec[string] = varlena[string]{oid: TextOid, toBytes: stringBytes, fromBytes: bytesString}
	Varchar Codec[string] = varlena[string]{oid: VarcharOid, toBytes: stringBytes, fromBytes: bytesString}
	Bytea   Codec[[]byte] = varlena[[]byte]{oid: ByteaOid, toBytes: identity, fromBytes: identity}
)
