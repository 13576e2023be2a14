package datum

import (
	"fmt"
	"math"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/mem"
)

// Codec converts between a Go type and one host kind.
type Codec[T any] interface {
	// TypeOid is the tag of datums this codec produces.
	TypeOid() Oid

	// IsCompatible reports whether Decode accepts datums tagged src.
	IsCompatible(src Oid) bool

	// Encode converts v into a datum. By-reference kinds allocate from a.
	Encode(v T, a mem.Allocator) (NullableDatum, error)

	// Decode converts d, tagged src, back into a Go value. The bool is
	// false when d is null.
	Decode(d NullableDatum, src Oid, m pgbridge.Memory) (T, bool, error)
}

// scalar is a by-value codec. Encoding never allocates.
type scalar[T any] struct {
	enc func(T) pgbridge.Datum
	dec func(pgbridge.Datum) T
	oid Oid
}

func (c scalar[T]) TypeOid() Oid { return c.oid }

func (c scalar[T]) IsCompatible(src Oid) bool { return Compatible(c.oid, src) }

func (c scalar[T]) Encode(v T, _ mem.Allocator) (NullableDatum, error) {
	return NullableDatum{Value: c.enc(v)}, nil
}

func (c scalar[T]) Decode(d NullableDatum, src Oid, _ pgbridge.Memory) (T, bool, error) {
	var zero T
	if !c.IsCompatible(src) {
		return zero, false, mismatch[T](c.oid, src)
	}
	if d.IsNull {
		return zero, false, nil
	}
	return c.dec(d.Value), true, nil
}

func mismatch[T any](target, src Oid) error {
	var zero T
	return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
		GoType(fmt.Sprintf("%T", zero)).
		SQLType(TypeName(target)).
		Detail("datum of type %s is not compatible", TypeName(src)).
		Build()
}

func signed(d pgbridge.Datum) int64 { return int64(d) }
func extend(v int64) pgbridge.Datum { return pgbridge.Datum(uint64(v)) }

// By-value codecs.
var (
	Bool Codec[bool] = scalar[bool]{
		oid: BoolOid,
		enc: func(v bool) pgbridge.Datum {
			if v {
				return 1
			}
			return 0
		},
		dec: func(d pgbridge.Datum) bool { return d&0xff != 0 },
	}

	Char Codec[int8] = scalar[int8]{
		oid: CharOid,
		enc: func(v int8) pgbridge.Datum { return extend(int64(v)) },
		dec: func(d pgbridge.Datum) int8 { return int8(signed(d)) },
	}

	Int2 Codec[int16] = scalar[int16]{
		oid: Int2Oid,
		enc: func(v int16) pgbridge.Datum { return extend(int64(v)) },
		dec: func(d pgbridge.Datum) int16 { return int16(signed(d)) },
	}

	Int4 Codec[int32] = scalar[int32]{
		oid: Int4Oid,
		enc: func(v int32) pgbridge.Datum { return extend(int64(v)) },
		dec: func(d pgbridge.Datum) int32 { return int32(signed(d)) },
	}

	Int8 Codec[int64] = scalar[int64]{
		oid: Int8Oid,
		enc: extend,
		dec: signed,
	}

	Float4 Codec[float32] = scalar[float32]{
		oid: Float4Oid,
		enc: func(v float32) pgbridge.Datum { return pgbridge.Datum(math.Float32bits(v)) },
		dec: func(d pgbridge.Datum) float32 { return math.Float32frombits(uint32(d)) },
	}

	Float8 Codec[float64] = scalar[float64]{
		oid: Float8Oid,
		enc: func(v float64) pgbridge.Datum { return pgbridge.Datum(math.Float64bits(v)) },
		dec: func(d pgbridge.Datum) float64 { return math.Float64frombits(uint64(d)) },
	}

	// Void encodes as a non-null zero word.
	Void Codec[struct{}] = scalar[struct{}]{
		oid: VoidOid,
		enc: func(struct{}) pgbridge.Datum { return 0 },
		dec: func(pgbridge.Datum) struct{} { return struct{}{} },
	}
)

// ObjectID is the oid codec. The invalid oid encodes as null.
var ObjectID Codec[Oid] = oidCodec{}

type oidCodec struct{}

func (oidCodec) TypeOid() Oid { return OidOid }

func (oidCodec) IsCompatible(src Oid) bool { return Compatible(OidOid, src) }

func (oidCodec) Encode(v Oid, _ mem.Allocator) (NullableDatum, error) {
	if v == pgbridge.InvalidOid {
		return Null, nil
	}
	return NullableDatum{Value: pgbridge.Datum(v)}, nil
}

func (c oidCodec) Decode(d NullableDatum, src Oid, _ pgbridge.Memory) (Oid, bool, error) {
	if !c.IsCompatible(src) {
		return 0, false, mismatch[Oid](OidOid, src)
	}
	if d.IsNull {
		return 0, false, nil
	}
	return Oid(uint32(d.Value)), true, nil
}
