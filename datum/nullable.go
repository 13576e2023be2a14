package datum

import (
	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/mem"
)

// Nullable lifts c to pointers: nil encodes as the null datum without
// allocating, and a null datum decodes to nil.
func Nullable[T any](c Codec[T]) Codec[*T] {
	return nullable[T]{inner: c}
}

type nullable[T any] struct {
	inner Codec[T]
}

func (c nullable[T]) TypeOid() Oid { return c.inner.TypeOid() }

func (c nullable[T]) IsCompatible(src Oid) bool { return c.inner.IsCompatible(src) }

func (c nullable[T]) Encode(v *T, a mem.Allocator) (NullableDatum, error) {
	if v == nil {
		return Null, nil
	}
	return c.inner.Encode(*v, a)
}

func (c nullable[T]) Decode(d NullableDatum, src Oid, m pgbridge.Memory) (*T, bool, error) {
	v, ok, err := c.inner.Decode(d, src, m)
	if err != nil || !ok {
		return nil, false, err
	}
	return &v, true, nil
}
