package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/datum"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/fcall"
	"github.com/wippyai/pgbridge/guard"
	"github.com/wippyai/pgbridge/mem"
	"github.com/wippyai/pgbridge/resource"
)

const stashKind resource.Kind = 1

const (
	textOid    = datum.TextOid
	int4Oid    = datum.Int4Oid
	int8Oid    = datum.Int8Oid
	byteaOid   = datum.ByteaOid
	cstringOid = datum.CStringOid
	voidOid    = datum.VoidOid
)

func sig(name string, result datum.Oid, args ...datum.Oid) fcall.Signature {
	return fcall.Signature{Name: name, Args: args, Result: result, Strict: true}
}

func arg2[A, B any](fc *pgbridge.CallInfo, m pgbridge.Memory, ca datum.Codec[A], cb datum.Codec[B]) (A, B, error) {
	var b B
	a, _, err := fcall.Arg(fc, 0, ca, m)
	if err != nil {
		return a, b, err
	}
	b, _, err = fcall.Arg(fc, 1, cb, m)
	return a, b, err
}

func errDivisionByZero() error {
	const msg = "division by zero"
	return errors.New(errors.PhaseCall, errors.KindInvalidInput).
		Detail(msg).
		Report(&errors.Report{Level: errors.LevelError, Code: errors.CodeDivisionByZero, Message: msg}).
		Build()
}

func errIntRange() error {
	return errors.InvalidInput(errors.PhaseCall, "integer out of range")
}

// registerFunctions installs the demo functions. All but coalesce are
// strict.
func (s *session) registerFunctions() {
	r := s.registry
	b := s.bridge
	m := s.engine
	stash := resource.NewTyped[string](s.resources, stashKind)

	r.MustRegister(sig("concat", textOid, textOid, textOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		x, y, err := arg2(fc, m, datum.Text, datum.Text)
		if err != nil {
			return datum.Null, err
		}
		return fcall.Encode(b, datum.Text, x+y, a)
	})

	r.MustRegister(fcall.Signature{Name: "coalesce", Args: []datum.Oid{textOid, textOid}, Result: textOid},
		func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
			for i := 0; i < fcall.NArgs(fc); i++ {
				if fcall.ArgIsNull(fc, i) {
					continue
				}
				v, _, err := fcall.Arg(fc, i, datum.Nullable(datum.Text), m)
				if err != nil {
					return datum.Null, err
				}
				return fcall.Encode(b, datum.Nullable(datum.Text), v, a)
			}
			return datum.Null, nil
		})

	r.MustRegister(sig("int4_div", int4Oid, int4Oid, int4Oid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		x, y, err := arg2(fc, m, datum.Int4, datum.Int4)
		if err != nil {
			return datum.Null, err
		}
		if y == 0 {
			return datum.Null, errDivisionByZero()
		}
		if x == math.MinInt32 && y == -1 {
			return datum.Null, errIntRange()
		}
		return datum.Int4.Encode(x/y, a)
	})

	r.MustRegister(sig("add", int4Oid, int4Oid, int4Oid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		x, y, err := arg2(fc, m, datum.Int4, datum.Int4)
		if err != nil {
			return datum.Null, err
		}
		sum := int64(x) + int64(y)
		if sum < math.MinInt32 || sum > math.MaxInt32 {
			return datum.Null, errIntRange()
		}
		return datum.Int4.Encode(int32(sum), a)
	})

	r.MustRegister(sig("add", int8Oid, int8Oid, int8Oid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		x, y, err := arg2(fc, m, datum.Int8, datum.Int8)
		if err != nil {
			return datum.Null, err
		}
		sum := x + y
		if (x > 0 && y > 0 && sum < 0) || (x < 0 && y < 0 && sum >= 0) {
			return datum.Null, errIntRange()
		}
		return datum.Int8.Encode(sum, a)
	})

	r.MustRegister(sig("upper", textOid, textOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		v, _, err := fcall.Arg(fc, 0, datum.Text, m)
		if err != nil {
			return datum.Null, err
		}
		return fcall.Encode(b, datum.Text, strings.ToUpper(v), a)
	})

	r.MustRegister(sig("repeat", textOid, textOid, int4Oid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		v, n, err := arg2(fc, m, datum.Text, datum.Int4)
		if err != nil {
			return datum.Null, err
		}
		if n < 0 {
			n = 0
		}
		if size := uint64(len(v)) * uint64(n); size+datum.VarHdrSize > datum.MaxVarlenaSize {
			return datum.Null, errors.EncodingOverflow("text", size+datum.VarHdrSize, datum.MaxVarlenaSize)
		}
		return fcall.Encode(b, datum.Text, strings.Repeat(v, int(n)), a)
	})

	r.MustRegister(sig("length", int4Oid, byteaOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		v, _, err := fcall.Arg(fc, 0, datum.Bytea, m)
		if err != nil {
			return datum.Null, err
		}
		return datum.Int4.Encode(int32(len(v)), a)
	})

	r.MustRegister(sig("echo", cstringOid, cstringOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		v, _, err := fcall.Arg(fc, 0, datum.CString, m)
		if err != nil {
			return datum.Null, err
		}
		return fcall.Encode(b, datum.CString, v, a)
	})

	r.MustRegister(sig("raise", voidOid, textOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		msg, _, err := fcall.Arg(fc, 0, datum.Text, m)
		if err != nil {
			return datum.Null, err
		}
		err = b.Call(func() {
			a.Host().Raise(&errors.Report{Level: errors.LevelError, Code: errors.CodeRaiseException, Message: msg})
		})
		return datum.Null, err
	})

	r.MustRegister(sig("notice", voidOid, textOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		msg, _, err := fcall.Arg(fc, 0, datum.Text, m)
		if err != nil {
			return datum.Null, err
		}
		if err := b.Call(func() {
			a.Host().Raise(&errors.Report{Level: errors.LevelNotice, Code: errors.CodeSuccessfulCompletion, Message: msg})
		}); err != nil {
			return datum.Null, err
		}
		return datum.Void.Encode(struct{}{}, a)
	})

	r.MustRegister(sig("go_panic", voidOid), func(*pgbridge.CallInfo, *mem.Borrowed) (datum.NullableDatum, error) {
		panic("go_panic called")
	})

	r.MustRegister(sig("throw", voidOid, textOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		msg, _, err := fcall.Arg(fc, 0, datum.Text, m)
		if err != nil {
			return datum.Null, err
		}
		guard.Throw(errors.InvalidInput(errors.PhaseCall, msg))
		return datum.Null, nil
	})

	r.MustRegister(sig("stash", int8Oid, textOid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		v, _, err := fcall.Arg(fc, 0, datum.Text, m)
		if err != nil {
			return datum.Null, err
		}
		owner := mem.FromRaw(s.engine, s.engine.TopTransactionContext())
		h, err := stash.Insert(owner, v)
		if err != nil {
			return datum.Null, err
		}
		return datum.Int8.Encode(int64(h), a)
	})

	r.MustRegister(sig("unstash", textOid, int8Oid), func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		h, _, err := fcall.Arg(fc, 0, datum.Int8, m)
		if err != nil {
			return datum.Null, err
		}
		if h < 0 || h > math.MaxUint32 {
			return datum.Null, errors.InvalidInput(errors.PhaseCall, fmt.Sprintf("handle %d out of range", h))
		}
		v, ok := stash.Get(resource.Handle(h))
		if !ok {
			return datum.Null, nil
		}
		return fcall.Encode(b, datum.Text, v, a)
	})
}
