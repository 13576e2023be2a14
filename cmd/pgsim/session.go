package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/datum"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/fcall"
	"github.com/wippyai/pgbridge/guard"
	"github.com/wippyai/pgbridge/mem"
	"github.com/wippyai/pgbridge/resource"
	"github.com/wippyai/pgbridge/sim"
)

// session is an engine with the demo functions registered against it.
type session struct {
	engine    *sim.Engine
	bridge    *guard.Bridge
	registry  *fcall.Registry
	resources *resource.Table
	arenas    map[string]pgbridge.ArenaPtr
}

func newSession(sc *sim.Scenario) (*session, error) {
	if sc == nil {
		sc = &sim.Scenario{}
	}
	e, arenas, err := sc.Build()
	if err != nil {
		return nil, err
	}
	b := guard.New(e, &guard.Config{CaptureLocation: true})
	s := &session{
		engine:    e,
		bridge:    b,
		registry:  fcall.NewRegistry(b),
		resources: resource.NewTable(e),
		arenas:    arenas,
	}
	s.registerFunctions()
	return s, nil
}

func (s *session) Close() error {
	return s.resources.Close()
}

// arg is a typed call argument before encoding.
type arg struct {
	value any
	typ   datum.Oid
	null  bool
}

// outcome is what a call produced: a value, a null, or a host report.
type outcome struct {
	report *errors.Report
	value  string
	sig    fcall.Signature
	null   bool
}

func (o outcome) String() string {
	switch {
	case o.report != nil:
		return o.report.String()
	case o.null:
		return "NULL"
	default:
		return o.value
	}
}

// call resolves name against the argument types and runs it on the engine
// the way the executor would. Resolution failures come back as reports.
func (s *session) call(name string, args []arg, cancel bool) (outcome, error) {
	types := make([]datum.Oid, len(args))
	for i, a := range args {
		types[i] = a.typ
	}
	entry, err := s.registry.Resolve(name, types)
	if err != nil {
		return outcome{report: errors.ReportFor(err)}, nil
	}
	out := outcome{sig: entry.Signature}

	argCtx, err := s.engine.NewContext(s.engine.MessageContext(), "ArgContext", pgbridge.TagAllocSet)
	if err != nil {
		return out, err
	}
	defer func() {
		if err := s.engine.Delete(argCtx); err != nil {
			logger.Warn("delete argument arena", zap.Error(err))
		}
	}()
	a := mem.FromRaw(s.engine, argCtx)

	fc := &pgbridge.CallInfo{
		Args:       make([]pgbridge.NullableDatum, len(args)),
		ArgTypes:   types,
		ResultType: entry.Result,
	}
	for i, v := range args {
		if v.null {
			fc.Args[i] = datum.Null
			continue
		}
		d, err := encodeArg(s.bridge, a, v.typ, v.value)
		if err != nil {
			return out, fmt.Errorf("argument %d: %w", i+1, err)
		}
		fc.Args[i] = d
	}

	if cancel {
		s.engine.SetCancelPending(true)
	}
	res, err := s.engine.Call(entry.Fn, fc)
	if err != nil {
		if rep, ok := errors.ReportOf(err); ok {
			out.report = rep
			return out, nil
		}
		return out, err
	}
	defer res.Close()

	if res.IsNull {
		out.null = true
		return out, nil
	}
	out.value, err = formatDatum(entry.Result, res.Value, s.engine)
	return out, err
}

// reset resets the named arenas in order.
func (s *session) reset(names []string) error {
	for _, n := range names {
		p, ok := s.arenas[n]
		if !ok {
			return errors.NotFound(errors.PhaseConfig, "arena", n)
		}
		if err := s.engine.Reset(p); err != nil {
			return err
		}
	}
	return nil
}

func encodeWith[T any](b *guard.Bridge, c datum.Codec[T], conv func(any) (T, error), v any, a mem.Allocator) (datum.NullableDatum, error) {
	x, err := conv(v)
	if err != nil {
		return datum.Null, errors.Wrap(errors.PhaseEncode, errors.KindInvalidInput, err, datum.TypeName(c.TypeOid()))
	}
	return fcall.Encode(b, c, x, a)
}

func encodeArg(b *guard.Bridge, a mem.Allocator, typ datum.Oid, v any) (datum.NullableDatum, error) {
	switch typ {
	case datum.BoolOid:
		return encodeWith(b, datum.Bool, toBool, v, a)
	case datum.CharOid:
		return encodeWith(b, datum.Char, intOf[int8](8), v, a)
	case datum.Int2Oid:
		return encodeWith(b, datum.Int2, intOf[int16](16), v, a)
	case datum.Int4Oid:
		return encodeWith(b, datum.Int4, intOf[int32](32), v, a)
	case datum.Int8Oid:
		return encodeWith(b, datum.Int8, intOf[int64](64), v, a)
	case datum.OidOid:
		return encodeWith(b, datum.ObjectID, toOid, v, a)
	case datum.Float4Oid:
		return encodeWith(b, datum.Float4, floatOf[float32](32), v, a)
	case datum.Float8Oid:
		return encodeWith(b, datum.Float8, floatOf[float64](64), v, a)
	case datum.TextOid:
		return encodeWith(b, datum.Text, toString, v, a)
	case datum.VarcharOid:
		return encodeWith(b, datum.Varchar, toString, v, a)
	case datum.CStringOid:
		return encodeWith(b, datum.CString, toString, v, a)
	case datum.ByteaOid:
		return encodeWith(b, datum.Bytea, toBytes, v, a)
	default:
		return datum.Null, errors.Unsupported(errors.PhaseEncode, "argument type "+datum.TypeName(typ))
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	}
	return false, fmt.Errorf("cannot use %T as bool", v)
}

func intOf[T int8 | int16 | int32 | int64](bits int) func(any) (T, error) {
	return func(v any) (T, error) {
		var n int64
		switch x := v.(type) {
		case int64:
			n = x
		case string:
			var err error
			if n, err = strconv.ParseInt(x, 10, 64); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("cannot use %T as an integer", v)
		}
		if bits < 64 && (n < -(1<<(bits-1)) || n >= 1<<(bits-1)) {
			return 0, fmt.Errorf("value %d out of range for %d-bit integer", n, bits)
		}
		return T(n), nil
	}
}

func toOid(v any) (datum.Oid, error) {
	n, err := intOf[int64](64)(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > int64(^uint32(0)) {
		return 0, fmt.Errorf("value %d out of range for oid", n)
	}
	return datum.Oid(n), nil
}

func floatOf[T float32 | float64](bits int) func(any) (T, error) {
	return func(v any) (T, error) {
		switch x := v.(type) {
		case float64:
			return T(x), nil
		case int64:
			return T(x), nil
		case string:
			f, err := strconv.ParseFloat(x, bits)
			return T(f), err
		}
		return 0, fmt.Errorf("cannot use %T as a float", v)
	}
}

func toString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// toBytes accepts hex in the host's \x form and takes anything else as raw text.
func toBytes(v any) ([]byte, error) {
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(s, `\x`) {
		return hex.DecodeString(s[2:])
	}
	return []byte(s), nil
}

func decodeWith[T any](c datum.Codec[T], d pgbridge.Datum, m pgbridge.Memory, format func(T) string) (string, error) {
	v, ok, err := c.Decode(datum.NullableDatum{Value: d}, c.TypeOid(), m)
	if err != nil {
		return "", err
	}
	if !ok {
		return "NULL", nil
	}
	return format(v), nil
}

func formatInt[T int8 | int16 | int32 | int64](v T) string { return strconv.FormatInt(int64(v), 10) }

func formatDatum(typ datum.Oid, d pgbridge.Datum, m pgbridge.Memory) (string, error) {
	switch typ {
	case datum.BoolOid:
		return decodeWith(datum.Bool, d, m, strconv.FormatBool)
	case datum.CharOid:
		return decodeWith(datum.Char, d, m, formatInt[int8])
	case datum.Int2Oid:
		return decodeWith(datum.Int2, d, m, formatInt[int16])
	case datum.Int4Oid:
		return decodeWith(datum.Int4, d, m, formatInt[int32])
	case datum.Int8Oid:
		return decodeWith(datum.Int8, d, m, formatInt[int64])
	case datum.OidOid:
		return decodeWith(datum.ObjectID, d, m, func(o datum.Oid) string { return strconv.FormatUint(uint64(o), 10) })
	case datum.Float4Oid:
		return decodeWith(datum.Float4, d, m, func(f float32) string { return strconv.FormatFloat(float64(f), 'g', -1, 32) })
	case datum.Float8Oid:
		return decodeWith(datum.Float8, d, m, func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) })
	case datum.TextOid:
		return decodeWith(datum.Text, d, m, func(s string) string { return s })
	case datum.VarcharOid:
		return decodeWith(datum.Varchar, d, m, func(s string) string { return s })
	case datum.CStringOid:
		return decodeWith(datum.CString, d, m, func(s string) string { return s })
	case datum.ByteaOid:
		return decodeWith(datum.Bytea, d, m, func(b []byte) string { return `\x` + hex.EncodeToString(b) })
	case datum.VoidOid:
		return "", nil
	default:
		return "", errors.Unsupported(errors.PhaseDecode, "result type "+datum.TypeName(typ))
	}
}

// parseArg parses a command-line argument of the form type:value. A bare
// "type:" passes an empty string; "type:NULL" passes the null.
func parseArg(s string) (arg, error) {
	name, value, ok := strings.Cut(s, ":")
	if !ok {
		return arg{}, fmt.Errorf("argument %q: expected type:value", s)
	}
	typ, ok := datum.TypeByName(name)
	if !ok {
		return arg{}, fmt.Errorf("argument %q: unknown type %q", s, name)
	}
	if value == "NULL" {
		return arg{typ: typ, null: true}, nil
	}
	return arg{typ: typ, value: value}, nil
}

func argsFromSpec(specs []sim.ArgSpec) ([]arg, error) {
	out := make([]arg, len(specs))
	for i, sp := range specs {
		typ, ok := datum.TypeByName(sp.Type)
		if !ok {
			return nil, fmt.Errorf("argument %d: unknown type %q", i+1, sp.Type)
		}
		out[i] = arg{typ: typ, value: sp.Value, null: sp.Null || sp.Value == nil}
	}
	return out, nil
}

// check compares an outcome with the expectation. A nil expectation only
// requires the call to have run.
func check(exp *sim.Expect, out outcome) error {
	if exp == nil {
		return nil
	}
	if exp.Code != "" {
		if out.report == nil {
			return fmt.Errorf("expected error %s, got %s", exp.Code, out)
		}
		if string(out.report.Code) != exp.Code {
			return fmt.Errorf("expected error %s, got %s", exp.Code, out.report.Code)
		}
		return nil
	}
	if out.report != nil {
		return fmt.Errorf("unexpected error: %s", out.report.Message)
	}
	if exp.Null != out.null {
		return fmt.Errorf("expected null=%t, got %s", exp.Null, out)
	}
	if exp.Value != nil {
		want, _ := toString(exp.Value)
		if want != out.value {
			return fmt.Errorf("expected %q, got %q", want, out.value)
		}
	}
	return nil
}
