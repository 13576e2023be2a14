package fcall

import (
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/datum"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/guard"
	"github.com/wippyai/pgbridge/mem"
	"github.com/wippyai/pgbridge/sim"
)

type env struct {
	engine *sim.Engine
	bridge *guard.Bridge
	args   mem.RawArena
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e, err := sim.NewWithConfig(&sim.Config{MemoryLimit: 1 << 16})
	if err != nil {
		t.Fatal(err)
	}
	p, err := e.NewContext(e.MessageContext(), "args", pgbridge.TagAllocSet)
	if err != nil {
		t.Fatal(err)
	}
	return &env{engine: e, bridge: guard.New(e, nil), args: mem.FromRaw(e, p)}
}

func (v *env) text(t *testing.T, s string) pgbridge.NullableDatum {
	t.Helper()
	d, err := datum.Text.Encode(s, v.args)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func upper(b *guard.Bridge) Handler {
	return func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
		s, ok, err := Arg(fc, 0, datum.Text, a.Host())
		if err != nil || !ok {
			return datum.Null, err
		}
		return Encode(b, datum.Text, strings.ToUpper(s), a)
	}
}

func TestFrameAccessors(t *testing.T) {
	fc := &pgbridge.CallInfo{
		Args:     []pgbridge.NullableDatum{{Value: 7}, datum.Null},
		ArgTypes: []datum.Oid{datum.Int2Oid},
	}
	if NArgs(fc) != 2 {
		t.Fatalf("NArgs = %d", NArgs(fc))
	}
	if ArgIsNull(fc, 0) || !ArgIsNull(fc, 1) || !ArgIsNull(fc, 5) {
		t.Fatal("unexpected null flags")
	}
	if _, ok := ArgDatum(fc, -1); ok {
		t.Fatal("negative slot should not exist")
	}
	if ArgType(fc, 0) != datum.Int2Oid || ArgType(fc, 1) != pgbridge.InvalidOid {
		t.Fatal("unexpected arg types")
	}

	v, ok, err := Arg(fc, 0, datum.Int4, nil)
	if err != nil || !ok || v != 7 {
		t.Fatalf("Arg(0) = %d, %v, %v", v, ok, err)
	}
	_, ok, err = Arg(fc, 1, datum.Int4, nil)
	if err != nil || ok {
		t.Fatalf("null arg = %v, %v", ok, err)
	}
	_, _, err = Arg(fc, 2, datum.Int4, nil)
	if !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Fatalf("expected out_of_bounds, got %v", err)
	}

	if ReturnNull(fc) != 0 || !fc.IsNull {
		t.Fatal("ReturnNull")
	}
	if ReturnVoid(fc) != 0 || fc.IsNull {
		t.Fatal("ReturnVoid")
	}
}

func TestExport_Result(t *testing.T) {
	v := newEnv(t)
	fn := Export(v.bridge, upper(v.bridge))

	res, err := v.engine.Call(fn, &pgbridge.CallInfo{
		Args:     []pgbridge.NullableDatum{v.text(t, "hello")},
		ArgTypes: []datum.Oid{datum.VarcharOid},
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	defer res.Close()

	s, ok, err := datum.Text.Decode(pgbridge.NullableDatum{Value: res.Value}, datum.TextOid, v.engine)
	if err != nil || !ok || s != "HELLO" {
		t.Fatalf("result = %q, %v, %v", s, ok, err)
	}
	if info, _ := v.engine.ArenaInfo(res.Arena); info.Allocated == 0 {
		t.Fatal("result should live in the call arena")
	}
}

func TestExport_NullResult(t *testing.T) {
	v := newEnv(t)
	fn := Export(v.bridge, upper(v.bridge))
	res, err := v.engine.Call(fn, &pgbridge.CallInfo{Args: []pgbridge.NullableDatum{datum.Null}})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	if !res.IsNull {
		t.Fatal("expected null result")
	}
}

func TestExport_Errors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(b *guard.Bridge) Handler
		code errors.SQLState
	}{
		{"plain error", func(*guard.Bridge) Handler {
			return func(*pgbridge.CallInfo, *mem.Borrowed) (datum.NullableDatum, error) {
				return datum.Null, fmt.Errorf("division by zero")
			}
		}, errors.CodeDataException},
		{"type mismatch", func(*guard.Bridge) Handler {
			return func(fc *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
				_, _, err := Arg(fc, 0, datum.Int2, a.Host())
				return datum.Null, err
			}
		}, errors.CodeDatatypeMismatch},
		{"host exhaustion", func(b *guard.Bridge) Handler {
			return func(_ *pgbridge.CallInfo, a *mem.Borrowed) (datum.NullableDatum, error) {
				return Encode(b, datum.Bytea, make([]byte, 1<<17), a)
			}
		}, errors.CodeOutOfMemory},
		{"panic", func(*guard.Bridge) Handler {
			return func(fc *pgbridge.CallInfo, _ *mem.Borrowed) (datum.NullableDatum, error) {
				_ = fc.Args[10]
				return datum.Null, nil
			}
		}, errors.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newEnv(t)
			fn := Export(v.bridge, tt.fn(v.bridge))
			_, err := v.engine.Call(fn, &pgbridge.CallInfo{
				Args:     []pgbridge.NullableDatum{{Value: 1}},
				ArgTypes: []datum.Oid{datum.Int8Oid},
			})
			rep := errors.ReportFor(err)
			if rep == nil || rep.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestExport_ReplaysHostReport(t *testing.T) {
	v := newEnv(t)
	var seen *errors.Report
	fn := Export(v.bridge, func(*pgbridge.CallInfo, *mem.Borrowed) (datum.NullableDatum, error) {
		err := v.bridge.Call(func() {
			v.engine.Ereport(errors.LevelError, errors.CodeRaiseException, "raised by host")
		})
		seen = errors.ReportFor(err)
		return datum.Null, err
	})
	_, err := v.engine.Call(fn, nil)
	rep := errors.ReportFor(err)
	if rep == nil || !rep.Equal(seen) {
		t.Fatalf("report not replayed: got %v, want %v", rep, seen)
	}
}

func newRegistry(t *testing.T, v *env) *Registry {
	t.Helper()
	r := NewRegistry(v.bridge)
	add := func(width string) Handler {
		return func(*pgbridge.CallInfo, *mem.Borrowed) (datum.NullableDatum, error) {
			return datum.Text.Encode(width, v.args)
		}
	}
	r.MustRegister(Signature{Name: "add", Args: []datum.Oid{datum.Int8Oid, datum.Int8Oid}, Result: datum.TextOid}, add("int8"))
	r.MustRegister(Signature{Name: "add", Args: []datum.Oid{datum.Int4Oid, datum.Int4Oid}, Result: datum.TextOid}, add("int4"))
	r.MustRegister(Signature{Name: "add", Args: []datum.Oid{datum.Int4Oid, datum.Int8Oid}, Result: datum.TextOid}, add("int4+int8"))
	r.MustRegister(Signature{Name: "upper", Args: []datum.Oid{datum.TextOid}, Result: datum.TextOid, Strict: true}, upper(v.bridge))
	return r
}

func TestRegistry_Resolve(t *testing.T) {
	v := newEnv(t)
	r := newRegistry(t, v)

	tests := []struct {
		name string
		fn   string
		args []datum.Oid
		want string
		err  bool
	}{
		{"exact int4", "add", []datum.Oid{datum.Int4Oid, datum.Int4Oid}, "add(int4, int4)", false},
		{"int2 widens to int4", "add", []datum.Oid{datum.Int2Oid, datum.Int2Oid}, "add(int4, int4)", false},
		{"mixed", "add", []datum.Oid{datum.Int2Oid, datum.Int8Oid}, "add(int4, int8)", false},
		{"int8 only", "add", []datum.Oid{datum.Int8Oid, datum.Int8Oid}, "add(int8, int8)", false},
		{"varchar to text", "upper", []datum.Oid{datum.VarcharOid}, "upper(text)", false},
		{"no overload", "add", []datum.Oid{datum.TextOid, datum.TextOid}, "", true},
		{"arity", "add", []datum.Oid{datum.Int4Oid}, "", true},
		{"unknown name", "nope", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := r.Resolve(tt.fn, tt.args)
			if tt.err {
				if !errors.IsKind(err, errors.KindNotFound) {
					t.Fatalf("expected not_found, got %v", err)
				}
				if rep := errors.ReportFor(err); rep.Code != errors.CodeUndefinedFunction {
					t.Fatalf("expected 42883, got %s", rep.Code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got := e.Signature.String(); got != tt.want {
				t.Fatalf("resolved %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRegistry_Strict(t *testing.T) {
	v := newEnv(t)
	r := newRegistry(t, v)
	e, err := r.Resolve("upper", []datum.Oid{datum.TextOid})
	if err != nil {
		t.Fatal(err)
	}
	res, err := v.engine.Call(e.Fn, &pgbridge.CallInfo{
		Args:     []pgbridge.NullableDatum{datum.Null},
		ArgTypes: []datum.Oid{datum.TextOid},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	if !res.IsNull {
		t.Fatal("strict function with null argument should return null")
	}
	if info, _ := v.engine.ArenaInfo(res.Arena); info.Allocated != 0 {
		t.Fatal("strict short-circuit should not run the handler")
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	v := newEnv(t)
	r := newRegistry(t, v)
	noop := func(*pgbridge.CallInfo, *mem.Borrowed) (datum.NullableDatum, error) { return datum.Null, nil }

	tests := []struct {
		name string
		sig  Signature
		fn   Handler
		kind errors.Kind
	}{
		{"empty name", Signature{Result: datum.VoidOid}, noop, errors.KindInvalidInput},
		{"nil handler", Signature{Name: "f", Result: datum.VoidOid}, nil, errors.KindInvalidInput},
		{"unknown type", Signature{Name: "f", Args: []datum.Oid{4242}, Result: datum.VoidOid}, noop, errors.KindUnsupported},
		{"duplicate", Signature{Name: "add", Args: []datum.Oid{datum.Int4Oid, datum.Int4Oid}, Result: datum.Int4Oid}, noop, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.sig, tt.fn); !errors.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}

	if got := r.Names(); strings.Join(got, ",") != "add,upper" {
		t.Fatalf("Names = %v", got)
	}
	if got := r.Overloads("add"); len(got) != 3 {
		t.Fatalf("Overloads = %v", got)
	}
}
