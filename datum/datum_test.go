package datum

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/mem"
	"github.com/wippyai/pgbridge/sim"
)

func newArena(t *testing.T) (*sim.Engine, mem.RawArena) {
	t.Helper()
	e := sim.New()
	p, err := e.NewContext(e.MessageContext(), "test", pgbridge.TagAllocSet)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return e, mem.FromRaw(e, p)
}

func roundTrip[T any](t *testing.T, e *sim.Engine, a mem.Allocator, c Codec[T], v T) T {
	t.Helper()
	d, err := c.Encode(v, a)
	if err != nil {
		t.Fatalf("Encode(%v) failed: %v", v, err)
	}
	if d.IsNull {
		t.Fatalf("Encode(%v) produced null", v)
	}
	got, ok, err := c.Decode(d, c.TypeOid(), e)
	if err != nil || !ok {
		t.Fatalf("Decode = %v, %v, %v", got, ok, err)
	}
	return got
}

func TestScalar_RoundTrip(t *testing.T) {
	e, a := newArena(t)

	if got := roundTrip(t, e, a, Bool, true); !got {
		t.Error("bool true")
	}
	if got := roundTrip(t, e, a, Bool, false); got {
		t.Error("bool false")
	}
	for _, v := range []int8{math.MinInt8, -1, 0, 'x', math.MaxInt8} {
		if got := roundTrip(t, e, a, Char, v); got != v {
			t.Errorf("char %d: got %d", v, got)
		}
	}
	for _, v := range []int16{math.MinInt16, -300, 0, math.MaxInt16} {
		if got := roundTrip(t, e, a, Int2, v); got != v {
			t.Errorf("int2 %d: got %d", v, got)
		}
	}
	for _, v := range []int32{math.MinInt32, -1, 0, 42, math.MaxInt32} {
		if got := roundTrip(t, e, a, Int4, v); got != v {
			t.Errorf("int4 %d: got %d", v, got)
		}
	}
	for _, v := range []int64{math.MinInt64, -1, 0, math.MaxInt64} {
		if got := roundTrip(t, e, a, Int8, v); got != v {
			t.Errorf("int8 %d: got %d", v, got)
		}
	}
	for _, v := range []float32{0, float32(math.Copysign(0, -1)), 1.5, math.MaxFloat32, float32(math.Inf(-1))} {
		if got := roundTrip(t, e, a, Float4, v); math.Float32bits(got) != math.Float32bits(v) {
			t.Errorf("float4 %v: got %v", v, got)
		}
	}
	for _, v := range []float64{math.Pi, math.SmallestNonzeroFloat64, math.NaN()} {
		if got := roundTrip(t, e, a, Float8, v); math.Float64bits(got) != math.Float64bits(v) {
			t.Errorf("float8 %v: got %v", v, got)
		}
	}
	roundTrip(t, e, a, Void, struct{}{})

	if e.Used() != 0 {
		t.Fatalf("by-value encoding allocated %d bytes", e.Used())
	}
}

func TestScalar_SignExtension(t *testing.T) {
	d, _ := Int2.Encode(-2, nil)
	if uint64(d.Value) != math.MaxUint64-1 {
		t.Fatalf("expected sign-extended word, got %#x", uint64(d.Value))
	}
	d, _ = Float4.Encode(1.0, nil)
	if uint64(d.Value) != uint64(math.Float32bits(1.0)) {
		t.Fatalf("expected raw float bits, got %#x", uint64(d.Value))
	}
}

func TestCompatibility(t *testing.T) {
	tests := []struct {
		name   string
		accept func(Oid) bool
		src    Oid
		want   bool
	}{
		{"int4 from char", Int4.IsCompatible, CharOid, true},
		{"int4 from int2", Int4.IsCompatible, Int2Oid, true},
		{"int4 from int4", Int4.IsCompatible, Int4Oid, true},
		{"int4 from int8", Int4.IsCompatible, Int8Oid, false},
		{"int2 from int4", Int2.IsCompatible, Int4Oid, false},
		{"int2 from char", Int2.IsCompatible, CharOid, true},
		{"oid from int4", ObjectID.IsCompatible, Int4Oid, true},
		{"int8 from oid", Int8.IsCompatible, OidOid, false},
		{"text from varchar", Text.IsCompatible, VarcharOid, true},
		{"varchar from text", Varchar.IsCompatible, TextOid, false},
		{"text from bytea", Text.IsCompatible, ByteaOid, false},
		{"float8 from float4", Float8.IsCompatible, Float4Oid, false},
		{"bool from unknown", Bool.IsCompatible, 9999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.accept(tt.src); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecode_Widening(t *testing.T) {
	e, _ := newArena(t)

	d, _ := Int2.Encode(-7, nil)
	v, ok, err := Int4.Decode(d, Int2Oid, e)
	if err != nil || !ok || v != -7 {
		t.Fatalf("int4 from int2 = %d, %v, %v", v, ok, err)
	}

	d, _ = Char.Encode(-1, nil)
	v8, ok, err := Int8.Decode(d, CharOid, e)
	if err != nil || !ok || v8 != -1 {
		t.Fatalf("int8 from char = %d, %v, %v", v8, ok, err)
	}

	d, _ = Int8.Encode(1, nil)
	_, _, err = Int4.Decode(d, Int8Oid, e)
	if !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
}

func TestText_Hello(t *testing.T) {
	e, a := newArena(t)

	d, err := Text.Encode("hello", a)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	p := pgbridge.Ptr(d.Value)
	hdr, err := e.ReadU32(p)
	if err != nil {
		t.Fatal(err)
	}
	if hdr>>2 != 9 || hdr&0x03 != 0 {
		t.Fatalf("header = %#x, want length 9", hdr)
	}
	payload, err := e.Read(p+VarHdrSize, 5)
	if err != nil || string(payload) != "hello" {
		t.Fatalf("payload = %q, %v", payload, err)
	}
	if info, _ := e.ArenaInfo(a.Ptr()); info.Allocated != 16 {
		t.Fatalf("expected one 9-byte block (16 aligned), got %d", info.Allocated)
	}

	s, ok, err := Text.Decode(d, VarcharOid, e)
	if err != nil || !ok || s != "hello" {
		t.Fatalf("text from varchar = %q, %v, %v", s, ok, err)
	}
	if _, _, err := Varchar.Decode(d, TextOid, e); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Fatalf("varchar from text should be a type mismatch, got %v", err)
	}
}

func TestVarlena_RoundTrip(t *testing.T) {
	e, a := newArena(t)
	for _, s := range []string{"", "a", "héllo wörld", string(make([]byte, 10000))} {
		if got := roundTrip(t, e, a, Text, s); got != s {
			t.Errorf("text %q: got %q", s, got)
		}
	}
	for _, b := range [][]byte{{}, {0, 1, 2, 0xff}} {
		if got := roundTrip(t, e, a, Bytea, b); !bytes.Equal(got, b) {
			t.Errorf("bytea %v: got %v", b, got)
		}
	}
}

func TestVarlena_HeaderForms(t *testing.T) {
	e, a := newArena(t)
	tests := []struct {
		name string
		raw  []byte
		want string
		kind errors.Kind
	}{
		{"short header", []byte{4<<1 | 1, 'a', 'b', 'c'}, "abc", ""},
		{"short empty", []byte{1<<1 | 1}, "", ""},
		{"external", []byte{0x01, 0, 0, 0}, "", errors.KindUnsupported},
		{"compressed", []byte{8<<2 | 2, 0, 0, 0, 0, 0, 0, 0}, "", errors.KindUnsupported},
		{"length below header", []byte{2 << 2, 0, 0, 0}, "", errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := a.Alloc(uint32(len(tt.raw)))
			if err := e.Write(p, tt.raw); err != nil {
				t.Fatal(err)
			}
			s, _, err := Text.Decode(NullableDatum{Value: pgbridge.Datum(p)}, TextOid, e)
			if tt.kind != "" {
				if !errors.IsKind(err, tt.kind) {
					t.Fatalf("expected %s, got %v", tt.kind, err)
				}
				return
			}
			if err != nil || s != tt.want {
				t.Fatalf("got %q, %v", s, err)
			}
		})
	}
}

func TestVarlena_OverflowAllocatesNothing(t *testing.T) {
	e, a := newArena(t)
	saved := maxVarlenaSize
	maxVarlenaSize = 16
	defer func() { maxVarlenaSize = saved }()

	before := e.Used()
	_, err := Text.Encode("this is longer than twelve", a)
	if !errors.IsKind(err, errors.KindEncodingOverflow) {
		t.Fatalf("expected encoding_overflow, got %v", err)
	}
	if rep := errors.ReportFor(err); rep.Code != errors.CodeProgramLimitExceeded {
		t.Fatalf("expected 54000, got %s", rep.Code)
	}
	if e.Used() != before {
		t.Fatalf("overflow allocated %d bytes", e.Used()-before)
	}

	if _, err := Text.Encode("twelve bytes", a); err != nil {
		t.Fatalf("payload at the limit should encode: %v", err)
	}
}

func TestNullable(t *testing.T) {
	e, a := newArena(t)
	c := Nullable(Text)

	d, err := c.Encode(nil, a)
	if err != nil || !d.IsNull {
		t.Fatalf("nil should encode as null, got %+v, %v", d, err)
	}
	if e.Used() != 0 {
		t.Fatal("null encoding allocated")
	}
	v, ok, err := c.Decode(d, TextOid, e)
	if err != nil || ok || v != nil {
		t.Fatalf("null should decode to nil, got %v, %v, %v", v, ok, err)
	}

	s := "x"
	d, err = c.Encode(&s, a)
	if err != nil || d.IsNull {
		t.Fatal(err)
	}
	v, ok, err = c.Decode(d, VarcharOid, e)
	if err != nil || !ok || *v != "x" {
		t.Fatalf("got %v, %v, %v", v, ok, err)
	}
}

func TestCString(t *testing.T) {
	e, a := newArena(t)
	long := string(bytes.Repeat([]byte("abcdefgh"), 40))
	for _, s := range []string{"", "pg", long} {
		if got := roundTrip(t, e, a, CString, s); got != s {
			t.Errorf("cstring %q: got %q", s, got)
		}
	}

	before := e.Used()
	d, err := CString.Encode("", a)
	if err != nil {
		t.Fatal(err)
	}
	if d.Value == 0 || e.Used() == before {
		t.Fatal("empty cstring should still allocate its terminator")
	}

	if _, err := CString.Encode("a\x00b", a); !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("expected invalid_data for interior NUL, got %v", err)
	}
}

func TestObjectID(t *testing.T) {
	e, _ := newArena(t)
	d, err := ObjectID.Encode(pgbridge.InvalidOid, nil)
	if err != nil || !d.IsNull {
		t.Fatalf("invalid oid should encode as null, got %+v", d)
	}
	d, _ = ObjectID.Encode(TextOid, nil)
	o, ok, err := ObjectID.Decode(d, OidOid, e)
	if err != nil || !ok || o != TextOid {
		t.Fatalf("got %v, %v, %v", o, ok, err)
	}
}

func TestNarrowestCompatible(t *testing.T) {
	tests := []struct {
		name       string
		src        Oid
		candidates []Oid
		want       Oid
		found      bool
	}{
		{"exact wins", Int4Oid, []Oid{Int8Oid, Int4Oid}, Int4Oid, true},
		{"narrowest", Int2Oid, []Oid{Int8Oid, Int4Oid}, Int4Oid, true},
		{"char to int2", CharOid, []Oid{Int8Oid, OidOid, Int2Oid}, Int2Oid, true},
		{"tie keeps order", Int2Oid, []Oid{OidOid, Int4Oid}, OidOid, true},
		{"text family", VarcharOid, []Oid{Int4Oid, TextOid}, TextOid, true},
		{"none", Int8Oid, []Oid{Int4Oid, Int2Oid}, pgbridge.InvalidOid, false},
		{"unknown", 9999, []Oid{9999}, pgbridge.InvalidOid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := NarrowestCompatible(tt.src, tt.candidates)
			if got != tt.want || found != tt.found {
				t.Fatalf("got %s, %v; want %s, %v", TypeName(got), found, TypeName(tt.want), tt.found)
			}
		})
	}
}

func TestCopyVarlena(t *testing.T) {
	e, a := newArena(t)
	other, err := e.NewContext(e.TopTransactionContext(), "other", pgbridge.TagAllocSet)
	if err != nil {
		t.Fatal(err)
	}
	dst := mem.FromRaw(e, other)

	d, _ := Bytea.Encode([]byte{1, 2, 3}, a)
	cp, err := CopyVarlena(pgbridge.Ptr(d.Value), dst)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Reset(a.Ptr()); err != nil {
		t.Fatal(err)
	}
	b, ok, err := Bytea.Decode(NullableDatum{Value: pgbridge.Datum(cp)}, ByteaOid, e)
	if err != nil || !ok || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("copy should survive source reset, got %v, %v, %v", b, ok, err)
	}
}

func TestTypeName(t *testing.T) {
	if TypeName(Int4Oid) != "int4" || TypeName(1234) != "oid(1234)" {
		t.Fatal("unexpected type names")
	}
	if !ByValue(Float8Oid) || ByValue(TextOid) {
		t.Fatal("unexpected by-value classification")
	}
}

func TestTypeByName(t *testing.T) {
	for _, name := range []string{"bool", "int4", "text", "cstring", "void"} {
		o, ok := TypeByName(name)
		if !ok || TypeName(o) != name {
			t.Errorf("TypeByName(%q) = %d, %v", name, o, ok)
		}
	}
	if _, ok := TypeByName("jsonb"); ok {
		t.Error("unsupported kind resolved")
	}
}

// refusingHost accepts allocations but fails every write.
type refusingHost struct {
	*sim.Engine
}

func (*refusingHost) Write(pgbridge.Ptr, []byte) error {
	return fmt.Errorf("write refused")
}

func TestEncode_WriteFailureFreesBlock(t *testing.T) {
	e, a := newArena(t)
	h := &refusingHost{Engine: e}
	ra := mem.FromRaw(h, a.Ptr())

	tests := []struct {
		name   string
		encode func() error
	}{
		{"text", func() error { _, err := Text.Encode("hello", ra); return err }},
		{"bytea", func() error { _, err := Bytea.Encode([]byte{1, 2}, ra); return err }},
		{"cstring", func() error { _, err := CString.Encode("hello", ra); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.encode(); !errors.IsKind(err, errors.KindOutOfBounds) {
				t.Fatalf("expected out_of_bounds, got %v", err)
			}
			if info, _ := e.ArenaInfo(a.Ptr()); info.Allocated != 0 {
				t.Fatalf("block left allocated: %d bytes", info.Allocated)
			}
		})
	}
}
