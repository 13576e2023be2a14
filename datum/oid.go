package datum

import (
	"fmt"

	"github.com/wippyai/pgbridge"
)

// Oid is the host type identifier.
type Oid = pgbridge.Oid

// NullableDatum is a datum with its null marker.
type NullableDatum = pgbridge.NullableDatum

// Null is the null datum.
var Null = NullableDatum{IsNull: true}

// Type identifiers of the supported kinds.
const (
	BoolOid    Oid = 16
	ByteaOid   Oid = 17
	CharOid    Oid = 18
	Int8Oid    Oid = 20
	Int2Oid    Oid = 21
	Int4Oid    Oid = 23
	TextOid    Oid = 25
	OidOid     Oid = 26
	Float4Oid  Oid = 700
	Float8Oid  Oid = 701
	VarcharOid Oid = 1043
	CStringOid Oid = 2275
	VoidOid    Oid = 2278
)

// Storage width markers for by-reference kinds.
const (
	widthVarlena = -1
	widthCString = -2
)

type descriptor struct {
	name   string
	compat []Oid
	width  int
}

var descriptors = map[Oid]descriptor{
	BoolOid:    {name: "bool", width: 1},
	CharOid:    {name: "char", width: 1},
	Int2Oid:    {name: "int2", width: 2, compat: []Oid{CharOid}},
	Int4Oid:    {name: "int4", width: 4, compat: []Oid{CharOid, Int2Oid}},
	OidOid:     {name: "oid", width: 4, compat: []Oid{CharOid, Int2Oid, Int4Oid}},
	Int8Oid:    {name: "int8", width: 8, compat: []Oid{CharOid, Int2Oid, Int4Oid}},
	Float4Oid:  {name: "float4", width: 4},
	Float8Oid:  {name: "float8", width: 8},
	TextOid:    {name: "text", width: widthVarlena, compat: []Oid{VarcharOid}},
	VarcharOid: {name: "varchar", width: widthVarlena},
	ByteaOid:   {name: "bytea", width: widthVarlena},
	CStringOid: {name: "cstring", width: widthCString},
	VoidOid:    {name: "void", width: 0},
}

// TypeName returns the host name of o.
func TypeName(o Oid) string {
	if d, ok := descriptors[o]; ok {
		return d.name
	}
	return fmt.Sprintf("oid(%d)", uint32(o))
}

// TypeByName looks up a supported kind by its host name.
func TypeByName(name string) (Oid, bool) {
	for o, d := range descriptors {
		if d.name == name {
			return o, true
		}
	}
	return pgbridge.InvalidOid, false
}

// Known reports whether o is one of the supported kinds.
func Known(o Oid) bool {
	_, ok := descriptors[o]
	return ok
}

// ByValue reports whether values of o are packed into the datum word.
func ByValue(o Oid) bool {
	d, ok := descriptors[o]
	return ok && d.width >= 0
}

// Compatible reports whether a codec for target accepts a datum tagged src.
// The relation is not symmetric.
func Compatible(target, src Oid) bool {
	if target == src {
		return Known(target)
	}
	for _, c := range descriptors[target].compat {
		if c == src {
			return true
		}
	}
	return false
}

// rank orders kinds by storage width, by-reference kinds last.
func rank(o Oid) int {
	d := descriptors[o]
	switch d.width {
	case widthVarlena:
		return 1 << 20
	case widthCString:
		return 1<<20 + 1
	}
	return d.width
}

// NarrowestCompatible picks the candidate that accepts src. An exact match
// wins; otherwise the narrowest compatible candidate is chosen, earlier
// candidates winning ties.
func NarrowestCompatible(src Oid, candidates []Oid) (Oid, bool) {
	best, found := pgbridge.InvalidOid, false
	for _, c := range candidates {
		if c == src && Known(c) {
			return c, true
		}
		if !Compatible(c, src) {
			continue
		}
		if !found || rank(c) < rank(best) {
			best, found = c, true
		}
	}
	return best, found
}
