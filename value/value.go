// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package value implements the closed value model of spec §3/§4.A: the
// nine-variant value type enumeration, a total destructor, and the
// deterministic ordering the query engine relies on for aggregation and
// the `unpermute` predicate.
package value

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Type is the closed enumeration of value types.
type Type int

const (
	Boolean Type = iota
	Long
	Double
	String
	Keyword
	Uuid
	Instant
	Ref
	Bytes
)

func (t Type) String() string {
	switch t {
	case Boolean:
		return "boolean"
	case Long:
		return "long"
	case Double:
		return "double"
	case String:
		return "string"
	case Keyword:
		return "keyword"
	case Uuid:
		return "uuid"
	case Instant:
		return "instant"
	case Ref:
		return "ref"
	case Bytes:
		return "bytes"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// All enumerates every value type, in declaration order.
func All() []Type {
	return []Type{Boolean, Long, Double, String, Keyword, Uuid, Instant, Ref, Bytes}
}

// Value is a typed value: the (type, value) pair of spec §3. It is a
// tagged union rather than an interface hierarchy — exactly one of the
// concrete fields is meaningful, selected by Type.
type Value struct {
	Type    Type
	bval    bool
	ival    int64 // Long, Ref
	dval    float64
	sval    string // String, Keyword ("ns/name" form)
	uval    uuid.UUID
	instant time.Time
	bytes   []byte
}

// NewBoolean returns a Boolean value.
func NewBoolean(b bool) Value { return Value{Type: Boolean, bval: b} }

// NewLong returns a Long value.
func NewLong(n int64) Value { return Value{Type: Long, ival: n} }

// NewDouble returns a Double value.
func NewDouble(f float64) Value { return Value{Type: Double, dval: f} }

// NewString returns a String value.
func NewString(s string) Value { return Value{Type: String, sval: s} }

// NewKeyword returns a Keyword value given its "ns/name" textual form.
func NewKeyword(s string) Value { return Value{Type: Keyword, sval: s} }

// NewUuid returns a Uuid value.
func NewUuid(u uuid.UUID) Value { return Value{Type: Uuid, uval: u} }

// NewInstant returns an Instant value. The time is normalized to UTC, as
// spec §3 requires a UTC timestamp.
func NewInstant(t time.Time) Value { return Value{Type: Instant, instant: t.UTC()} }

// NewRef returns a Ref value naming another entity.
func NewRef(entid int64) Value { return Value{Type: Ref, ival: entid} }

// NewBytes returns a Bytes value.
func NewBytes(b []byte) Value { return Value{Type: Bytes, bytes: append([]byte(nil), b...)} }

// Bool destructures a Boolean value. Panics if Type != Boolean.
func (v Value) Bool() bool {
	v.mustBe(Boolean)
	return v.bval
}

// Long destructures a Long value. Panics if Type != Long.
func (v Value) Long() int64 {
	v.mustBe(Long)
	return v.ival
}

// Double destructures a Double value. Panics if Type != Double.
func (v Value) Double() float64 {
	v.mustBe(Double)
	return v.dval
}

// Str destructures a String or Keyword value. Panics otherwise.
func (v Value) Str() string {
	if v.Type != String && v.Type != Keyword {
		panic(fmt.Sprintf("value: Str() called on %s", v.Type))
	}
	return v.sval
}

// UUID destructures a Uuid value. Panics if Type != Uuid.
func (v Value) UUID() uuid.UUID {
	v.mustBe(Uuid)
	return v.uval
}

// Time destructures an Instant value. Panics if Type != Instant.
func (v Value) Time() time.Time {
	v.mustBe(Instant)
	return v.instant
}

// Entid destructures a Ref value. Panics if Type != Ref.
func (v Value) Entid() int64 {
	v.mustBe(Ref)
	return v.ival
}

// Raw destructures a Bytes value. Panics if Type != Bytes.
func (v Value) Raw() []byte {
	v.mustBe(Bytes)
	return v.bytes
}

func (v Value) mustBe(t Type) {
	if v.Type != t {
		panic(fmt.Sprintf("value: expected %s, got %s", t, v.Type))
	}
}

// MatchesType reports whether v's tag is exactly t. Every value accepted by
// coerce.ToTypedValue(raw, T) satisfies MatchesType(result, T) — spec §8,
// property 2.
func MatchesType(v Value, t Type) bool {
	return v.Type == t
}

// Equal reports structural equality between a and b. Double equality is
// bitwise (math.Float64bits), so that NaN compares equal to itself and the
// query engine's deduplication remains deterministic — spec §4.A.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case Boolean:
		return a.bval == b.bval
	case Long, Ref:
		return a.ival == b.ival
	case Double:
		return math.Float64bits(a.dval) == math.Float64bits(b.dval)
	case String, Keyword:
		return a.sval == b.sval
	case Uuid:
		return a.uval == b.uval
	case Instant:
		return a.instant.Equal(b.instant)
	case Bytes:
		return bytes.Equal(a.bytes, b.bytes)
	default:
		return false
	}
}

// Compare imposes a total order on values of the same Type. It returns -1,
// 0, or 1. Comparing values of different types is a programming error in
// this package's callers and panics; the engine package's predicate
// evaluation rejects mixed-type comparisons with InvalidArgument before
// calling Compare (see the `unpermute` decision in DESIGN.md).
func Compare(a, b Value) int {
	if a.Type != b.Type {
		panic("value: Compare called on mismatched types")
	}
	switch a.Type {
	case Boolean:
		return compareBool(a.bval, b.bval)
	case Long, Ref:
		return compareInt64(a.ival, b.ival)
	case Double:
		// Bitwise total order: compare as sign-magnitude-corrected
		// integers so that NaN sorts consistently rather than being
		// incomparable.
		return compareUint64(totalOrderKey(a.dval), totalOrderKey(b.dval))
	case String, Keyword:
		return compareString(a.sval, b.sval)
	case Uuid:
		return bytes.Compare(a.uval[:], b.uval[:])
	case Instant:
		if a.instant.Before(b.instant) {
			return -1
		}
		if a.instant.After(b.instant) {
			return 1
		}
		return 0
	case Bytes:
		return bytes.Compare(a.bytes, b.bytes)
	default:
		panic("value: Compare called on unknown type")
	}
}

// totalOrderKey maps a float64's bit pattern to a uint64 such that unsigned
// integer comparison of the keys matches IEEE-754 total order (NaN
// included): negative values (sign bit set) sort by the bitwise complement
// of their bits, positive values by their bits with the sign bit set.
func totalOrderKey(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders a human-readable form of v, mirroring the teacher's
// ast.Value.String() convention.
func (v Value) String() string {
	switch v.Type {
	case Boolean:
		return fmt.Sprintf("%t", v.bval)
	case Long, Ref:
		return fmt.Sprintf("%d", v.ival)
	case Double:
		return fmt.Sprintf("%v", v.dval)
	case String:
		return fmt.Sprintf("%q", v.sval)
	case Keyword:
		return v.sval
	case Uuid:
		return v.uval.String()
	case Instant:
		return v.instant.Format(time.RFC3339Nano)
	case Bytes:
		return fmt.Sprintf("#bytes[%d]", len(v.bytes))
	default:
		return "?"
	}
}
