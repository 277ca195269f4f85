// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package coerce

import (
	"testing"

	"github.com/google/uuid"

	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// S3 — type coercion.
func TestToTypedValueUuidPassthrough(t *testing.T) {
	reg := ident.NewRegistry()
	u := uuid.MustParse("cf62d552-6569-4d1b-b667-04703041dfc4")
	v, err := ToTypedValue(RawValue{Kind: RawUuid, Uuid: u}, value.Uuid, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.UUID() != u {
		t.Fatalf("uuid mismatch")
	}
}

func TestToTypedValueRejectsWrongType(t *testing.T) {
	reg := ident.NewRegistry()
	_, err := ToTypedValue(RawValue{Kind: RawLong, Long: 5}, value.Uuid, reg)
	if !errors.IsCode(errors.BadValuePair, err) {
		t.Fatalf("expected BadValuePair, got %v", err)
	}
}

func TestToTypedValueRefFromLong(t *testing.T) {
	reg := ident.NewRegistry()
	v, err := ToTypedValue(RawValue{Kind: RawLong, Long: 99}, value.Ref, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Entid() != 99 {
		t.Fatalf("expected entid 99, got %d", v.Entid())
	}
}

func TestToTypedValueRefFromKeyword(t *testing.T) {
	reg := ident.NewRegistry()
	kw := ident.NewKeyword("foo", "bar")
	_ = reg.Put(kw, 42)
	v, err := ToTypedValue(RawValue{Kind: RawKeyword, Str: "foo/bar"}, value.Ref, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Entid() != 42 {
		t.Fatalf("expected entid 42, got %d", v.Entid())
	}
}

func TestToTypedValueRefFromUnrecognizedKeyword(t *testing.T) {
	reg := ident.NewRegistry()
	_, err := ToTypedValue(RawValue{Kind: RawKeyword, Str: "foo/missing"}, value.Ref, reg)
	if !errors.IsCode(errors.UnrecognizedIdent, err) {
		t.Fatalf("expected UnrecognizedIdent, got %v", err)
	}
}

func TestToTypedValueBigIntAlwaysFails(t *testing.T) {
	reg := ident.NewRegistry()
	_, err := ToTypedValue(RawValue{Kind: RawBigInt}, value.Long, reg)
	if !errors.IsCode(errors.BadValuePair, err) {
		t.Fatalf("expected BadValuePair for big-int, got %v", err)
	}
}

func TestMatchesTypeProperty(t *testing.T) {
	reg := ident.NewRegistry()
	for _, tc := range []struct {
		raw RawValue
		typ value.Type
	}{
		{RawValue{Kind: RawBoolean, Bool: true}, value.Boolean},
		{RawValue{Kind: RawLong, Long: 1}, value.Long},
		{RawValue{Kind: RawDouble, Double: 1.5}, value.Double},
		{RawValue{Kind: RawString, Str: "x"}, value.String},
		{RawValue{Kind: RawBytes, Bytes: []byte{1, 2}}, value.Bytes},
	} {
		v, err := ToTypedValue(tc.raw, tc.typ, reg)
		if err != nil {
			t.Fatalf("unexpected error for %v: %v", tc.typ, err)
		}
		if !value.MatchesType(v, tc.typ) {
			t.Fatalf("expected MatchesType(%v, %v) to hold", v, tc.typ)
		}
	}
}
