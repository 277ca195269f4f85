// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

var dsnCounter int

// openTest returns a fresh, isolated in-memory database per test.
func openTest(t *testing.T) *Store {
	t.Helper()
	dsnCounter++
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", dsnCounter)
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNextEntidStartsAboveReservedRange(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	id, err := s.NextEntid(ctx)
	if err != nil {
		t.Fatalf("NextEntid: %v", err)
	}
	if id < firstUserEntid {
		t.Fatalf("expected entid >= %d, got %d", firstUserEntid, id)
	}

	id2, err := s.NextEntid(ctx)
	if err != nil {
		t.Fatalf("NextEntid: %v", err)
	}
	if id2 != id+1 {
		t.Fatalf("expected monotonically increasing entids, got %d then %d", id, id2)
	}
}

func TestWriteDatomAndLookupFindsLatestAssertion(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	const emailAttr ident.Entid = 10
	e := ident.Entid(1001)
	v := value.NewString("ada@example.com")

	if err := s.WriteDatom(ctx, e, emailAttr, v, 1, true); err != nil {
		t.Fatalf("WriteDatom: %v", err)
	}

	found, ok, err := s.Lookup(ctx, emailAttr, v)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected lookup to find entity")
	}
	if found != e {
		t.Fatalf("expected entity %d, got %d", e, found)
	}
}

func TestLookupReturnsFalseAfterRetraction(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	const emailAttr ident.Entid = 10
	e := ident.Entid(1001)
	v := value.NewString("ada@example.com")

	if err := s.WriteDatom(ctx, e, emailAttr, v, 1, true); err != nil {
		t.Fatalf("WriteDatom add: %v", err)
	}
	if err := s.WriteDatom(ctx, e, emailAttr, v, 2, false); err != nil {
		t.Fatalf("WriteDatom retract: %v", err)
	}

	_, ok, err := s.Lookup(ctx, emailAttr, v)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected lookup to miss after retraction")
	}
}

func TestLookupReturnsFalseWhenNoDatomMatches(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, ident.Entid(10), value.NewLong(42))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected lookup miss on empty store")
	}
}

func TestDatomsForEntityExcludesRetracted(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	const nameAttr ident.Entid = 11
	const emailAttr ident.Entid = 10
	e := ident.Entid(1001)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("WriteDatom: %v", err)
		}
	}
	must(s.WriteDatom(ctx, e, nameAttr, value.NewString("Ada"), 1, true))
	must(s.WriteDatom(ctx, e, emailAttr, value.NewString("ada@example.com"), 1, true))
	must(s.WriteDatom(ctx, e, emailAttr, value.NewString("ada@example.com"), 2, false))
	must(s.WriteDatom(ctx, e, emailAttr, value.NewString("ada@lovelace.example"), 3, true))

	datoms, err := s.DatomsForEntity(ctx, e)
	if err != nil {
		t.Fatalf("DatomsForEntity: %v", err)
	}
	if len(datoms) != 2 {
		t.Fatalf("expected 2 live datoms, got %d: %+v", len(datoms), datoms)
	}
}

func TestFulltextSearchScoresByOccurrenceCount(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	const bioAttr ident.Entid = 20
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("WriteDatom: %v", err)
		}
	}
	must(s.WriteDatom(ctx, ident.Entid(1001), bioAttr, value.NewString("calculus calculus engine"), 1, true))
	must(s.WriteDatom(ctx, ident.Entid(1002), bioAttr, value.NewString("poetry and prose"), 1, true))

	matches, err := s.FulltextSearch(ctx, bioAttr, "calculus")
	if err != nil {
		t.Fatalf("FulltextSearch: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Score != 2 {
		t.Fatalf("expected score 2, got %d", matches[0].Score)
	}
	if matches[0].E != ident.Entid(1001) {
		t.Fatalf("expected entity 1001, got %d", matches[0].E)
	}
}

func TestFulltextSearchRejectsEmptyTerm(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if _, err := s.FulltextSearch(ctx, ident.Entid(20), ""); err == nil {
		t.Fatalf("expected error for empty search term")
	}
}

func TestWriteDatomRoundTripsEveryValueType(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := ident.Entid(1001)

	values := []value.Value{
		value.NewBoolean(true),
		value.NewLong(42),
		value.NewDouble(3.5),
		value.NewString("hello"),
		value.NewKeyword("person/name"),
		value.NewRef(7),
	}

	for i, v := range values {
		attr := ident.Entid(100 + i)
		if err := s.WriteDatom(ctx, e, attr, v, 1, true); err != nil {
			t.Fatalf("WriteDatom %v: %v", v, err)
		}
		found, ok, err := s.Lookup(ctx, attr, v)
		if err != nil {
			t.Fatalf("Lookup %v: %v", v, err)
		}
		if !ok || found != e {
			t.Fatalf("expected to find entity %d for value %v, got %d (ok=%v)", e, v, found, ok)
		}
	}
}
