// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package result

import (
	"testing"
	"time"

	"github.com/mentatdb/mentat/query"
	"github.com/mentatdb/mentat/value"
)

func ccFor(find query.FindSpec, with []query.Var, order []query.OrderSpec) *query.CC {
	return &query.CC{Find: find, With: with, Order: order}
}

// TestNullAggregateDropsRow reproduces spec §8 S7: count paired with max
// over zero input rows must drop the entire row, not report [0, null].
func TestNullAggregateDropsRow(t *testing.T) {
	find := query.FindSpec{Kind: query.Relation, Elems: []query.FindElem{
		{Var: "?tx", Agg: &query.Aggregate{Op: query.Count}},
		{Var: "?txInstant", Agg: &query.Aggregate{Op: query.Max}},
	}}
	cc := ccFor(find, nil, nil)
	got, err := Project(cc, nil)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	rel, ok := got.(Relation)
	if !ok {
		t.Fatalf("expected Relation, got %T", got)
	}
	if len(rel) != 0 {
		t.Fatalf("expected 0 rows, got %d: %v", len(rel), rel)
	}
}

// TestCountAloneOverEmptyIsZero: count with no accompanying null-prone
// aggregate reports 0 over an empty input, it is not dropped.
func TestCountAloneOverEmptyIsZero(t *testing.T) {
	find := query.FindSpec{Kind: query.Scalar, Elems: []query.FindElem{
		{Var: "?n", Agg: &query.Aggregate{Op: query.Count}},
	}}
	cc := ccFor(find, nil, nil)
	got, err := Project(cc, nil)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	sc, ok := got.(Scalar)
	if !ok || !sc.Present {
		t.Fatalf("expected a present scalar, got %#v", got)
	}
	if sc.Value.Long() != 0 {
		t.Fatalf("expected count 0, got %d", sc.Value.Long())
	}
}

func TestRelationDedupWithoutAggregates(t *testing.T) {
	find := query.FindSpec{Kind: query.Relation, Elems: []query.FindElem{{Var: "?e"}}}
	cc := ccFor(find, nil, nil)
	rows := []Row{
		{"?e": value.NewRef(1)},
		{"?e": value.NewRef(1)},
		{"?e": value.NewRef(2)},
	}
	got, err := Project(cc, rows)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	rel := got.(Relation)
	if len(rel) != 2 {
		t.Fatalf("expected 2 distinct rows, got %d: %v", len(rel), rel)
	}
}

func TestOrderingDescending(t *testing.T) {
	find := query.FindSpec{Kind: query.Relation, Elems: []query.FindElem{{Var: "?n"}}}
	cc := ccFor(find, nil, []query.OrderSpec{{Var: "?n", Dir: query.Desc}})
	rows := []Row{
		{"?n": value.NewLong(1)},
		{"?n": value.NewLong(3)},
		{"?n": value.NewLong(2)},
	}
	got, err := Project(cc, rows)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	rel := got.(Relation)
	want := []int64{3, 2, 1}
	if len(rel) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rel))
	}
	for i, w := range want {
		if rel[i][0].Long() != w {
			t.Fatalf("row %d: expected %d, got %d", i, w, rel[i][0].Long())
		}
	}
}

func TestScalarOverEmptyIsAbsent(t *testing.T) {
	find := query.FindSpec{Kind: query.Scalar, Elems: []query.FindElem{{Var: "?e"}}}
	cc := ccFor(find, nil, nil)
	got, err := Project(cc, nil)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	sc := got.(Scalar)
	if sc.Present {
		t.Fatalf("expected absent scalar over empty input")
	}
}

func TestCollectionShape(t *testing.T) {
	find := query.FindSpec{Kind: query.Collection, Elems: []query.FindElem{{Var: "?e"}}}
	cc := ccFor(find, nil, nil)
	rows := []Row{
		{"?e": value.NewRef(1)},
		{"?e": value.NewRef(2)},
	}
	got, err := Project(cc, rows)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	coll := got.(Collection)
	if len(coll) != 2 {
		t.Fatalf("expected 2 values, got %d", len(coll))
	}
}

// TestOrderingByWithOnlyVariable reproduces spec §4.F's allowance for
// ordering by a variable that is only in :with, never projected into
// :find (query/algebrize_test.go's TestAlgebrizeOrderingAllowsWithVar
// accepts exactly this at algebrize time). ?monster never appears in
// the projected relation, so if order() silently skipped it the rows
// would come back in input order instead of sorted by monster.
func TestOrderingByWithOnlyVariable(t *testing.T) {
	find := query.FindSpec{Kind: query.Relation, Elems: []query.FindElem{{Var: "?heads"}}}
	cc := ccFor(find, []query.Var{"?monster"}, []query.OrderSpec{{Var: "?monster", Dir: query.Asc}})
	rows := []Row{
		{"?monster": value.NewRef(20), "?heads": value.NewLong(1)},
		{"?monster": value.NewRef(10), "?heads": value.NewLong(5)},
	}
	got, err := Project(cc, rows)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	rel := got.(Relation)
	want := []int64{5, 1}
	if len(rel) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rel))
	}
	for i, w := range want {
		if rel[i][0].Long() != w {
			t.Fatalf("row %d: expected heads %d (ordered by monster), got %d", i, w, rel[i][0].Long())
		}
	}
}

func TestMaxOverInstants(t *testing.T) {
	find := query.FindSpec{Kind: query.Scalar, Elems: []query.FindElem{
		{Var: "?t", Agg: &query.Aggregate{Op: query.Max}},
	}}
	cc := ccFor(find, nil, nil)
	t1 := value.NewInstant(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	t2 := value.NewInstant(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC))
	rows := []Row{{"?t": t1}, {"?t": t2}}
	got, err := Project(cc, rows)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	sc := got.(Scalar)
	if !sc.Present || !sc.Value.Time().Equal(t2.Time()) {
		t.Fatalf("expected max = %v, got %#v", t2, sc)
	}
}
