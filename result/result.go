// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package result implements the Result Shape Projector of spec §4.H: it
// turns the rows a query executor produces for an algebrized query.CC
// into one of the four find-shapes (relation, tuple, collection,
// scalar), applying :with-sensitive deduplication before aggregation and
// the null-aggregate-drop rule (spec §8 S7).
//
// Ground truth: rego/rego.go's ResultSet/Result shape types, generalized
// from Rego's single JSON-document result to the four Datalog find
// shapes; aggregate reduction mirrors topdown/aggregates.go's
// reduceSum/reduceCount/reduceMax, reduced to operate over columns of
// typed values rather than JSON arrays.
package result

import (
	"sort"

	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/query"
	"github.com/mentatdb/mentat/value"
)

// Row is one binding produced by an execution collaborator (e.g. engine).
type Row map[query.Var]value.Value

// Relation is the :find ?a ?b ... shape: every satisfying row,
// projected to the :find variables in order.
type Relation [][]value.Value

// Tuple is the :find [?a ?b ...] shape: at most one row.
type Tuple []value.Value

// Collection is the :find [?a ...] shape: every value of the single
// projected variable.
type Collection []value.Value

// Scalar is the :find ?a . shape: at most one value.
type Scalar struct {
	Value   value.Value
	Present bool
}

// Project renders rows according to cc's find-shape and aggregates,
// returning a Relation, Tuple, Collection, or Scalar as cc.Find.Kind
// dictates.
func Project(cc *query.CC, rows []Row) (interface{}, error) {
	if cc.IsEmpty() {
		rows = nil
	}

	grouped, withCols, err := groupAndAggregate(cc, rows)
	if err != nil {
		return nil, err
	}

	grouped, err = order(cc, grouped, withCols)
	if err != nil {
		return nil, err
	}

	switch cc.Find.Kind {
	case query.Relation:
		return toRelation(grouped), nil
	case query.Tuple:
		if len(grouped) == 0 {
			return Tuple(nil), nil
		}
		return Tuple(grouped[0]), nil
	case query.Collection:
		out := make(Collection, len(grouped))
		for i, r := range grouped {
			out[i] = r[0]
		}
		return out, nil
	case query.Scalar:
		if len(grouped) == 0 {
			return Scalar{}, nil
		}
		return Scalar{Value: grouped[0][0], Present: true}, nil
	default:
		return nil, errors.New(errors.InvalidArgument, "unknown find shape")
	}
}

func toRelation(grouped [][]value.Value) Relation {
	out := make(Relation, len(grouped))
	copy(out, grouped)
	return out
}

// groupAndAggregate partitions rows by the non-aggregated :find
// variables (the grouping key), dedups rows by every :find variable
// (grouped or aggregated) plus the :with variables before reducing
// aggregates, and
// drops any group where a non-count aggregate has no input (spec §8 S7).
//
// Alongside the projected :find columns it also returns, per output row,
// the :with variables' values — spec §4.F's ordering rule lets a query
// order by a variable that is only in :with, never projected into the
// output shape, so order() needs somewhere to find it.
func groupAndAggregate(cc *query.CC, rows []Row) ([][]value.Value, [][]value.Value, error) {
	elems := cc.Find.Elems

	// Rows are deduped on every :find variable (grouping or aggregated)
	// plus :with before aggregation runs — the monster/heads scenario of
	// spec §8 S5: without :with, dedup collapses on the aggregated
	// variable alone; adding :with ?monster widens the dedup key so each
	// monster's heads survive separately.
	dedupKey := append(append([]query.Var{}, cc.Find.Vars()...), cc.With...)
	deduped := dedupRows(rows, dedupKey)

	if !cc.Find.HasAggregates() {
		out := make([][]value.Value, len(deduped))
		withCols := make([][]value.Value, len(deduped))
		for i, r := range deduped {
			out[i] = projectRow(r, elems)
			withCols[i] = projectVars(r, cc.With)
		}
		return out, withCols, nil
	}

	groupVars := make([]query.Var, 0, len(elems))
	for _, e := range elems {
		if e.Agg == nil {
			groupVars = append(groupVars, e.Var)
		}
	}

	type group struct {
		keyVals []value.Value
		members []Row
	}
	groupOrder := []string{}
	groups := map[string]*group{}
	for _, r := range deduped {
		gk := rowKey(r, groupVars)
		g, ok := groups[gk]
		if !ok {
			g = &group{keyVals: projectVars(r, groupVars)}
			groups[gk] = g
			groupOrder = append(groupOrder, gk)
		}
		g.members = append(g.members, r)
	}

	// A query with no non-aggregate grouping variables and zero input
	// rows still has exactly one implicit group (spec §8 S7): count
	// aggregates over it as zero, other aggregates as NULL.
	if len(groupVars) == 0 && len(rows) == 0 {
		groupOrder = []string{""}
		groups[""] = &group{}
	}

	var out [][]value.Value
	var withCols [][]value.Value
	for _, gk := range groupOrder {
		g := groups[gk]
		row, dropped, err := reduceGroup(elems, g.keyVals, g.members)
		if err != nil {
			return nil, nil, err
		}
		if dropped {
			continue
		}
		out = append(out, row)
		if len(g.members) > 0 {
			withCols = append(withCols, projectVars(g.members[0], cc.With))
		} else {
			withCols = append(withCols, make([]value.Value, len(cc.With)))
		}
	}
	return out, withCols, nil
}

func dedupRows(rows []Row, key []query.Var) []Row {
	seen := map[string]bool{}
	var out []Row
	for _, r := range rows {
		k := rowKey(r, key)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func reduceGroup(elems []query.FindElem, keyVals []value.Value, members []Row) ([]value.Value, bool, error) {
	row := make([]value.Value, len(elems))
	gi := 0
	for i, e := range elems {
		if e.Agg == nil {
			row[i] = keyVals[gi]
			gi++
			continue
		}
		v, isNull, err := reduceAggregate(*e.Agg, e.Var, members)
		if err != nil {
			return nil, false, err
		}
		if isNull {
			return nil, true, nil
		}
		row[i] = v
	}
	return row, false, nil
}

func reduceAggregate(agg query.Aggregate, v query.Var, members []Row) (value.Value, bool, error) {
	switch agg.Op {
	case query.Count:
		return value.NewLong(int64(len(members))), false, nil
	case query.CountDistinct:
		seen := map[string]bool{}
		for _, m := range members {
			seen[valueKey(m[v])] = true
		}
		return value.NewLong(int64(len(seen))), false, nil
	case query.Sum:
		if len(members) == 0 {
			return value.Value{}, true, nil
		}
		return reduceSum(v, members)
	case query.Avg:
		if len(members) == 0 {
			return value.Value{}, true, nil
		}
		sum, err := reduceSum(v, members)
		if err != nil {
			return value.Value{}, false, err
		}
		var f float64
		if sum.Type == value.Long {
			f = float64(sum.Long())
		} else {
			f = sum.Double()
		}
		return value.NewDouble(f / float64(len(members))), false, nil
	case query.Min:
		return reduceMinMax(v, members, true)
	case query.Max:
		return reduceMinMax(v, members, false)
	case query.The:
		if len(members) == 0 {
			return value.Value{}, true, nil
		}
		return members[0][v], false, nil
	default:
		return value.Value{}, false, errors.New(errors.InvalidArgument, "unsupported aggregate %s", agg.Op)
	}
}

func reduceSum(v query.Var, members []Row) (value.Value, error) {
	allLong := true
	var sumI int64
	var sumF float64
	for _, m := range members {
		val := m[v]
		switch val.Type {
		case value.Long:
			sumI += val.Long()
			sumF += float64(val.Long())
		case value.Double:
			allLong = false
			sumF += val.Double()
		default:
			return value.Value{}, errors.New(errors.CannotApplyAggregateOperationToTypes, "sum over non-numeric value")
		}
	}
	if allLong {
		return value.NewLong(sumI), nil
	}
	return value.NewDouble(sumF), nil
}

func reduceMinMax(v query.Var, members []Row, wantMin bool) (value.Value, bool, error) {
	if len(members) == 0 {
		return value.Value{}, true, nil
	}
	best := members[0][v]
	for _, m := range members[1:] {
		val := m[v]
		c := value.Compare(val, best)
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = val
		}
	}
	return best, false, nil
}

func projectRow(r Row, elems []query.FindElem) []value.Value {
	out := make([]value.Value, len(elems))
	for i, e := range elems {
		out[i] = r[e.Var]
	}
	return out
}

func projectVars(r Row, vars []query.Var) []value.Value {
	out := make([]value.Value, len(vars))
	for i, v := range vars {
		out[i] = r[v]
	}
	return out
}

func rowKey(r Row, vars []query.Var) string {
	var b []byte
	for _, v := range vars {
		b = append(b, []byte(valueKey(r[v]))...)
		b = append(b, 0)
	}
	return string(b)
}

func valueKey(v value.Value) string {
	return v.Type.String() + ":" + v.String()
}

// order applies cc.Order's lexicographic multi-key sort to the already
// grouped/aggregated rows. The algebrizer already proved every ordered
// variable is projected or in :with (query.stageOrdering): a :find
// variable is sorted off the projected columns directly; a :with-only
// variable has no column of its own in rows, so it is sorted off
// withCols, the parallel per-row :with values groupAndAggregate carried
// through for exactly this purpose.
func order(cc *query.CC, rows [][]value.Value, withCols [][]value.Value) ([][]value.Value, error) {
	if len(cc.Order) == 0 {
		return rows, nil
	}
	index := map[query.Var]int{}
	for i, e := range cc.Find.Elems {
		index[e.Var] = i
	}
	withIndex := map[query.Var]int{}
	for i, v := range cc.With {
		withIndex[v] = i
	}

	type indexedRow struct {
		cols []value.Value
		with []value.Value
	}
	sorted := make([]indexedRow, len(rows))
	for i := range rows {
		var w []value.Value
		if i < len(withCols) {
			w = withCols[i]
		}
		sorted[i] = indexedRow{cols: rows[i], with: w}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		for _, o := range cc.Order {
			var a, b value.Value
			if idx, ok := index[o.Var]; ok {
				a, b = sorted[i].cols[idx], sorted[j].cols[idx]
			} else if idx, ok := withIndex[o.Var]; ok {
				a, b = sorted[i].with[idx], sorted[j].with[idx]
			} else {
				continue
			}
			c := value.Compare(a, b)
			if c == 0 {
				continue
			}
			if o.Dir == query.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	out := make([][]value.Value, len(sorted))
	for i, s := range sorted {
		out[i] = s.cols
	}
	return out, nil
}
