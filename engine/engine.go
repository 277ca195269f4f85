// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package engine provides a minimal in-memory reference executor that
// turns an algebrized query.CC into result rows. It exists so the
// algebrizer (query) and the result projector (result) can be exercised
// end to end without a real storage engine attached; it is explicitly
// NOT the storage collaborator of spec §6 — that contract lives in
// store, which is the only package that talks to modernc.org/sqlite.
//
// The iterate-and-bind evaluation loop is ground-truthed on
// topdown/eval.go's evaluation strategy, reduced here to the handful of
// relational operators (scan, join-by-shared-variable, filter, project)
// a flat in-memory datom set needs.
package engine

import (
	"sort"

	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/query"
	"github.com/mentatdb/mentat/value"
)

// Datom is one (entity, attribute, value, transaction, added) fact, the
// atomic unit of storage and of this executor's working set.
type Datom struct {
	E     ident.Entid
	A     ident.Entid
	V     value.Value
	Tx    int64
	Added bool
}

// Facts is a flat, unindexed in-memory datom set. Real indexing by
// (e,a)/(a,v)/(v) belongs to store; this executor scans linearly, which
// is adequate for the small fixture databases it is built to exercise.
type Facts struct {
	Datoms []Datom
}

// binding is one partial assignment of query variables to values,
// threaded through pattern evaluation the way topdown/eval.go threads
// its bindings frame through nested rule evaluation.
type binding map[query.Var]value.Value

func (b binding) clone() binding {
	cp := make(binding, len(b))
	for k, v := range b {
		cp[k] = v
	}
	return cp
}

// refValue renders an entid in the Ref-typed form the algebrizer's type
// narrowing expects at entity, attribute, and transaction positions.
func refValue(id ident.Entid) value.Value { return value.NewRef(int64(id)) }

// Execute evaluates cc against facts, returning one binding per
// satisfying assignment of the :where conjunction. A CC that the
// algebrizer already proved empty yields no rows and no error.
func Execute(cc *query.CC, facts *Facts) ([]map[query.Var]value.Value, error) {
	if cc.IsEmpty() {
		return nil, nil
	}

	seed := binding{}
	for v, val := range cc.Inputs {
		seed[v] = val
	}

	rows := []binding{seed}
	for _, clause := range cc.Where {
		var err error
		rows, err = stepClause(clause, rows, facts, cc.Columns)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
	}

	out := make([]map[query.Var]value.Value, len(rows))
	for i, r := range rows {
		out[i] = map[query.Var]value.Value(r)
	}
	return out, nil
}

func stepClause(c query.Clause, in []binding, facts *Facts, columns map[query.Var]query.ColumnSpec) ([]binding, error) {
	switch cl := c.(type) {
	case query.Pattern:
		return stepPattern(cl, in, facts, columns)
	case query.Predicate:
		return stepPredicate(cl, in)
	case query.Ground:
		return stepGround(cl, in)
	case query.TypeRequirement:
		// Already enforced statically by the algebrizer; a no-op here.
		return in, nil
	case query.Fulltext:
		return stepFulltext(cl, in, facts, columns)
	case query.TxIds:
		return stepTxIds(cl, in, facts)
	case query.TxData:
		return stepTxData(cl, in, facts)
	default:
		return nil, errors.New(errors.InvalidArgument, "unsupported clause type in reference executor")
	}
}

func stepPattern(cl query.Pattern, in []binding, facts *Facts, columns map[query.Var]query.ColumnSpec) ([]binding, error) {
	var out []binding
	for _, row := range in {
		for _, d := range facts.Datoms {
			if !d.Added {
				continue
			}
			if !matchAttrTerm(cl.A, cl.V, d.A, columns) {
				continue
			}
			next := row.clone()
			if !matchTerm(cl.E, refValue(d.E), next) {
				continue
			}
			if cl.A.Kind == query.TermVar {
				if !matchTerm(cl.A, refValue(d.A), next) {
					continue
				}
			}
			if !matchTerm(cl.V, d.V, next) {
				continue
			}
			if cl.Tx.Kind == query.TermVar && cl.Tx.Var != "" {
				if !matchTerm(cl.Tx, refValue(ident.Entid(d.Tx)), next) {
					continue
				}
			}
			out = append(out, next)
		}
	}
	return out, nil
}

// matchTerm unifies t against val within row, binding a fresh variable,
// checking an already-bound one for equality, or matching a literal.
func matchTerm(t query.Term, val value.Value, row binding) bool {
	switch t.Kind {
	case query.TermBlank:
		return true
	case query.TermVar:
		return bindVar(row, t.Var, val)
	case query.TermLiteral:
		return value.Equal(t.Literal, val)
	default:
		return false
	}
}

// matchAttrTerm filters a candidate datom's attribute entid before any
// variable binding is attempted. A keyword-literal attribute was already
// resolved to an entid at algebrize time and recorded against the value
// position's ColumnSpec (query.stageResolvingIdents); a bare variable or
// blank in the attribute position imposes no filter here.
func matchAttrTerm(a, v query.Term, datomAttr ident.Entid, columns map[query.Var]query.ColumnSpec) bool {
	if a.Kind != query.TermKeyword {
		return true
	}
	if v.Kind != query.TermVar {
		return true
	}
	col, ok := columns[v.Var]
	if !ok || !col.HasAttr {
		return true
	}
	return col.AttrEntid == datomAttr
}

func bindVar(row binding, v query.Var, val value.Value) bool {
	if existing, ok := row[v]; ok {
		return value.Equal(existing, val)
	}
	row[v] = val
	return true
}

func stepGround(cl query.Ground, in []binding) ([]binding, error) {
	var out []binding
	for _, row := range in {
		next := row.clone()
		if bindVar(next, cl.Var, cl.Literal) {
			out = append(out, next)
		}
	}
	return out, nil
}

func stepPredicate(cl query.Predicate, in []binding) ([]binding, error) {
	var out []binding
	for _, row := range in {
		vals := make([]value.Value, len(cl.Args))
		for i, a := range cl.Args {
			switch a.Kind {
			case query.TermVar:
				v, ok := row[a.Var]
				if !ok {
					return nil, errors.New(errors.InvalidArgument, "predicate argument %s unbound at evaluation time", a.Var)
				}
				vals[i] = v
			case query.TermLiteral:
				vals[i] = a.Literal
			}
		}
		ok, err := evalPredicate(cl.Op, vals)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func evalPredicate(op query.PredicateOp, args []value.Value) (bool, error) {
	switch op {
	case query.EqOp:
		return value.Equal(args[0], args[1]), nil
	case query.NeOp, query.Differ:
		return !value.Equal(args[0], args[1]), nil
	case query.Lt, query.Le, query.Gt, query.Ge, query.Unpermute:
		if args[0].Type != args[1].Type {
			return false, errors.New(errors.InvalidArgument, "predicate %s requires same-typed arguments", op)
		}
		c := value.Compare(args[0], args[1])
		switch op {
		case query.Lt, query.Unpermute:
			return c < 0, nil
		case query.Le:
			return c <= 0, nil
		case query.Gt:
			return c > 0, nil
		default: // Ge
			return c >= 0, nil
		}
	default:
		return false, errors.New(errors.InvalidArgument, "unsupported predicate operator %s", op)
	}
}

func stepFulltext(cl query.Fulltext, in []binding, facts *Facts, columns map[query.Var]query.ColumnSpec) ([]binding, error) {
	col, hasCol := columns[cl.V]
	var out []binding
	for _, row := range in {
		var search value.Value
		switch cl.Search.Kind {
		case query.TermLiteral:
			search = cl.Search.Literal
		case query.TermVar:
			v, ok := row[cl.Search.Var]
			if !ok {
				continue
			}
			search = v
		default:
			continue
		}
		for _, d := range facts.Datoms {
			if !d.Added || d.V.Type != value.String {
				continue
			}
			if hasCol && col.HasAttr && d.A != col.AttrEntid {
				continue
			}
			if !containsFold(d.V.Str(), search.Str()) {
				continue
			}
			next := row.clone()
			if !bindVar(next, cl.E, refValue(d.E)) {
				continue
			}
			if !bindVar(next, cl.V, d.V) {
				continue
			}
			if cl.Score != "" {
				if !bindVar(next, cl.Score, value.NewDouble(1.0)) {
					continue
				}
			}
			out = append(out, next)
		}
	}
	return out, nil
}

func containsFold(haystack, needle string) bool {
	return len(needle) == 0 || indexFold(haystack, needle) >= 0
}

func indexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if equalFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// asTxRef accepts either a Ref or a Long literal naming a transaction,
// since callers may supply either representation for :in-bound bounds.
func asTxRef(v value.Value) int64 {
	if v.Type == value.Ref {
		return v.Entid()
	}
	return v.Long()
}

func stepTxIds(cl query.TxIds, in []binding, facts *Facts) ([]binding, error) {
	seen := map[int64]bool{}
	var txs []int64
	for _, d := range facts.Datoms {
		if !seen[d.Tx] {
			seen[d.Tx] = true
			txs = append(txs, d.Tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i] < txs[j] })

	bound := func(t query.Term, row binding) *int64 {
		v, ok := t.Literal, t.Kind == query.TermLiteral
		if t.Kind == query.TermVar {
			v, ok = row[t.Var]
		}
		if !ok {
			return nil
		}
		n := asTxRef(v)
		return &n
	}

	var out []binding
	for _, row := range in {
		after, before := bound(cl.After, row), bound(cl.Before, row)
		for _, tx := range txs {
			if after != nil && tx <= *after {
				continue
			}
			if before != nil && tx >= *before {
				continue
			}
			next := row.clone()
			if bindVar(next, cl.Bind, refValue(ident.Entid(tx))) {
				out = append(out, next)
			}
		}
	}
	return out, nil
}

func stepTxData(cl query.TxData, in []binding, facts *Facts) ([]binding, error) {
	var out []binding
	for _, row := range in {
		var want *int64
		switch cl.Tx.Kind {
		case query.TermVar:
			if v, ok := row[cl.Tx.Var]; ok {
				n := asTxRef(v)
				want = &n
			}
		case query.TermLiteral:
			n := asTxRef(cl.Tx.Literal)
			want = &n
		}
		for _, d := range facts.Datoms {
			if want != nil && d.Tx != *want {
				continue
			}
			next := row.clone()
			if !bindVar(next, cl.E, refValue(d.E)) {
				continue
			}
			if !bindVar(next, cl.A, refValue(d.A)) {
				continue
			}
			if !bindVar(next, cl.V, d.V) {
				continue
			}
			if !bindVar(next, cl.Tx2, refValue(ident.Entid(d.Tx))) {
				continue
			}
			if !bindVar(next, cl.Added, value.NewBoolean(d.Added)) {
				continue
			}
			out = append(out, next)
		}
	}
	return out, nil
}
