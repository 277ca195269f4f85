// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mentatdb/mentat/engine"
	"github.com/mentatdb/mentat/query"
	"github.com/mentatdb/mentat/result"
	"github.com/mentatdb/mentat/store"
	"github.com/mentatdb/mentat/value"
)

// jsonLiteral names a value's type explicitly, since plain JSON scalars
// are ambiguous between, say, :db.type/long and :db.type/double. This
// stands in for whatever literal syntax an external symbolic parser
// would already have disambiguated (spec §6).
type jsonLiteral struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

func (l jsonLiteral) toValue() (value.Value, error) {
	switch l.Type {
	case "boolean":
		b, ok := l.Value.(bool)
		if !ok {
			return value.Value{}, errors.Errorf("literal type boolean needs a JSON boolean")
		}
		return value.NewBoolean(b), nil
	case "long":
		n, ok := l.Value.(float64)
		if !ok {
			return value.Value{}, errors.Errorf("literal type long needs a JSON number")
		}
		return value.NewLong(int64(n)), nil
	case "double":
		n, ok := l.Value.(float64)
		if !ok {
			return value.Value{}, errors.Errorf("literal type double needs a JSON number")
		}
		return value.NewDouble(n), nil
	case "string":
		s, ok := l.Value.(string)
		if !ok {
			return value.Value{}, errors.Errorf("literal type string needs a JSON string")
		}
		return value.NewString(s), nil
	case "keyword":
		s, ok := l.Value.(string)
		if !ok {
			return value.Value{}, errors.Errorf("literal type keyword needs a JSON string")
		}
		return value.NewKeyword(s), nil
	case "uuid":
		s, ok := l.Value.(string)
		if !ok {
			return value.Value{}, errors.Errorf("literal type uuid needs a JSON string")
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewUuid(u), nil
	case "instant":
		s, ok := l.Value.(string)
		if !ok {
			return value.Value{}, errors.Errorf("literal type instant needs a JSON string")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInstant(t), nil
	case "ref":
		n, ok := l.Value.(float64)
		if !ok {
			return value.Value{}, errors.Errorf("literal type ref needs a JSON number")
		}
		return value.NewRef(int64(n)), nil
	default:
		return value.Value{}, errors.Errorf("unknown literal type %q", l.Type)
	}
}

type jsonTerm struct {
	Var     string       `json:"var,omitempty"`
	Blank   bool         `json:"blank,omitempty"`
	Keyword string       `json:"keyword,omitempty"`
	Lit     *jsonLiteral `json:"lit,omitempty"`
}

func (t jsonTerm) toTerm() (query.Term, error) {
	switch {
	case t.Blank:
		return query.BlankTerm(), nil
	case t.Keyword != "":
		return query.KeywordTerm(parseKeywordString(t.Keyword)), nil
	case t.Lit != nil:
		v, err := t.Lit.toValue()
		if err != nil {
			return query.Term{}, err
		}
		return query.LiteralTerm(v), nil
	case t.Var != "":
		return query.VarTerm(query.Var(t.Var)), nil
	default:
		return query.Term{}, errors.Errorf("term must set one of var, blank, keyword, or lit")
	}
}

// jsonClause accepts the subset of spec §4.F's clause vocabulary a
// JSON-shaped CLI can reasonably express: patterns, predicates, ground,
// and type-requirements. Fulltext, tx-ids, and tx-data clauses are fully
// supported by the algebrizer and reference executor; they are just not
// wired into this JSON surface, which exists as a CLI convenience, not a
// replacement for the external symbolic parser (spec §6).
type jsonClause struct {
	Type string `json:"type"`

	// pattern
	E  *jsonTerm `json:"e,omitempty"`
	A  *jsonTerm `json:"a,omitempty"`
	V  *jsonTerm `json:"v,omitempty"`
	Tx *jsonTerm `json:"tx,omitempty"`

	// predicate
	Op   string      `json:"op,omitempty"`
	Args []jsonTerm  `json:"args,omitempty"`

	// ground / type-requirement
	GVar      string       `json:"var,omitempty"`
	Lit       *jsonLiteral `json:"lit,omitempty"`
	ValueType string       `json:"value_type,omitempty"`
}

var predicateOps = map[string]query.PredicateOp{
	"<": query.Lt, "<=": query.Le, ">": query.Gt, ">=": query.Ge,
	"=": query.EqOp, "!=": query.NeOp, "differ": query.Differ, "unpermute": query.Unpermute,
}

func (c jsonClause) toClause() (query.Clause, error) {
	switch c.Type {
	case "pattern":
		if c.E == nil || c.A == nil || c.V == nil {
			return nil, errors.Errorf("pattern clause requires e, a, and v")
		}
		e, err := c.E.toTerm()
		if err != nil {
			return nil, err
		}
		a, err := c.A.toTerm()
		if err != nil {
			return nil, err
		}
		v, err := c.V.toTerm()
		if err != nil {
			return nil, err
		}
		tx := query.BlankTerm()
		if c.Tx != nil {
			tx, err = c.Tx.toTerm()
			if err != nil {
				return nil, err
			}
		}
		return query.Pattern{E: e, A: a, V: v, Tx: tx}, nil
	case "predicate":
		op, ok := predicateOps[c.Op]
		if !ok {
			return nil, errors.Errorf("unknown predicate op %q", c.Op)
		}
		args := make([]query.Term, len(c.Args))
		for i, jt := range c.Args {
			t, err := jt.toTerm()
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		return query.Predicate{Op: op, Args: args}, nil
	case "ground":
		if c.Lit == nil || c.GVar == "" {
			return nil, errors.Errorf("ground clause requires var and lit")
		}
		v, err := c.Lit.toValue()
		if err != nil {
			return nil, err
		}
		return query.Ground{Var: query.Var(c.GVar), Literal: v}, nil
	case "type":
		if c.GVar == "" || c.ValueType == "" {
			return nil, errors.Errorf("type clause requires var and value_type")
		}
		t, err := parseValueType(c.ValueType)
		if err != nil {
			return nil, err
		}
		return query.TypeRequirement{Var: query.Var(c.GVar), Type: t}, nil
	default:
		return nil, errors.Errorf("unsupported clause type %q", c.Type)
	}
}

type jsonFindElem struct {
	Var string `json:"var"`
	Agg string `json:"agg,omitempty"`
}

var aggOps = map[string]query.AggOp{
	"count": query.Count, "count-distinct": query.CountDistinct, "sum": query.Sum,
	"min": query.Min, "max": query.Max, "avg": query.Avg, "the": query.The,
}

type jsonFindSpec struct {
	Kind  string         `json:"kind"`
	Elems []jsonFindElem `json:"elems"`
}

var findKinds = map[string]query.FindKind{
	"relation": query.Relation, "tuple": query.Tuple, "collection": query.Collection, "scalar": query.Scalar,
}

func (f jsonFindSpec) toFindSpec() (query.FindSpec, error) {
	kind, ok := findKinds[f.Kind]
	if !ok {
		return query.FindSpec{}, errors.Errorf("unknown find kind %q", f.Kind)
	}
	elems := make([]query.FindElem, len(f.Elems))
	for i, e := range f.Elems {
		fe := query.FindElem{Var: query.Var(e.Var)}
		if e.Agg != "" {
			op, ok := aggOps[e.Agg]
			if !ok {
				return query.FindSpec{}, errors.Errorf("unknown aggregate %q", e.Agg)
			}
			fe.Agg = &query.Aggregate{Op: op}
		}
		elems[i] = fe
	}
	return query.FindSpec{Kind: kind, Elems: elems}, nil
}

type jsonOrderSpec struct {
	Var string `json:"var"`
	Dir string `json:"dir"`
}

type jsonForm struct {
	Find    jsonFindSpec           `json:"find"`
	In      []string               `json:"in,omitempty"`
	Where   []jsonClause           `json:"where"`
	Order   []jsonOrderSpec        `json:"order,omitempty"`
	Inputs  map[string]jsonLiteral `json:"inputs,omitempty"`
}

func (jf jsonForm) build() (query.Form, map[query.Var]value.Value, error) {
	find, err := jf.Find.toFindSpec()
	if err != nil {
		return query.Form{}, nil, err
	}

	in := make([]query.InputSpec, len(jf.In))
	for i, v := range jf.In {
		in[i] = query.InputSpec{Var: query.Var(v)}
	}

	where := make([]query.Clause, len(jf.Where))
	for i, jc := range jf.Where {
		cl, err := jc.toClause()
		if err != nil {
			return query.Form{}, nil, errors.Wrapf(err, "where[%d]", i)
		}
		where[i] = cl
	}

	order := make([]query.OrderSpec, len(jf.Order))
	for i, jo := range jf.Order {
		dir := query.Asc
		if jo.Dir == "desc" {
			dir = query.Desc
		}
		order[i] = query.OrderSpec{Var: query.Var(jo.Var), Dir: dir}
	}

	inputs := make(map[query.Var]value.Value, len(jf.Inputs))
	for k, lit := range jf.Inputs {
		v, err := lit.toValue()
		if err != nil {
			return query.Form{}, nil, errors.Wrapf(err, "inputs[%s]", k)
		}
		inputs[query.Var(k)] = v
	}

	return query.Form{Find: find, In: in, Where: where, Order: order}, inputs, nil
}

var queryCmd = &cobra.Command{
	Use:   "query [file]",
	Short: "Algebrize and execute a JSON-encoded query form against the store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFromContext(cmd.Context())

		r, err := openInput(args)
		if err != nil {
			return err
		}
		defer r.Close()

		var jf jsonForm
		if err := json.NewDecoder(r).Decode(&jf); err != nil {
			return errors.Wrapf(err, "decode query form")
		}

		form, inputs, err := jf.build()
		if err != nil {
			return err
		}

		sch := a.tx.Schema()
		cc, errs := query.Algebrize(sch, form, inputs)
		if len(errs) != 0 {
			return errors.Wrapf(errs, "algebrize")
		}
		a.metrics.QueryAlgebrized(cc.IsEmpty())

		facts, err := loadFacts(cmd.Context(), a.store)
		if err != nil {
			return err
		}

		rawRows, err := engine.Execute(cc, facts)
		if err != nil {
			return errors.Wrapf(err, "execute")
		}
		rows := make([]result.Row, len(rawRows))
		for i, r := range rawRows {
			rows[i] = result.Row(r)
		}

		projected, err := result.Project(cc, rows)
		if err != nil {
			return errors.Wrapf(err, "project")
		}

		return json.NewEncoder(cmd.OutOrStdout()).Encode(projected)
	},
}

func loadFacts(ctx context.Context, s *store.Store) (*engine.Facts, error) {
	datoms, err := s.AllDatoms(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "load facts")
	}
	out := make([]engine.Datom, len(datoms))
	for i, d := range datoms {
		out[i] = engine.Datom{E: d.E, A: d.A, V: d.V, Tx: d.Tx, Added: true}
	}
	return &engine.Facts{Datoms: out}, nil
}
