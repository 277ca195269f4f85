// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package query

import (
	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/value"
)

// state names the algebrizer's explicit state machine (spec §4.F "State
// machine of algebrization"). Ground-truthed on ast/compile.go's
// Compiler.stages table-of-named-passes pattern, made explicit here
// because the spec calls out the states by name.
type state int

const (
	stateParsing state = iota
	stateResolvingIdents
	stateTypingClauses
	stateCheckingInputsAndAggregates
	stateOrdering
	stateFinalized
	stateEmptyProvable
	stateFailed
)

// algebrizer holds the mutable working state threaded through the stages.
type algebrizer struct {
	schema *schema.Schema
	form   Form
	inputs map[Var]value.Value

	tt      *typeTree
	columns map[Var]ColumnSpec
	empty   *EmptyCause
	errs    errors.Errors
	state   state
}

// Algebrize transforms form into a typed CC against schema, given the
// caller-supplied :in bindings. It drives the explicit state machine of
// spec §4.F; a provably-empty result is returned successfully (CC with
// EmptyBecause set, no errors); any other inconsistency returns nil and a
// non-empty errors.Errors.
func Algebrize(s *schema.Schema, form Form, inputs map[Var]value.Value) (*CC, errors.Errors) {
	a := &algebrizer{
		schema:  s,
		form:    form,
		inputs:  inputs,
		tt:      newTypeTree(),
		columns: map[Var]ColumnSpec{},
		state:   stateParsing,
	}

	stages := []struct {
		name string
		f    func()
	}{
		{"parsing", a.stageParsing},
		{"resolving-idents", a.stageResolvingIdents},
		{"typing-clauses", a.stageTypingClauses},
		{"checking-inputs-and-aggregates", a.stageCheckingInputsAndAggregates},
		{"ordering", a.stageOrdering},
	}

	for _, st := range stages {
		st.f()
		if a.state == stateEmptyProvable || a.state == stateFailed {
			break
		}
	}

	if a.state == stateFailed {
		return nil, a.errs
	}

	if a.state != stateEmptyProvable {
		a.state = stateFinalized
	}

	return a.finalize(), nil
}

func (a *algebrizer) fail(err *errors.Error) {
	a.errs = append(a.errs, err)
	a.state = stateFailed
}

func (a *algebrizer) becomeEmpty(reason EmptyReason, detail string) {
	if a.empty == nil {
		a.empty = &EmptyCause{Reason: reason, Detail: detail}
	}
	a.state = stateEmptyProvable
}

// stageParsing performs structural sanity checks on the form that the
// external parser (spec §6) does not itself guarantee.
func (a *algebrizer) stageParsing() {
	if len(a.form.Find.Elems) == 0 {
		a.fail(errors.New(errors.InvalidArgument, "query :find must project at least one variable"))
		return
	}
	switch a.form.Find.Kind {
	case Scalar, Collection:
		if len(a.form.Find.Elems) != 1 {
			a.fail(errors.New(errors.InvalidArgument,
				"scalar and collection find-specs must project exactly one element"))
			return
		}
	}
	a.state = stateResolvingIdents
}

// stageResolvingIdents resolves attribute keywords appearing in pattern
// and fulltext clauses into entids via the identifier registry (spec
// §4.B), recording each variable's ColumnSpec.
func (a *algebrizer) stageResolvingIdents() {
	for _, c := range a.form.Where {
		switch cl := c.(type) {
		case Pattern:
			if cl.A.Kind == TermKeyword {
				id, _, err := a.schema.AttributeForKeyword(cl.A.Keyword)
				if err != nil {
					a.fail(err.(*errors.Error))
					return
				}
				if cl.V.Kind == TermVar {
					a.columns[cl.V.Var] = ColumnSpec{AttrEntid: id, HasAttr: true}
				}
			}
		case Fulltext:
			id, attr, err := a.schema.AttributeForKeyword(cl.Attr)
			if err != nil {
				a.fail(err.(*errors.Error))
				return
			}
			if !attr.Fulltext {
				a.fail(errors.New(errors.InvalidArgument,
					"attribute %s is not fulltext-indexed", cl.Attr))
				return
			}
			a.columns[cl.V] = ColumnSpec{AttrEntid: id, HasAttr: true}
		}
	}
	a.state = stateTypingClauses
}

// stageTypingClauses narrows every variable's type set left to right by
// intersection with (i) the attribute's value_type at pattern positions
// and (ii) explicit `type` requirements (spec §4.F "Type inference and
// collapse-to-empty"), ground-truthed on ast/env.go's TypeEnv narrowing.
func (a *algebrizer) stageTypingClauses() {
	for _, c := range a.form.Where {
		switch cl := c.(type) {
		case Pattern:
			a.typePattern(cl)
		case Predicate:
			a.typePredicate(cl)
		case TypeRequirement:
			a.typeRequirement(cl)
		case Ground:
			a.tt.bind(cl.Var)
			a.narrow(cl.Var, value.NewTypeSet(cl.Literal.Type))
		case Fulltext:
			a.typeFulltext(cl)
		case TxIds:
			if cl.Bind != "" {
				a.tt.bind(cl.Bind)
				a.narrow(cl.Bind, value.NewTypeSet(value.Ref))
			}
		case TxData:
			a.bindRef(cl.E)
			a.bindRef(cl.A)
			a.tt.bind(cl.V)
			a.bindRef(cl.Tx2)
			a.tt.bind(cl.Added)
			a.narrow(cl.Added, value.NewTypeSet(value.Boolean))
		}
		if a.state == stateEmptyProvable || a.state == stateFailed {
			return
		}
	}
	if a.state != stateEmptyProvable {
		a.state = stateCheckingInputsAndAggregates
	}
}

func (a *algebrizer) bindRef(v Var) {
	if v == "" {
		return
	}
	a.tt.bind(v)
	a.narrow(v, value.NewTypeSet(value.Ref))
}

func (a *algebrizer) narrow(v Var, ts value.TypeSet) {
	result := a.tt.narrow(v, ts)
	if result.IsEmpty() {
		a.becomeEmpty(TypeMismatch, "variable "+string(v)+" has no remaining possible type")
	}
}

func (a *algebrizer) typePattern(cl Pattern) {
	if cl.E.Kind == TermVar {
		a.bindRef(cl.E.Var)
	}
	if cl.Tx.Kind == TermVar {
		a.bindRef(cl.Tx.Var)
	}
	if cl.A.Kind == TermVar {
		a.tt.bind(cl.A.Var)
		a.narrow(cl.A.Var, value.NewTypeSet(value.Keyword, value.Ref))
	}
	if cl.V.Kind == TermVar {
		a.tt.bind(cl.V.Var)
		if col, ok := a.columns[cl.V.Var]; ok && col.HasAttr {
			attr, err := a.schema.RequireAttributeFor(col.AttrEntid)
			if err != nil {
				a.fail(err.(*errors.Error))
				return
			}
			a.narrow(cl.V.Var, value.NewTypeSet(attr.ValueType))
		}
	}
}

// numericLike is the type domain accepted by comparison predicates and
// `differ`/`unpermute` operands (spec §4.F "Predicate": "numeric,
// instant, or ref operands").
func numericLike() value.TypeSet {
	return value.NewTypeSet(value.Long, value.Double, value.Instant, value.Ref)
}

func (a *algebrizer) typePredicate(cl Predicate) {
	for i, arg := range cl.Args {
		if arg.Kind != TermVar {
			continue
		}
		if !a.tt.isBound(arg.Var) {
			a.fail(errors.WithDetail(errors.InvalidArgument,
				errors.InvalidArgumentDetail{Symbol: string(arg.Var), Expected: "bound", Position: i},
				"predicate %s references unbound variable %s at position %d", cl.Op, arg.Var, i))
			return
		}
		if cl.Op != EqOp && cl.Op != NeOp {
			a.narrow(arg.Var, numericLike())
			if a.state == stateEmptyProvable {
				return
			}
		}
	}
}

func (a *algebrizer) typeRequirement(cl TypeRequirement) {
	if !a.tt.isBound(cl.Var) {
		a.fail(errors.WithDetail(errors.InvalidArgument,
			errors.InvalidArgumentDetail{Symbol: string(cl.Var), Expected: cl.Type.String(), Position: 0},
			"type requirement references unbound variable %s", cl.Var))
		return
	}
	a.narrow(cl.Var, value.NewTypeSet(cl.Type))
}

func (a *algebrizer) typeFulltext(cl Fulltext) {
	a.bindRef(cl.E)
	a.tt.bind(cl.V)
	a.narrow(cl.V, value.NewTypeSet(value.String))
	if a.state == stateEmptyProvable {
		return
	}
	if cl.Score != "" {
		a.tt.bind(cl.Score)
		a.narrow(cl.Score, value.NewTypeSet(value.Double))
	}

	switch cl.Search.Kind {
	case TermLiteral:
		if cl.Search.Literal.Type != value.String {
			a.fail(errors.New(errors.InvalidArgument,
				"fulltext search term must be a string literal"))
		}
	case TermVar:
		if !a.tt.isBound(cl.Search.Var) {
			a.fail(errors.WithDetail(errors.InvalidArgument,
				errors.InvalidArgumentDetail{Symbol: string(cl.Search.Var), Expected: "string", Position: 2},
				"fulltext search term references unbound variable %s", cl.Search.Var))
			return
		}
		a.narrow(cl.Search.Var, value.NewTypeSet(value.String))
	default:
		a.fail(errors.New(errors.InvalidArgument, "fulltext search term must be a string literal or bound variable"))
	}
}

// stageCheckingInputsAndAggregates enforces spec §4.F "Inputs (:in)" and
// "Aggregation and :with".
func (a *algebrizer) stageCheckingInputsAndAggregates() {
	var missing []string
	for _, in := range a.form.In {
		if _, ok := a.inputs[in.Var]; !ok {
			missing = append(missing, string(in.Var))
		}
	}
	if len(missing) > 0 {
		a.fail(errors.WithDetail(errors.UnboundVariables,
			errors.UnboundVariablesDetail{Vars: missing},
			"query declared :in variables not supplied: %v", missing))
		return
	}

	for _, in := range a.form.In {
		v := a.inputs[in.Var]
		known := a.tt.get(in.Var)
		if !known.Has(v.Type) {
			a.becomeEmpty(TypeMismatch, "input "+string(in.Var)+" type does not match inferred type requirements")
			return
		}
	}

	theCount, minMaxCount := 0, 0
	for _, e := range a.form.Find.Elems {
		if e.Agg == nil {
			continue
		}
		switch e.Agg.Op {
		case Sum, Avg:
			types := a.tt.get(e.Var)
			if !types.Subset(value.NewTypeSet(value.Long, value.Double)) {
				a.fail(errors.WithDetail(errors.CannotApplyAggregateOperationToTypes,
					errors.CannotApplyAggregateDetail{Op: e.Agg.Op.String(), Types: typeNames(types)},
					"cannot apply aggregate %s to types %s", e.Agg.Op, types))
				return
			}
		case Min, Max:
			minMaxCount++
			types := a.tt.get(e.Var)
			accepted := value.NewTypeSet(value.Long, value.Double, value.String, value.Instant, value.Keyword, value.Uuid, value.Ref)
			if !types.Subset(accepted) {
				a.fail(errors.WithDetail(errors.CannotApplyAggregateOperationToTypes,
					errors.CannotApplyAggregateDetail{Op: e.Agg.Op.String(), Types: typeNames(types)},
					"cannot apply aggregate %s to types %s", e.Agg.Op, types))
				return
			}
		case The:
			theCount++
		}
	}

	ambiguous := theCount > 1 || (theCount >= 1 && minMaxCount > 1)
	if ambiguous {
		a.fail(errors.WithDetail(errors.AmbiguousAggregates,
			errors.AmbiguousAggregatesDetail{MinMaxCount: minMaxCount, TheCount: theCount},
			"ambiguous aggregates: %d min/max alongside %d `the`", minMaxCount, theCount))
		return
	}

	a.state = stateOrdering
}

func typeNames(ts value.TypeSet) []string {
	members := ts.Members()
	out := make([]string, len(members))
	for i, t := range members {
		out[i] = t.String()
	}
	return out
}

// stageOrdering validates spec §4.F "Ordering": a variable may be ordered
// only if it is projected or named in :with.
func (a *algebrizer) stageOrdering() {
	projected := map[Var]bool{}
	for _, v := range a.form.Find.Vars() {
		projected[v] = true
	}
	for _, v := range a.form.With {
		projected[v] = true
	}
	for _, o := range a.form.Order {
		if !projected[o.Var] {
			a.fail(errors.WithDetail(errors.InvalidArgument,
				errors.InvalidArgumentDetail{Symbol: string(o.Var), Expected: "projected", Position: 0},
				"order variable %s is neither projected nor in :with", o.Var))
			return
		}
	}
	a.state = stateFinalized
}

func (a *algebrizer) finalize() *CC {
	return &CC{
		Columns:      a.columns,
		KnownTypes:   a.tt.types,
		EmptyBecause: a.empty,
		Find:         a.form.Find,
		In:           a.form.In,
		With:         a.form.With,
		Where:        a.form.Where,
		Order:        a.form.Order,
		Inputs:       a.inputs,
	}
}
