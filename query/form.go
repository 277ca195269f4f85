// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package query

import (
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// FindKind is the closed enumeration of the four find-shapes of spec §4.F.
type FindKind int

const (
	Relation FindKind = iota
	Tuple
	Collection
	Scalar
)

func (k FindKind) String() string {
	switch k {
	case Relation:
		return "relation"
	case Tuple:
		return "tuple"
	case Collection:
		return "collection"
	case Scalar:
		return "scalar"
	default:
		return "?"
	}
}

// AggOp is the closed enumeration of supported aggregate operations
// (spec §4.F "Aggregation and :with").
type AggOp int

const (
	Count AggOp = iota
	CountDistinct
	Sum
	Min
	Max
	Avg
	The
)

func (op AggOp) String() string {
	switch op {
	case Count:
		return "count"
	case CountDistinct:
		return "count-distinct"
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	case Avg:
		return "avg"
	case The:
		return "the"
	default:
		return "?"
	}
}

// isMinMax reports whether op is min or max, the "at most one min/max
// alongside `the`" family from spec §4.F.
func (op AggOp) isMinMax() bool {
	return op == Min || op == Max
}

// Aggregate decorates a projected FindElem with an aggregate operation.
type Aggregate struct {
	Op AggOp
}

// FindElem is one projected slot of :find: a variable, optionally wrapped
// in an aggregate.
type FindElem struct {
	Var Var
	Agg *Aggregate // nil if this slot is a bare variable, not an aggregate
}

// FindSpec captures which of the four shapes the query requested and the
// projected elements.
type FindSpec struct {
	Kind  FindKind
	Elems []FindElem
}

// Vars returns the variables referenced across all find elements, in
// projection order.
func (f FindSpec) Vars() []Var {
	out := make([]Var, len(f.Elems))
	for i, e := range f.Elems {
		out[i] = e.Var
	}
	return out
}

// HasAggregates reports whether any find element carries an aggregate.
func (f FindSpec) HasAggregates() bool {
	for _, e := range f.Elems {
		if e.Agg != nil {
			return true
		}
	}
	return false
}

// InputSpec declares one :in variable the caller must bind before
// execution (spec §4.F "Inputs (:in)").
type InputSpec struct {
	Var Var
}

// OrderDir is ascending or descending.
type OrderDir int

const (
	Asc OrderDir = iota
	Desc
)

// OrderSpec is one ordering key (spec §4.F "Ordering").
type OrderSpec struct {
	Var Var
	Dir OrderDir
}

// Form is the already-parsed query form consumed by Algebrize. Parsing
// symbolic text into a Form is the external collaborator's job (spec §6);
// this package only algebrizes an already-structured Form.
type Form struct {
	Find  FindSpec
	In    []InputSpec
	With  []Var
	Where []Clause
	Order []OrderSpec
}

// Clause is the closed sum of clause forms accepted in :where
// (spec §4.F "Clause forms accepted in :where").
type Clause interface {
	clauseMarker()
}

// Pattern is `[E A V Tx]`. Tx may be left as the zero Term (a TermVar
// with an empty Var) if the query form omits it; it then binds nothing.
type Pattern struct {
	E, A, V, Tx Term
}

func (Pattern) clauseMarker() {}

// PredicateOp is the closed set of admitted predicate operators
// (spec §4.F "Predicate").
type PredicateOp int

const (
	Lt PredicateOp = iota
	Le
	Gt
	Ge
	EqOp
	NeOp
	Differ
	Unpermute
)

func (op PredicateOp) String() string {
	switch op {
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case EqOp:
		return "="
	case NeOp:
		return "!="
	case Differ:
		return "differ"
	case Unpermute:
		return "unpermute"
	default:
		return "?"
	}
}

// Predicate is `[(<pred> arg ...)]`.
type Predicate struct {
	Op   PredicateOp
	Args []Term
}

func (Predicate) clauseMarker() {}

// TypeRequirement is `[(type ?v :db.type/T)]`.
type TypeRequirement struct {
	Var  Var
	Type value.Type
}

func (TypeRequirement) clauseMarker() {}

// Ground is `[(ground <literal>) ?v]`.
type Ground struct {
	Var     Var
	Literal value.Value
}

func (Ground) clauseMarker() {}

// Fulltext is `[(fulltext $ :attr <search-term>) [[?e ?v _ ?score]]]`.
// Search is either a string literal or a variable already bound to a
// string earlier in the conjunction.
type Fulltext struct {
	Attr   ident.Keyword
	Search Term
	E, V   Var
	Score  Var
}

func (Fulltext) clauseMarker() {}

// TxIds is `[(tx-ids $ ?after ?before) [?tx ...]]`.
type TxIds struct {
	After, Before Term
	Bind          Var
}

func (TxIds) clauseMarker() {}

// TxData is `[(tx-data $ ?tx) [[?e ?a ?v ?tx ?added]]]`.
type TxData struct {
	Tx               Term
	E, A, V, Tx2, Added Var
}

func (TxData) clauseMarker() {}
