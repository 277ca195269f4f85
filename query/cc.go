// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package query

import (
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// EmptyReason identifies why an algebrized plan was proven to return no
// rows, without executing it (spec §4.F "Type inference and
// collapse-to-empty").
type EmptyReason int

const (
	// TypeMismatch: a variable's narrowed type set became empty, or an
	// input value's type did not match any inferred constraint.
	TypeMismatch EmptyReason = iota
)

func (r EmptyReason) String() string {
	switch r {
	case TypeMismatch:
		return "TypeMismatch"
	default:
		return "?"
	}
}

// EmptyCause tags a CC that the algebrizer has proven must be empty.
type EmptyCause struct {
	Reason EmptyReason
	Detail string
}

// ColumnSpec describes how a variable is bound by the plan: which
// attribute entid (if any) constrained it, and in which pattern position.
type ColumnSpec struct {
	AttrEntid ident.Entid
	HasAttr   bool
}

// CC (Conjoining Clauses) is the algebrizer's output: a conjunction of
// constraints with per-variable type sets and column bindings, ready for
// translation into relational operations by a separate execution
// collaborator (spec §4.F).
type CC struct {
	Columns      map[Var]ColumnSpec
	KnownTypes   map[Var]value.TypeSet
	EmptyBecause *EmptyCause

	Find  FindSpec
	In    []InputSpec
	With  []Var
	Where []Clause
	Order []OrderSpec

	// Inputs holds the caller-supplied bindings for :in variables,
	// threaded through so the reference executor (engine package) can
	// seed them without re-parsing the form.
	Inputs map[Var]value.Value
}

// IsEmpty reports whether the algebrizer proved this plan has no rows.
func (cc *CC) IsEmpty() bool {
	return cc.EmptyBecause != nil
}
