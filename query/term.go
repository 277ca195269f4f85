// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package query implements the Datalog query algebrizer of spec §4.F: it
// transforms a parsed query form into a typed Conjoining Clauses (CC)
// plan, threading type requirements, input bindings, aggregation, and
// ordering through an explicit state machine. The staged-pass structure
// is ground-truthed on ast/compile.go's Compiler.stages table; the
// left-to-right type narrowing is ground-truthed on ast/env.go's
// typeTreeNode. This package type-checks aggregates; the reducers
// themselves live in package result.
package query

import (
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// Var names a logic variable, e.g. "?e".
type Var string

// TermKind discriminates the four kinds of term a pattern slot may
// hold (spec §4.F "Clause forms accepted in :where" — Pattern).
type TermKind int

const (
	// TermVar is a bound or to-be-bound logic variable.
	TermVar TermKind = iota
	// TermLiteral is a constant value.Value.
	TermLiteral
	// TermBlank is the wildcard `_`.
	TermBlank
	// TermKeyword is a keyword literal appearing in the attribute
	// position, resolved via the identifier registry.
	TermKeyword
)

// Term is one slot of a pattern or predicate argument list.
type Term struct {
	Kind    TermKind
	Var     Var
	Literal value.Value
	Keyword ident.Keyword
}

// VarTerm constructs a variable term.
func VarTerm(v Var) Term { return Term{Kind: TermVar, Var: v} }

// LiteralTerm constructs a literal term.
func LiteralTerm(v value.Value) Term { return Term{Kind: TermLiteral, Literal: v} }

// BlankTerm constructs the wildcard term.
func BlankTerm() Term { return Term{Kind: TermBlank} }

// KeywordTerm constructs a keyword-literal term (valid only in the
// attribute position of a Pattern).
func KeywordTerm(kw ident.Keyword) Term { return Term{Kind: TermKeyword, Keyword: kw} }
