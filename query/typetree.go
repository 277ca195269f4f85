// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package query

import "github.com/mentatdb/mentat/value"

// typeTree tracks each variable's narrowing type set as clauses are
// walked left to right, the same bookkeeping ast/env.go's typeTreeNode
// performs for Rego's structural types, reduced here to a flat map since
// Datalog variables have no path structure to nest.
type typeTree struct {
	types map[Var]value.TypeSet
	bound map[Var]bool
}

func newTypeTree() *typeTree {
	return &typeTree{
		types: map[Var]value.TypeSet{},
		bound: map[Var]bool{},
	}
}

// touch ensures v has an entry, defaulting to the full type set the first
// time it is seen.
func (t *typeTree) touch(v Var) value.TypeSet {
	if ts, ok := t.types[v]; ok {
		return ts
	}
	ts := value.FullTypeSet()
	t.types[v] = ts
	return ts
}

// narrow intersects v's current type set with ts, returning the resulting
// set. A result with IsEmpty() true signals collapse-to-empty.
func (t *typeTree) narrow(v Var, ts value.TypeSet) value.TypeSet {
	cur := t.touch(v)
	next := cur.Intersect(ts)
	t.types[v] = next
	return next
}

func (t *typeTree) bind(v Var) {
	t.bound[v] = true
}

func (t *typeTree) isBound(v Var) bool {
	return t.bound[v]
}

func (t *typeTree) get(v Var) value.TypeSet {
	return t.touch(v)
}
