// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package value

// TypeSet is a subset of the closed Type enumeration, used by the
// algebrizer to track each variable's narrowing set of permissible types
// (spec §4.F "Type inference and collapse-to-empty"). The zero value is
// the empty set.
type TypeSet uint16

func bit(t Type) TypeSet { return TypeSet(1) << uint(t) }

// NewTypeSet returns a TypeSet containing exactly the given types.
func NewTypeSet(types ...Type) TypeSet {
	var s TypeSet
	for _, t := range types {
		s |= bit(t)
	}
	return s
}

// FullTypeSet returns a TypeSet containing every value type.
func FullTypeSet() TypeSet {
	return NewTypeSet(All()...)
}

// Has reports whether t is a member of s.
func (s TypeSet) Has(t Type) bool {
	return s&bit(t) != 0
}

// Intersect returns the intersection of s and other.
func (s TypeSet) Intersect(other TypeSet) TypeSet {
	return s & other
}

// Union returns the union of s and other.
func (s TypeSet) Union(other TypeSet) TypeSet {
	return s | other
}

// IsEmpty reports whether s contains no types.
func (s TypeSet) IsEmpty() bool {
	return s == 0
}

// Subset reports whether every member of s is also a member of other.
func (s TypeSet) Subset(other TypeSet) bool {
	return s&other == s
}

// Members returns the types contained in s, in declaration order.
func (s TypeSet) Members() []Type {
	var out []Type
	for _, t := range All() {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Single returns the lone member of s and true if s contains exactly one
// type; otherwise it returns the zero Type and false.
func (s TypeSet) Single() (Type, bool) {
	members := s.Members()
	if len(members) == 1 {
		return members[0], true
	}
	return 0, false
}

func (s TypeSet) String() string {
	members := s.Members()
	out := "{"
	for i, t := range members {
		if i > 0 {
			out += ", "
		}
		out += t.String()
	}
	return out + "}"
}
