// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package schema implements the attribute metadata model of spec §3/§4.C
// and the cross-attribute validator of spec §4.D. The builder/mutator
// design is ground-truthed on original_source/db/src/schema.rs's
// AttributeBuilder, translated into the teacher's chained-option idiom.
package schema

import (
	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// Unique is the closed enumeration of uniqueness constraints.
type Unique int

const (
	// UniqueNone means no uniqueness constraint is asserted.
	UniqueNone Unique = iota
	// UniqueValue: the (attribute, value) pair identifies at most one entity.
	UniqueValue
	// UniqueIdentity: as UniqueValue, but additionally supports upsert by value.
	UniqueIdentity
)

func (u Unique) String() string {
	switch u {
	case UniqueNone:
		return "none"
	case UniqueValue:
		return ":db/unique_value"
	case UniqueIdentity:
		return ":db/unique_identity"
	default:
		return "?"
	}
}

// Attribute is the metadata attached to an entid that qualifies it as a
// schema attribute (spec §3).
type Attribute struct {
	ValueType  value.Type
	Multival   bool
	Unique     Unique
	Index      bool
	Fulltext   bool
	Component  bool
	NoHistory  bool
}

// AlterationKind identifies which field of an Attribute changed during an
// alter mutation (spec §3 Lifecycle).
type AlterationKind int

const (
	Cardinality AlterationKind = iota
	UniqueChanged
	IndexChanged
	IsComponent
	NoHistoryChanged
)

func (k AlterationKind) String() string {
	switch k {
	case Cardinality:
		return "Cardinality"
	case UniqueChanged:
		return "Unique"
	case IndexChanged:
		return "Index"
	case IsComponent:
		return "IsComponent"
	case NoHistoryChanged:
		return "NoHistory"
	default:
		return "?"
	}
}

// optional tracks explicit presence of a builder field, the Go analogue
// of the Rust Option<T> fields in AttributeBuilder.
type optional[T any] struct {
	set   bool
	value T
}

func some[T any](v T) optional[T] { return optional[T]{set: true, value: v} }

// mode distinguishes install from alter (spec §3 Lifecycle).
type mode int

const (
	modeInstall mode = iota
	modeAlter
)

// AttributeBuilder collects optional field values for installing or
// altering an attribute. Two modes are distinguished: install requires
// ValueType to be set; alter forbids setting ValueType and Fulltext.
type AttributeBuilder struct {
	mode     mode
	helpful  bool
	valType  optional[value.Type]
	multival optional[bool]
	unique   optional[Unique]
	index    optional[bool]
	fulltext optional[bool]
	component optional[bool]
	noHistory optional[bool]
}

// NewInstallBuilder returns a builder in install mode.
func NewInstallBuilder() *AttributeBuilder {
	return &AttributeBuilder{mode: modeInstall}
}

// NewAlterBuilder returns an empty builder in alter mode. It is not seeded
// from any attribute; Mutate applies the fields set on it to an existing
// attribute.
func NewAlterBuilder() *AttributeBuilder {
	return &AttributeBuilder{mode: modeAlter}
}

// Helpful enables the courtesy auto-indexing behavior: setting
// Unique(Identity) or Fulltext(true) also sets Index(true). The validator
// still rejects invalid combinations regardless of this flag (spec §4.C).
func (b *AttributeBuilder) Helpful() *AttributeBuilder {
	b.helpful = true
	return b
}

// ValueType sets the attribute's value type. Only valid in install mode.
func (b *AttributeBuilder) ValueType(t value.Type) *AttributeBuilder {
	b.valType = some(t)
	return b
}

// Multival sets the cardinality flag.
func (b *AttributeBuilder) Multival(m bool) *AttributeBuilder {
	b.multival = some(m)
	return b
}

// Unique sets the uniqueness constraint.
func (b *AttributeBuilder) Unique(u Unique) *AttributeBuilder {
	if b.helpful && u == UniqueIdentity {
		b.index = some(true)
	}
	b.unique = some(u)
	return b
}

// Index sets the index flag.
func (b *AttributeBuilder) Index(idx bool) *AttributeBuilder {
	b.index = some(idx)
	return b
}

// Fulltext sets the fulltext flag. Only valid in install mode.
func (b *AttributeBuilder) Fulltext(ft bool) *AttributeBuilder {
	if b.helpful && ft {
		b.index = some(true)
	}
	b.fulltext = some(ft)
	return b
}

// Component sets the component flag.
func (b *AttributeBuilder) Component(c bool) *AttributeBuilder {
	b.component = some(c)
	return b
}

// NoHistory sets the no-history flag.
func (b *AttributeBuilder) NoHistory(nh bool) *AttributeBuilder {
	b.noHistory = some(nh)
	return b
}

// Build validates and constructs a fresh Attribute for installation.
// value_type must be set; all other fields default per spec §3 Lifecycle.
func (b *AttributeBuilder) Build() (Attribute, error) {
	if b.mode != modeInstall {
		return Attribute{}, errors.New(errors.BadSchemaAssertion,
			"Build is only valid on an install-mode AttributeBuilder")
	}
	if !b.valType.set {
		return Attribute{}, errors.New(errors.BadSchemaAssertion,
			"Schema attribute for new attribute does not set :db/valueType")
	}
	a := Attribute{ValueType: b.valType.value}
	if b.multival.set {
		a.Multival = b.multival.value
	}
	if b.unique.set {
		a.Unique = b.unique.value
	}
	if b.index.set {
		a.Index = b.index.value
	}
	if b.fulltext.set {
		a.Fulltext = b.fulltext.value
	}
	if b.component.set {
		a.Component = b.component.value
	}
	if b.noHistory.set {
		a.NoHistory = b.noHistory.value
	}
	return a, nil
}

// Mutate applies this builder's overrides (alter mode only) to a copy of
// existing, returning the mutated Attribute and the list of alteration
// kinds whose field actually changed value. If Unique is absent from the
// overrides but the existing attribute has one set, it is cleared — "no
// unique constraint asserted means none" (spec §4.C), ground-truthed on
// AttributeBuilder::mutate's unique-clearing branch in schema.rs.
func (b *AttributeBuilder) Mutate(existing Attribute) (Attribute, []AlterationKind, error) {
	if b.mode != modeAlter {
		return Attribute{}, nil, errors.New(errors.BadSchemaAssertion,
			"Mutate is only valid on an alter-mode AttributeBuilder")
	}
	if b.valType.set {
		return Attribute{}, nil, errors.New(errors.BadSchemaAssertion,
			"Schema alteration must not set :db/valueType")
	}
	if b.fulltext.set {
		return Attribute{}, nil, errors.New(errors.BadSchemaAssertion,
			"Schema alteration must not set :db/fulltext")
	}

	result := existing
	var kinds []AlterationKind

	if b.multival.set && b.multival.value != result.Multival {
		result.Multival = b.multival.value
		kinds = append(kinds, Cardinality)
	}

	if b.unique.set {
		if b.unique.value != result.Unique {
			result.Unique = b.unique.value
			kinds = append(kinds, UniqueChanged)
		}
	} else if result.Unique != UniqueNone {
		result.Unique = UniqueNone
		kinds = append(kinds, UniqueChanged)
	}

	if b.index.set && b.index.value != result.Index {
		result.Index = b.index.value
		kinds = append(kinds, IndexChanged)
	}

	if b.component.set && b.component.value != result.Component {
		result.Component = b.component.value
		kinds = append(kinds, IsComponent)
	}

	if b.noHistory.set && b.noHistory.value != result.NoHistory {
		result.NoHistory = b.noHistory.value
		kinds = append(kinds, NoHistoryChanged)
	}

	return result, kinds, nil
}

// Schema owns the identifier registry and the installed attribute map. It
// is an immutable snapshot once published: execution plans borrow it and
// do not outlive it (spec §3 Ownership, spec §5).
type Schema struct {
	Registry   *ident.Registry
	Attributes map[ident.Entid]Attribute
}

// NewSchema returns an empty Schema with a fresh identifier registry.
func NewSchema() *Schema {
	return &Schema{
		Registry:   ident.NewRegistry(),
		Attributes: map[ident.Entid]Attribute{},
	}
}

// AttributeFor returns the attribute installed for entid, if any.
func (s *Schema) AttributeFor(id ident.Entid) (Attribute, bool) {
	a, ok := s.Attributes[id]
	return a, ok
}

// RequireAttributeFor returns the attribute installed for entid, failing
// with UnrecognizedEntid if none is installed.
func (s *Schema) RequireAttributeFor(id ident.Entid) (Attribute, error) {
	if a, ok := s.Attributes[id]; ok {
		return a, nil
	}
	return Attribute{}, errors.New(errors.UnrecognizedEntid, "unrecognized entid: %d", id)
}

// AttributeForKeyword resolves kw to an entid via the registry and returns
// its attribute.
func (s *Schema) AttributeForKeyword(kw ident.Keyword) (ident.Entid, Attribute, error) {
	id, err := s.Registry.RequireEntid(kw)
	if err != nil {
		return 0, Attribute{}, err
	}
	a, err := s.RequireAttributeFor(id)
	return id, a, err
}

// Clone returns a deep-enough copy of s suitable for staging mutations
// that can be discarded on rollback (spec §5 Cancellation/timeout).
func (s *Schema) Clone() *Schema {
	cp := NewSchema()
	s.Registry.Each(func(kw ident.Keyword, id ident.Entid) {
		_ = cp.Registry.Put(kw, id)
	})
	for id, a := range s.Attributes {
		cp.Attributes[id] = a
	}
	return cp
}
