// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package ident implements the identifier registry of spec §4.B: a
// bidirectional mapping between opaque numeric entids and namespaced
// keyword identifiers, kept as mutual inverses.
package ident

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/internal/levenshtein"
)

// Entid names an entity. Valid entids are positive integers.
type Entid int64

// Keyword is a namespaced symbolic identifier, e.g. "foo/bar".
type Keyword struct {
	Namespace string
	Name      string
}

// NewKeyword constructs a Keyword from its namespace and name parts.
func NewKeyword(ns, name string) Keyword {
	return Keyword{Namespace: ns, Name: name}
}

func (k Keyword) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return fmt.Sprintf("%s/%s", k.Namespace, k.Name)
}

// Registry maintains the two mutually-inverse maps described in spec §3:
// keyword → entid and entid → keyword. It is not safe for concurrent
// mutation; callers needing concurrent readers and a single writer should
// hold the registry behind an immutable schema snapshot (see spec §5 and
// the txn package).
type Registry struct {
	byKeyword map[Keyword]Entid
	byEntid   map[Entid]Keyword
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byKeyword: map[Keyword]Entid{},
		byEntid:   map[Entid]Keyword{},
	}
}

// Put installs the ident. It is write-once per key pair: re-installing
// the same (keyword, entid) pair is a no-op, but assigning a keyword or
// entid already bound to something different is a programming error in
// the caller and returns an error rather than silently overwriting.
func (r *Registry) Put(kw Keyword, id Entid) error {
	if existing, ok := r.byKeyword[kw]; ok {
		if existing == id {
			return nil
		}
		return pkgerrors.Errorf("ident: keyword %s already bound to entid %d", kw, existing)
	}
	if existingKw, ok := r.byEntid[id]; ok {
		if existingKw == kw {
			return nil
		}
		return pkgerrors.Errorf("ident: entid %d already bound to keyword %s", id, existingKw)
	}
	r.byKeyword[kw] = id
	r.byEntid[id] = kw
	return nil
}

// Remove clears both directions of the mapping for the given entid, if
// present. It is a no-op if the entid is not an ident.
func (r *Registry) Remove(id Entid) {
	if kw, ok := r.byEntid[id]; ok {
		delete(r.byEntid, id)
		delete(r.byKeyword, kw)
	}
}

// GetEntid returns the entid bound to kw, if any.
func (r *Registry) GetEntid(kw Keyword) (Entid, bool) {
	id, ok := r.byKeyword[kw]
	return id, ok
}

// GetIdent returns the keyword bound to id, if any.
func (r *Registry) GetIdent(id Entid) (Keyword, bool) {
	kw, ok := r.byEntid[id]
	return kw, ok
}

// RequireEntid is GetEntid, failing with UnrecognizedIdent (carrying
// Levenshtein-based suggestions drawn from every installed keyword) when
// kw is not registered.
func (r *Registry) RequireEntid(kw Keyword) (Entid, error) {
	if id, ok := r.GetEntid(kw); ok {
		return id, nil
	}
	suggestions := levenshtein.ClosestStrings(4, kw.String(), r.knownKeywordStrings())
	return 0, errors.WithDetail(errors.UnrecognizedIdent, suggestions,
		"unrecognized ident: %s", kw)
}

// RequireIdent is GetIdent, failing with UnrecognizedEntid when id is not
// registered.
func (r *Registry) RequireIdent(id Entid) (Keyword, error) {
	if kw, ok := r.GetIdent(id); ok {
		return kw, nil
	}
	return Keyword{}, errors.New(errors.UnrecognizedEntid, "unrecognized entid: %d", id)
}

func (r *Registry) knownKeywordStrings() []string {
	out := make([]string, 0, len(r.byKeyword))
	for kw := range r.byKeyword {
		out = append(out, kw.String())
	}
	return out
}

// Len returns the number of installed idents.
func (r *Registry) Len() int {
	return len(r.byKeyword)
}

// Each calls fn for every installed (keyword, entid) pair. Iteration order
// is unspecified.
func (r *Registry) Each(fn func(Keyword, Entid)) {
	for kw, id := range r.byKeyword {
		fn(kw, id)
	}
}
