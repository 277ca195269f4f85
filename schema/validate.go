// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import (
	"strconv"

	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// Validate enforces the cross-attribute invariants of spec §3 over every
// attribute in s, accumulating one BadSchemaAssertion per violation —
// ground-truthed on AttributeValidation::validate in schema.rs, in the
// teacher's accumulating-Errors idiom (ast.typeChecker.errs).
func Validate(s *Schema) errors.Errors {
	var errs errors.Errors
	for id, a := range s.Attributes {
		identFor := func() string {
			if kw, ok := s.Registry.GetIdent(id); ok {
				return kw.String()
			}
			return idToString(id)
		}
		errs = append(errs, validateOne(a, identFor)...)
	}
	return errs
}

func idToString(id ident.Entid) string {
	return strconv.FormatInt(int64(id), 10)
}

func validateOne(a Attribute, identFor func() string) errors.Errors {
	var errs errors.Errors

	if a.Unique == UniqueValue && !a.Index {
		errs = append(errs, errors.New(errors.BadSchemaAssertion,
			":db/unique :db/unique_value without :db/index true for entid: %s", identFor()))
	}
	if a.Unique == UniqueIdentity && !a.Index {
		errs = append(errs, errors.New(errors.BadSchemaAssertion,
			":db/unique :db/unique_identity without :db/index true for entid: %s", identFor()))
	}
	if a.Fulltext && a.ValueType != value.String {
		errs = append(errs, errors.New(errors.BadSchemaAssertion,
			":db/fulltext true without :db/valueType :db.type/string for entid: %s", identFor()))
	}
	if a.Fulltext && !a.Index {
		errs = append(errs, errors.New(errors.BadSchemaAssertion,
			":db/fulltext true without :db/index true for entid: %s", identFor()))
	}
	if a.Component && a.ValueType != value.Ref {
		errs = append(errs, errors.New(errors.BadSchemaAssertion,
			":db/isComponent true without :db/valueType :db.type/ref for entid: %s", identFor()))
	}

	return errs
}
