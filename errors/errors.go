// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package errors defines the closed error taxonomy returned to callers of
// the core. No free-form strings are used as discriminators; every error
// carries a Code drawn from the enumeration in spec §7.
package errors

import (
	"fmt"
	"strings"
)

// Code identifies the kind of error. The set is closed: callers should
// switch on Code rather than inspecting Error() text.
type Code int

const (
	// BadSchemaAssertion indicates a schema attribute violates one of the
	// cross-attribute invariants enforced by the validator.
	BadSchemaAssertion Code = iota
	// UnrecognizedEntid indicates a registry miss where an entid was required.
	UnrecognizedEntid
	// UnrecognizedIdent indicates a registry miss where a keyword was required.
	UnrecognizedIdent
	// BadValuePair indicates schema-directed coercion failed.
	BadValuePair
	// UnboundVariables indicates a query referenced :in variables not supplied.
	UnboundVariables
	// InvalidArgument indicates a predicate argument was ill-typed or unbound.
	InvalidArgument
	// CannotApplyAggregateOperationToTypes indicates an aggregate ran over
	// an unsupported type set.
	CannotApplyAggregateOperationToTypes
	// AmbiguousAggregates indicates `the` was used ambiguously alongside
	// more than one min/max.
	AmbiguousAggregates
	// ConflictingUpsert indicates a tempid resolved, through
	// unique-identity upserts, to two different existing entids within one
	// transaction. Distinct upserts that land on one entid with
	// contradicting values are not detected.
	ConflictingUpsert
)

func (c Code) String() string {
	switch c {
	case BadSchemaAssertion:
		return "BadSchemaAssertion"
	case UnrecognizedEntid:
		return "UnrecognizedEntid"
	case UnrecognizedIdent:
		return "UnrecognizedIdent"
	case BadValuePair:
		return "BadValuePair"
	case UnboundVariables:
		return "UnboundVariables"
	case InvalidArgument:
		return "InvalidArgument"
	case CannotApplyAggregateOperationToTypes:
		return "CannotApplyAggregateOperationToTypes"
	case AmbiguousAggregates:
		return "AmbiguousAggregates"
	case ConflictingUpsert:
		return "ConflictingUpsert"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error represents a single structured error raised by the core.
type Error struct {
	Code    Code
	Message string
	// Detail carries the structured payload specific to Code (e.g. the
	// set of missing :in variables for UnboundVariables). Callers that
	// need the payload should type-assert on the concrete type
	// documented next to each constructor below.
	Detail interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New returns a new *Error with no detail payload.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail returns a new *Error carrying a structured detail payload.
func WithDetail(code Code, detail interface{}, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Detail: detail}
}

// Errors accumulates multiple *Error values, e.g. across validation of an
// entire schema or algebrization of a query.
type Errors []*Error

func (e Errors) Error() string {
	if len(e) == 0 {
		return "no error(s)"
	}
	if len(e) == 1 {
		return fmt.Sprintf("1 error occurred: %v", e[0].Error())
	}
	s := make([]string, 0, len(e))
	for _, err := range e {
		s = append(s, err.Error())
	}
	return fmt.Sprintf("%d errors occurred:\n%s", len(e), strings.Join(s, "\n"))
}

// HasCode returns true if any error in e carries the given code.
func (e Errors) HasCode(code Code) bool {
	for _, err := range e {
		if err.Code == code {
			return true
		}
	}
	return false
}

// IsCode returns true if err is an *Error with the given code.
func IsCode(code Code, err error) bool {
	if err, ok := err.(*Error); ok {
		return err.Code == code
	}
	return false
}

// UnboundVariablesDetail is the Detail payload of an UnboundVariables error.
type UnboundVariablesDetail struct {
	Vars []string
}

// AmbiguousAggregatesDetail is the Detail payload of an AmbiguousAggregates error.
type AmbiguousAggregatesDetail struct {
	MinMaxCount int
	TheCount    int
}

// InvalidArgumentDetail is the Detail payload of an InvalidArgument error.
type InvalidArgumentDetail struct {
	Symbol   string
	Expected string
	Position int
}

// CannotApplyAggregateDetail is the Detail payload of a
// CannotApplyAggregateOperationToTypes error.
type CannotApplyAggregateDetail struct {
	Op    string
	Types []string
}

// ConflictingUpsertDetail is the Detail payload of a ConflictingUpsert
// error: the tempid that resolved to two different existing entids
// within the same transaction.
type ConflictingUpsertDetail struct {
	Tempid string
	First  int64
	Second int64
}
