// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mentatdb/mentat/coerce"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/txn"
	"github.com/mentatdb/mentat/value"
)

// jsonEntityRef is the wire shape of a txn.EntityRef: exactly one of
// Tempid or Entid is set.
type jsonEntityRef struct {
	Tempid string `json:"tempid,omitempty"`
	Entid  *int64 `json:"entid,omitempty"`
}

func (r jsonEntityRef) toEntityRef() (txn.EntityRef, error) {
	switch {
	case r.Tempid != "" && r.Entid != nil:
		return txn.EntityRef{}, errors.Errorf("entity ref has both tempid and entid set")
	case r.Tempid != "":
		return txn.TempidRef(r.Tempid), nil
	case r.Entid != nil:
		return txn.EntidRef(ident.Entid(*r.Entid)), nil
	default:
		return txn.EntityRef{}, errors.Errorf("entity ref must set tempid or entid")
	}
}

// jsonAssertion is the wire shape of one txn.Assertion. V holds a bare
// JSON scalar (bool, number, or string); VTempid is used instead of V
// when the value position is a tempid (:db.type/ref attributes only). An
// entid ref value goes in V as a JSON number.
type jsonAssertion struct {
	Op      string        `json:"op"`
	E       jsonEntityRef `json:"e"`
	A       string        `json:"a"`
	V       interface{}   `json:"v,omitempty"`
	VTempid string        `json:"vtempid,omitempty"`
}

func parseKeywordString(s string) ident.Keyword {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return ident.NewKeyword(s[:i], s[i+1:])
		}
	}
	return ident.NewKeyword("", s)
}

// toAssertion resolves ja against sch to find the attribute's declared
// value type, then classifies ja.V into the matching coerce.RawValue.
// The CLI stands in for the external symbolic parser (spec §6): rather
// than accept arbitrary untyped literals, it looks the attribute up
// first and requires the JSON scalar to already match its shape.
func (ja jsonAssertion) toAssertion(sch *schema.Schema) (txn.Assertion, error) {
	var op txn.Op
	switch ja.Op {
	case "add":
		op = txn.Add
	case "retract":
		op = txn.Retract
	default:
		return txn.Assertion{}, errors.Errorf("assertion op must be \"add\" or \"retract\", got %q", ja.Op)
	}

	e, err := ja.E.toEntityRef()
	if err != nil {
		return txn.Assertion{}, err
	}

	kw := parseKeywordString(ja.A)
	_, attr, err := sch.AttributeForKeyword(kw)
	if err != nil {
		return txn.Assertion{}, err
	}

	if ja.VTempid != "" {
		if attr.ValueType != value.Ref {
			return txn.Assertion{}, errors.Errorf("vtempid is only valid for :db.type/ref attributes, %s is %s", ja.A, attr.ValueType)
		}
		return txn.Assertion{Op: op, E: e, A: kw, VTempid: ja.VTempid}, nil
	}

	raw, err := jsonValueToRaw(ja.V, attr.ValueType)
	if err != nil {
		return txn.Assertion{}, errors.Wrapf(err, "attribute %s", ja.A)
	}
	return txn.Assertion{Op: op, E: e, A: kw, V: raw}, nil
}

// jsonValueToRaw classifies a decoded JSON scalar as the coerce.RawValue
// shape expected attributes of type expected. Ref attributes accept
// either a JSON number (a bare entid) or a JSON string (a keyword to
// resolve).
func jsonValueToRaw(v interface{}, expected value.Type) (coerce.RawValue, error) {
	switch expected {
	case value.Boolean:
		b, ok := v.(bool)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected JSON boolean for :db.type/boolean, got %T", v)
		}
		return coerce.RawValue{Kind: coerce.RawBoolean, Bool: b}, nil
	case value.Long:
		n, ok := v.(float64)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected JSON number for :db.type/long, got %T", v)
		}
		return coerce.RawValue{Kind: coerce.RawLong, Long: int64(n)}, nil
	case value.Double:
		n, ok := v.(float64)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected JSON number for :db.type/double, got %T", v)
		}
		return coerce.RawValue{Kind: coerce.RawDouble, Double: n}, nil
	case value.String:
		s, ok := v.(string)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected JSON string for :db.type/string, got %T", v)
		}
		return coerce.RawValue{Kind: coerce.RawString, Str: s}, nil
	case value.Keyword:
		s, ok := v.(string)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected JSON string for :db.type/keyword, got %T", v)
		}
		return coerce.RawValue{Kind: coerce.RawKeyword, Str: s}, nil
	case value.Uuid:
		s, ok := v.(string)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected JSON string for :db.type/uuid, got %T", v)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return coerce.RawValue{}, errors.Wrapf(err, "invalid uuid %q", s)
		}
		return coerce.RawValue{Kind: coerce.RawUuid, Uuid: u}, nil
	case value.Instant:
		s, ok := v.(string)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected JSON RFC3339 string for :db.type/instant, got %T", v)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return coerce.RawValue{}, errors.Wrapf(err, "invalid instant %q", s)
		}
		return coerce.RawValue{Kind: coerce.RawInstant, Instant: t}, nil
	case value.Ref:
		switch rv := v.(type) {
		case float64:
			return coerce.RawValue{Kind: coerce.RawLong, Long: int64(rv)}, nil
		case string:
			return coerce.RawValue{Kind: coerce.RawKeyword, Str: rv}, nil
		default:
			return coerce.RawValue{}, errors.Errorf("expected JSON number or keyword string for :db.type/ref, got %T", v)
		}
	case value.Bytes:
		s, ok := v.(string)
		if !ok {
			return coerce.RawValue{}, errors.Errorf("expected base64 JSON string for :db.type/bytes, got %T", v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return coerce.RawValue{}, errors.Wrapf(err, "invalid base64 bytes")
		}
		return coerce.RawValue{Kind: coerce.RawBytes, Bytes: b}, nil
	default:
		return coerce.RawValue{}, errors.Errorf("unhandled attribute value type %v", expected)
	}
}
