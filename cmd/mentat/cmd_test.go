// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/metrics"
	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/store"
	"github.com/mentatdb/mentat/txn"
	"github.com/mentatdb/mentat/value"
)

var testDSNCounter int

func newTestApp(t *testing.T) *app {
	t.Helper()
	testDSNCounter++
	dsn := fmt.Sprintf("file:cmdtest%d?mode=memory&cache=shared", testDSNCounter)
	st, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sch := schema.NewSchema()
	tr := txn.NewTransactor(sch, st)
	mp := metrics.New()
	tr.SetMetrics(mp)

	return &app{store: st, tx: tr, metrics: mp}
}

func kw(namespace, name string) ident.Keyword {
	return parseKeywordString(namespace + "/" + name)
}

func TestTransactAndQueryRoundTrip(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	installBuilder := schema.NewInstallBuilder()
	installBuilder.ValueType(value.String)
	installBuilder.Unique(schema.UniqueIdentity)
	installBuilder.Index(true)
	if _, err := a.tx.InstallAttribute(ctx, kw("person", "email"), installBuilder); err != nil {
		t.Fatalf("install attribute: %v", err)
	}

	assertions := []jsonAssertion{
		{Op: "add", E: jsonEntityRef{Tempid: "alice"}, A: "person/email", V: "alice@example.com"},
	}
	body, err := json.Marshal(assertions)
	if err != nil {
		t.Fatalf("marshal assertions: %v", err)
	}

	var buf bytes.Buffer
	r := newREPL(a, &buf, "")
	if err := r.transact(ctx, string(body)); err != nil {
		t.Fatalf("transact: %v", err)
	}

	var report struct {
		TxID    int64            `json:"tx_id"`
		Tempids map[string]int64 `json:"tempids"`
	}
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal report: %v\n%s", err, buf.String())
	}
	if _, ok := report.Tempids["alice"]; !ok {
		t.Fatalf("expected tempid \"alice\" to resolve, got %+v", report.Tempids)
	}

	buf.Reset()
	form := jsonForm{
		Find: jsonFindSpec{Kind: "scalar", Elems: []jsonFindElem{{Var: "?e"}}},
		Where: []jsonClause{
			{
				Type: "pattern",
				E:    &jsonTerm{Var: "?e"},
				A:    &jsonTerm{Keyword: "person/email"},
				V:    &jsonTerm{Lit: &jsonLiteral{Type: "string", Value: "alice@example.com"}},
			},
		},
	}
	qbody, err := json.Marshal(form)
	if err != nil {
		t.Fatalf("marshal form: %v", err)
	}
	if err := r.query(ctx, string(qbody)); err != nil {
		t.Fatalf("query: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected query output, got none")
	}
}

func TestSchemaInstallRejectsMissingValueType(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	var buf bytes.Buffer
	r := newREPL(a, &buf, "")
	if err := r.schema(ctx, `install {"ident":"person/name"}`); err == nil {
		t.Fatalf("expected missing value_type to be rejected")
	}
}

func TestSchemaInstallThenAlter(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	var buf bytes.Buffer
	r := newREPL(a, &buf, "")
	if err := r.schema(ctx, `install {"ident":"person/name","value_type":"string"}`); err != nil {
		t.Fatalf("install: %v", err)
	}

	buf.Reset()
	if err := r.schema(ctx, `alter {"ident":"person/name","multival":true}`); err != nil {
		t.Fatalf("alter: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected alter output")
	}
}

func TestOneShotRejectsUnknownCommand(t *testing.T) {
	a := newTestApp(t)
	var buf bytes.Buffer
	r := newREPL(a, &buf, "")
	stop, err := r.oneShot(context.Background(), "frobnicate {}")
	if stop {
		t.Fatalf("unknown command should not request exit")
	}
	if err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestOneShotExitRequestsStop(t *testing.T) {
	a := newTestApp(t)
	var buf bytes.Buffer
	r := newREPL(a, &buf, "")
	stop, err := r.oneShot(context.Background(), "exit")
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !stop {
		t.Fatalf("expected exit to request stop")
	}
}
