// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package txn

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/mentatdb/mentat/coerce"
	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/value"
)

// fakeStore is a minimal in-memory Store used only to exercise
// Transactor; the real storage collaborator lives in the store package.
type fakeStore struct {
	mu     sync.Mutex
	next   int64
	byAV   map[string]ident.Entid
	datoms []storedDatom
}

type storedDatom struct {
	e, a  ident.Entid
	v     value.Value
	tx    int64
	added bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{byAV: map[string]ident.Entid{}}
}

func (s *fakeStore) NextEntid(_ context.Context) (ident.Entid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return ident.Entid(1000 + s.next), nil
}

func avKey(a ident.Entid, v value.Value) string {
	return fmt.Sprintf("%d:%s:%s", a, v.Type, v.String())
}

func (s *fakeStore) Lookup(_ context.Context, a ident.Entid, v value.Value) (ident.Entid, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAV[avKey(a, v)]
	return id, ok, nil
}

func (s *fakeStore) WriteDatom(_ context.Context, e, a ident.Entid, v value.Value, tx int64, added bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datoms = append(s.datoms, storedDatom{e, a, v, tx, added})
	if added {
		s.byAV[avKey(a, v)] = e
	}
	return nil
}

func buildPersonSchema(t *testing.T) (*schema.Schema, ident.Entid, ident.Entid) {
	t.Helper()
	s := schema.NewSchema()
	email, err := schema.NewInstallBuilder().ValueType(value.String).Unique(schema.UniqueIdentity).Index(true).Build()
	if err != nil {
		t.Fatalf("build email attribute: %v", err)
	}
	name, err := schema.NewInstallBuilder().ValueType(value.String).Build()
	if err != nil {
		t.Fatalf("build name attribute: %v", err)
	}
	emailID := ident.Entid(10)
	nameID := ident.Entid(11)
	if err := s.Registry.Put(ident.NewKeyword("person", "email"), emailID); err != nil {
		t.Fatalf("put email ident: %v", err)
	}
	if err := s.Registry.Put(ident.NewKeyword("person", "name"), nameID); err != nil {
		t.Fatalf("put name ident: %v", err)
	}
	s.Attributes[emailID] = email
	s.Attributes[nameID] = name
	return s, emailID, nameID
}

func rawString(s string) coerce.RawValue { return coerce.RawValue{Kind: coerce.RawString, Str: s} }

func TestTransactAllocatesFreshEntidsAndRecordsTempids(t *testing.T) {
	s, _, _ := buildPersonSchema(t)
	store := newFakeStore()
	tr := NewTransactor(s, store)

	report, err := tr.Transact(context.Background(), []Assertion{
		{Op: Add, E: TempidRef("bob"), A: ident.NewKeyword("person", "email"), V: rawString("bob@example.com")},
		{Op: Add, E: TempidRef("bob"), A: ident.NewKeyword("person", "name"), V: rawString("Bob")},
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if report.TxID <= 0 {
		t.Fatalf("expected positive tx id, got %d", report.TxID)
	}
	id, ok := report.Tempids["bob"]
	if !ok || id <= 0 {
		t.Fatalf("expected a positive entid for tempid bob, got %v (ok=%v)", id, ok)
	}

	var sawEmail, sawTxInstant, sawTxUuid bool
	for _, d := range store.datoms {
		switch {
		case d.e == id && d.a == 10:
			sawEmail = true
		case d.e == ident.Entid(report.TxID) && d.a == dbTxInstantEntid:
			sawTxInstant = true
		case d.e == ident.Entid(report.TxID) && d.a == dbTxUuidEntid:
			sawTxUuid = true
		}
	}
	if !sawEmail {
		t.Fatalf("expected a datom for the email attribute on the resolved entity")
	}
	if !sawTxInstant || !sawTxUuid {
		t.Fatalf("expected :db/txInstant and :db/txUuid datoms on the tx entity")
	}
}

func TestUpsertResolvesToExistingEntity(t *testing.T) {
	s, _, _ := buildPersonSchema(t)
	store := newFakeStore()
	tr := NewTransactor(s, store)
	ctx := context.Background()

	first, err := tr.Transact(ctx, []Assertion{
		{Op: Add, E: TempidRef("a"), A: ident.NewKeyword("person", "email"), V: rawString("carol@example.com")},
	})
	if err != nil {
		t.Fatalf("first Transact: %v", err)
	}
	carolID := first.Tempids["a"]

	second, err := tr.Transact(ctx, []Assertion{
		{Op: Add, E: TempidRef("b"), A: ident.NewKeyword("person", "email"), V: rawString("carol@example.com")},
		{Op: Add, E: TempidRef("b"), A: ident.NewKeyword("person", "name"), V: rawString("Carol")},
	})
	if err != nil {
		t.Fatalf("second Transact: %v", err)
	}
	if second.Tempids["b"] != carolID {
		t.Fatalf("expected upsert to resolve tempid b to %d, got %d", carolID, second.Tempids["b"])
	}
}

func TestConflictingUpsertWithinTransaction(t *testing.T) {
	s, emailID, _ := buildPersonSchema(t)
	store := newFakeStore()
	store.byAV[avKey(emailID, value.NewString("a@x.com"))] = ident.Entid(50)
	store.byAV[avKey(emailID, value.NewString("b@x.com"))] = ident.Entid(60)
	tr := NewTransactor(s, store)

	_, err := tr.Transact(context.Background(), []Assertion{
		{Op: Add, E: TempidRef("x"), A: ident.NewKeyword("person", "email"), V: rawString("a@x.com")},
		{Op: Add, E: TempidRef("x"), A: ident.NewKeyword("person", "email"), V: rawString("b@x.com")},
	})
	if err == nil {
		t.Fatalf("expected ConflictingUpsert error")
	}
	if !errors.IsCode(errors.ConflictingUpsert, err) {
		t.Fatalf("expected ConflictingUpsert, got %v", err)
	}
}

func TestInstallAttributeRollsBackOnValidationFailure(t *testing.T) {
	s, _, _ := buildPersonSchema(t)
	store := newFakeStore()
	tr := NewTransactor(s, store)

	kw := ident.NewKeyword("person", "ssn")
	badBuilder := schema.NewInstallBuilder().ValueType(value.Long).Unique(schema.UniqueValue)
	_, err := tr.InstallAttribute(context.Background(), kw, badBuilder)
	if err == nil {
		t.Fatalf("expected a validation error")
	}
	if !errors.IsCode(errors.BadSchemaAssertion, err) {
		t.Fatalf("expected BadSchemaAssertion, got %v", err)
	}
	if _, ok := tr.Schema().Registry.GetEntid(kw); ok {
		t.Fatalf("expected the published schema to be unchanged after a rejected install")
	}
}

func TestInstallAttributeThenTransactAgainstIt(t *testing.T) {
	s, _, _ := buildPersonSchema(t)
	store := newFakeStore()
	tr := NewTransactor(s, store)
	ctx := context.Background()

	kw := ident.NewKeyword("person", "age")
	id, err := tr.InstallAttribute(ctx, kw, schema.NewInstallBuilder().ValueType(value.Long))
	if err != nil {
		t.Fatalf("InstallAttribute: %v", err)
	}

	report, err := tr.Transact(ctx, []Assertion{
		{Op: Add, E: TempidRef("p"), A: kw, V: coerce.RawValue{Kind: coerce.RawLong, Long: 42}},
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	pid := report.Tempids["p"]

	var found bool
	for _, d := range store.datoms {
		if d.e == pid && d.a == id && d.v.Long() == 42 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a datom asserting age 42 on the newly installed attribute")
	}
}
