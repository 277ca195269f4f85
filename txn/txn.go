// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package txn implements the Transactor Interface of spec §4.G: the
// entry point through which assertions mutate schema and data. Spec §6
// leaves the physical storage collaborator external; this package
// defines the contract the transactor needs from it (Store) and a
// concrete reference implementation of the transactor itself, so that G
// is exercised end to end rather than left as bare interface stubs.
//
// Ground truth: storage/inmem/inmem.go's single-writer mutex plus
// atomic transaction-id counter, generalized from a JSON document store
// to an append-only datom log.
package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mentatdb/mentat/coerce"
	"github.com/mentatdb/mentat/errors"
	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/log"
	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/value"
)

// Op is the closed set of transaction operations (spec §6 Transaction
// input syntax).
type Op int

const (
	// Add asserts [:db/add E A V].
	Add Op = iota
	// Retract asserts [:db/retract E A V].
	Retract
)

func (o Op) String() string {
	if o == Retract {
		return ":db/retract"
	}
	return ":db/add"
}

// EntityRef names the entity position of an assertion: either an
// already-allocated entid, or a tempid string to be resolved (by upsert
// or fresh allocation) over the course of the transaction.
type EntityRef struct {
	Tempid   string
	Entid    ident.Entid
	HasEntid bool
}

// TempidRef builds an EntityRef naming a temporary string id.
func TempidRef(id string) EntityRef { return EntityRef{Tempid: id} }

// EntidRef builds an EntityRef naming an already-allocated entid.
func EntidRef(id ident.Entid) EntityRef { return EntityRef{Entid: id, HasEntid: true} }

// Assertion is one `[:db/add E A V]` / `[:db/retract E A V]` operation
// (spec §6). VTempid is set instead of V when the attribute's value
// type is Ref and the value position also names a not-yet-resolved
// tempid (an entity reference to another new entity in the same
// transaction).
type Assertion struct {
	Op      Op
	E       EntityRef
	A       ident.Keyword
	V       coerce.RawValue
	VTempid string
}

// TxReport is the result of a successfully committed transaction (spec
// §4.G): the assigned transaction id, its commit instant, and the
// resolution of every tempid referenced by the input.
type TxReport struct {
	TxID      int64
	TxInstant time.Time
	Tempids   map[string]ident.Entid
}

// Store is the storage collaborator contract spec §6 describes: a
// session through which the transactor allocates entids, resolves
// upserts via a unique index, and appends datoms. A concrete
// implementation lives in the store package, atop modernc.org/sqlite;
// tests in this package exercise the transactor against a minimal
// in-memory fake.
type Store interface {
	// NextEntid allocates a fresh, previously unused, positive entid.
	NextEntid(ctx context.Context) (ident.Entid, error)
	// Lookup returns the entity asserting value v for attribute a via a
	// unique index, if one exists — the basis of upsert resolution.
	Lookup(ctx context.Context, a ident.Entid, v value.Value) (ident.Entid, bool, error)
	// WriteDatom appends one fact to the log.
	WriteDatom(ctx context.Context, e, a ident.Entid, v value.Value, tx int64, added bool) error
}

// Reserved entids for the pseudo-attributes the transactor itself
// installs on every transaction's own entity. They are allocated once,
// outside of Store.NextEntid, so they never collide with user data even
// in a brand new database (spec §4.G: ":db/txInstant records the
// commit timestamp on the transaction's own entity").
const (
	dbTxInstantEntid ident.Entid = 1
	dbTxUuidEntid    ident.Entid = 2
)

var (
	dbTxInstantKeyword = ident.NewKeyword("db", "txInstant")
	dbTxUuidKeyword    = ident.NewKeyword("db", "txUuid")
)

// Metrics receives transactor lifecycle events, if the caller wants
// observability; a nil Metrics (the zero value of *Transactor) disables
// instrumentation entirely — the core's contract never requires it.
type Metrics interface {
	TxCommitted()
	AttributeInstalled()
	AttributeAltered(kind string)
}

// Transactor is the concrete reference implementation of spec §4.G: a
// single-writer serializer over a Store, staging schema mutations
// through schema.Validate before they are published.
type Transactor struct {
	mu      sync.Mutex
	xid     int64
	schema  *schema.Schema
	store   Store
	metrics Metrics
}

// NewTransactor returns a Transactor writing through store, installing
// the :db/txInstant and :db/txUuid pseudo-attributes into s if they are
// not already present.
func NewTransactor(s *schema.Schema, store Store) *Transactor {
	ensurePseudoAttributes(s)
	return &Transactor{schema: s, store: store}
}

// SetMetrics attaches a Metrics sink; pass nil to disable instrumentation.
func (t *Transactor) SetMetrics(m Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

func ensurePseudoAttributes(s *schema.Schema) {
	if _, ok := s.Registry.GetEntid(dbTxInstantKeyword); !ok {
		_ = s.Registry.Put(dbTxInstantKeyword, dbTxInstantEntid)
		a, _ := schema.NewInstallBuilder().ValueType(value.Instant).Index(true).Build()
		s.Attributes[dbTxInstantEntid] = a
	}
	if _, ok := s.Registry.GetEntid(dbTxUuidKeyword); !ok {
		_ = s.Registry.Put(dbTxUuidKeyword, dbTxUuidEntid)
		a, _ := schema.NewInstallBuilder().ValueType(value.Uuid).Build()
		s.Attributes[dbTxUuidEntid] = a
	}
}

// Schema returns the transactor's current published schema snapshot.
// Callers (e.g. the query algebrizer) borrow it for the lifetime of a
// single operation and must not retain it across a subsequent
// InstallAttribute/AlterAttribute call (spec §5 Shared resources).
func (t *Transactor) Schema() *schema.Schema {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schema
}

// InstallAttribute stages a new attribute via b, validates the
// resulting schema, and publishes it atomically. On any validation
// failure the currently published schema is left untouched (spec §5
// Cancellation: "roll back any mutations... staged").
func (t *Transactor) InstallAttribute(ctx context.Context, kw ident.Keyword, b *schema.AttributeBuilder) (ident.Entid, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attr, err := b.Build()
	if err != nil {
		return 0, err
	}

	id, err := t.store.NextEntid(ctx)
	if err != nil {
		return 0, err
	}

	staged := t.schema.Clone()
	if err := staged.Registry.Put(kw, id); err != nil {
		return 0, errors.New(errors.BadSchemaAssertion, "%v", err)
	}
	staged.Attributes[id] = attr

	if errs := schema.Validate(staged); len(errs) != 0 {
		log.ConstraintRejected(errs[0].Code, errs[0].Detail)
		return 0, errs[0]
	}

	t.schema = staged
	if t.metrics != nil {
		t.metrics.AttributeInstalled()
	}
	return id, nil
}

// AlterAttribute stages a mutation of kw's existing attribute via b,
// validates the resulting schema, and publishes it atomically. On any
// failure the currently published schema is left untouched.
func (t *Transactor) AlterAttribute(kw ident.Keyword, b *schema.AttributeBuilder) ([]schema.AlterationKind, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, existing, err := t.schema.AttributeForKeyword(kw)
	if err != nil {
		return nil, err
	}

	mutated, kinds, err := b.Mutate(existing)
	if err != nil {
		return nil, err
	}

	staged := t.schema.Clone()
	staged.Attributes[id] = mutated

	if errs := schema.Validate(staged); len(errs) != 0 {
		log.ConstraintRejected(errs[0].Code, errs[0].Detail)
		return nil, errs[0]
	}

	t.schema = staged
	if t.metrics != nil {
		for _, k := range kinds {
			t.metrics.AttributeAltered(k.String())
		}
	}
	return kinds, nil
}

// Transact atomically applies assertions: every tempid resolves to
// exactly one entid (by upsert through a unique=Identity attribute, or
// by fresh allocation), every value coerces against its attribute's
// declared type, and every resulting datom is written under one
// monotonically assigned transaction id (spec §4.G, §8 invariant 3).
// Any error aborts the whole transaction; no datom from a failed
// Transact call is written (spec §7 propagation policy).
func (t *Transactor) Transact(ctx context.Context, assertions []Assertion) (*TxReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tempids := map[string]ident.Entid{}

	if err := t.resolveUpserts(ctx, assertions, tempids); err != nil {
		if ae, ok := err.(*errors.Error); ok {
			log.ConstraintRejected(ae.Code, ae.Detail)
		}
		return nil, err
	}

	resolve := func(ref EntityRef) (ident.Entid, error) {
		if ref.HasEntid {
			return ref.Entid, nil
		}
		if id, ok := tempids[ref.Tempid]; ok {
			return id, nil
		}
		id, err := t.store.NextEntid(ctx)
		if err != nil {
			return 0, err
		}
		tempids[ref.Tempid] = id
		return id, nil
	}

	type write struct {
		e, a  ident.Entid
		v     value.Value
		added bool
	}
	var writes []write

	for _, as := range assertions {
		e, err := resolve(as.E)
		if err != nil {
			return nil, err
		}
		aEntid, attr, err := t.schema.AttributeForKeyword(as.A)
		if err != nil {
			return nil, err
		}

		var v value.Value
		if as.VTempid != "" {
			if attr.ValueType != value.Ref {
				return nil, errors.New(errors.BadValuePair,
					"tempid value is only valid for :db.type/ref attributes, got %s", attr.ValueType)
			}
			vid, err := resolve(TempidRef(as.VTempid))
			if err != nil {
				return nil, err
			}
			v = value.NewRef(int64(vid))
		} else {
			v, err = coerce.ToTypedValue(as.V, attr.ValueType, t.schema.Registry)
			if err != nil {
				return nil, err
			}
		}

		writes = append(writes, write{e: e, a: aEntid, v: v, added: as.Op == Add})
	}

	txID := atomic.AddInt64(&t.xid, 1)
	log.TxBegin(txID)
	txInstant := time.Now().UTC()
	txEntid := ident.Entid(txID)

	writes = append(writes,
		write{e: txEntid, a: dbTxInstantEntid, v: value.NewInstant(txInstant), added: true},
		write{e: txEntid, a: dbTxUuidEntid, v: value.NewUuid(uuid.New()), added: true},
	)

	for _, w := range writes {
		if err := t.store.WriteDatom(ctx, w.e, w.a, w.v, txID, w.added); err != nil {
			log.TxRolledBack(txID, err)
			return nil, err
		}
	}

	log.TxCommitted(txID, len(tempids))
	if t.metrics != nil {
		t.metrics.TxCommitted()
	}
	return &TxReport{TxID: txID, TxInstant: txInstant, Tempids: tempids}, nil
}

// resolveUpserts runs before any entid is allocated: for every Add
// assertion naming a tempid entity and a unique=Identity attribute, it
// looks up whether that (attribute, value) pair already identifies an
// entity and, if so, binds the tempid to it. A tempid that resolves to
// two different existing entities within the same transaction is a
// ConflictingUpsert (spec §7).
func (t *Transactor) resolveUpserts(ctx context.Context, assertions []Assertion, tempids map[string]ident.Entid) error {
	for _, as := range assertions {
		if as.Op != Add || as.E.HasEntid || as.E.Tempid == "" || as.VTempid != "" {
			continue
		}
		aEntid, attr, err := t.schema.AttributeForKeyword(as.A)
		if err != nil {
			return err
		}
		if attr.Unique != schema.UniqueIdentity {
			continue
		}
		v, err := coerce.ToTypedValue(as.V, attr.ValueType, t.schema.Registry)
		if err != nil {
			return err
		}
		existing, found, err := t.store.Lookup(ctx, aEntid, v)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if bound, ok := tempids[as.E.Tempid]; ok && bound != existing {
			return errors.WithDetail(errors.ConflictingUpsert,
				errors.ConflictingUpsertDetail{Tempid: as.E.Tempid, First: int64(bound), Second: int64(existing)},
				"tempid %q resolves to conflicting entids %d and %d", as.E.Tempid, bound, existing)
		}
		tempids[as.E.Tempid] = existing
	}
	return nil
}
