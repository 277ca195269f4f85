// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTxCommittedIncrementsCounter(t *testing.T) {
	p := New()
	p.TxCommitted()
	p.TxCommitted()

	if got := testutil.ToFloat64(p.txCommitted); got != 2 {
		t.Fatalf("expected 2 committed transactions, got %v", got)
	}
}

func TestAttributeAlteredIsLabeledByKind(t *testing.T) {
	p := New()
	p.AttributeAltered("cardinality")
	p.AttributeAltered("cardinality")
	p.AttributeAltered("doc")

	if got := testutil.ToFloat64(p.attributeAltered.WithLabelValues("cardinality")); got != 2 {
		t.Fatalf("expected 2 cardinality alterations, got %v", got)
	}
	if got := testutil.ToFloat64(p.attributeAltered.WithLabelValues("doc")); got != 1 {
		t.Fatalf("expected 1 doc alteration, got %v", got)
	}
}

func TestQueryAlgebrizedTracksCollapseToEmpty(t *testing.T) {
	p := New()
	p.QueryAlgebrized(false)
	p.QueryAlgebrized(true)
	p.QueryAlgebrized(true)

	if got := testutil.ToFloat64(p.queriesAlgebrized); got != 3 {
		t.Fatalf("expected 3 queries algebrized, got %v", got)
	}
	if got := testutil.ToFloat64(p.collapsedToEmpty); got != 2 {
		t.Fatalf("expected 2 collapsed-to-empty, got %v", got)
	}
}

func TestGatherReturnsRegisteredFamilies(t *testing.T) {
	p := New()
	p.AttributeInstalled()

	families, err := p.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "mentat_attributes_installed_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected mentat_attributes_installed_total in gathered families, got %d families", len(families))
	}
}
