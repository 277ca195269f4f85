// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package value

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMatchesType(t *testing.T) {
	v := NewLong(42)
	if !MatchesType(v, Long) {
		t.Fatalf("expected Long to match")
	}
	if MatchesType(v, Double) {
		t.Fatalf("expected Double to not match")
	}
}

func TestEqualDoubleNaN(t *testing.T) {
	nan1 := NewDouble(math.NaN())
	nan2 := NewDouble(math.NaN())
	if !Equal(nan1, nan2) {
		t.Fatalf("expected bitwise-equal NaNs to be Equal")
	}
}

func TestEqualDoubleDistinctNaNPayloads(t *testing.T) {
	// Two different NaN bit patterns are not Equal under bitwise equality.
	nan1 := Value{Type: Double, dval: math.Float64frombits(0x7ff8000000000001)}
	nan2 := Value{Type: Double, dval: math.Float64frombits(0x7ff8000000000002)}
	if Equal(nan1, nan2) {
		t.Fatalf("expected distinct NaN payloads to differ under bitwise equality")
	}
}

func TestCompareTotalOrder(t *testing.T) {
	vals := []float64{math.Inf(-1), -1.0, -0.0, 0.0, 1.0, math.Inf(1), math.NaN()}
	for i := 0; i < len(vals)-1; i++ {
		a, b := NewDouble(vals[i]), NewDouble(vals[i+1])
		if Compare(a, b) > 0 {
			t.Fatalf("expected %v <= %v in total order, got Compare=%d", vals[i], vals[i+1], Compare(a, b))
		}
	}
}

func TestCompareStrings(t *testing.T) {
	if Compare(NewString("a"), NewString("b")) >= 0 {
		t.Fatalf("expected a < b")
	}
}

func TestComparePanicsOnMismatchedTypes(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic comparing mismatched types")
		}
	}()
	Compare(NewLong(1), NewDouble(1))
}

func TestUuidRoundTrip(t *testing.T) {
	u := uuid.New()
	v := NewUuid(u)
	if v.UUID() != u {
		t.Fatalf("uuid round trip failed")
	}
}

func TestInstantNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("test", 3600)
	local := time.Date(2020, 1, 1, 12, 0, 0, 0, loc)
	v := NewInstant(local)
	if v.Time().Location() != time.UTC {
		t.Fatalf("expected instant normalized to UTC, got %v", v.Time().Location())
	}
}

func TestTypeSet(t *testing.T) {
	s := NewTypeSet(Long, Double)
	if !s.Has(Long) || !s.Has(Double) {
		t.Fatalf("expected Long and Double in set")
	}
	if s.Has(String) {
		t.Fatalf("did not expect String in set")
	}
	inter := s.Intersect(NewTypeSet(Double, String))
	if got, ok := inter.Single(); !ok || got != Double {
		t.Fatalf("expected single-member Double intersection, got %v ok=%v", got, ok)
	}
}

func TestTypeSetEmptyAfterDisjointIntersect(t *testing.T) {
	s := NewTypeSet(Long).Intersect(NewTypeSet(Double))
	if !s.IsEmpty() {
		t.Fatalf("expected empty intersection of disjoint sets")
	}
}
