// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package levenshtein wraps github.com/agnivade/levenshtein to compute
// "did you mean" suggestions, the same way the teacher's
// internal/levenshtein package does for suggestion surfaces elsewhere in
// the corpus.
package levenshtein

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// ClosestStrings returns the candidates within minDistance edits of a,
// narrowing minDistance as closer candidates are found. Ties are returned
// in sorted order.
func ClosestStrings(minDistance int, a string, candidates []string) []string {
	closest := []string{}
	for _, c := range candidates {
		dist := levenshtein.ComputeDistance(a, c)
		switch {
		case dist < minDistance:
			closest = []string{c}
			minDistance = dist
		case dist == minDistance:
			closest = append(closest, c)
		default:
			continue
		}
	}
	sort.Strings(closest)
	return closest
}
