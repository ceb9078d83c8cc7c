// Package fdr adjusts p-values for multiple testing.
package fdr

import (
	"fmt"
	"math"
	"sort"

	"proteodiff/domain/core"
)

// MethodBH names the Benjamini-Hochberg step-up procedure
const MethodBH = "BH"

// BenjaminiHochberg returns FDR-adjusted p-values in the input order. NaN
// entries mark untestable features: they keep their slot, stay NaN and do
// not count toward the number of tests. It fails only when no entry is
// finite.
func BenjaminiHochberg(p []float64) ([]float64, error) {
	idx := make([]int, 0, len(p))
	for i, v := range p {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no testable p-values among %d features", core.ErrCorrection, len(p))
	}

	// Stable sort keeps ties in input order, which keeps runs reproducible.
	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

	n := float64(len(idx))
	adj := make([]float64, len(p))
	for i := range adj {
		adj[i] = math.NaN()
	}

	running := 1.0
	for rank := len(idx); rank >= 1; rank-- {
		i := idx[rank-1]
		q := p[i] * n / float64(rank)
		if q < running {
			running = q
		}
		adj[i] = math.Max(0, math.Min(1, running))
	}
	return adj, nil
}
