// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package l2a

import "sort"

// euclideanProjection projects w onto the probability simplex: the closest
// vector in the l2 sense with non-negative components summing to one.
// Sort-and-scan algorithm of Duchi et al., O(n log n).
func euclideanProjection(w []float64) []float64 {
	n := len(w)
	sorted := append([]float64(nil), w...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var tmpSum, tmax float64
	found := false
	for i := 0; i < n-1; i++ {
		tmpSum += sorted[i]
		tmax = (tmpSum - 1) / float64(i+1)
		if tmax >= sorted[i+1] {
			found = true

			break
		}
	}
	if !found {
		tmax = (tmpSum + sorted[n-1] - 1) / float64(n)
	}

	projected := make([]float64, n)
	for i, v := range w {
		if v > tmax {
			projected[i] = v - tmax
		}
	}

	return projected
}

// dot is the left-fold inner product of two equal-length vectors.
func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}

	return sum
}
