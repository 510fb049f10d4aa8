// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package l2a

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEuclideanProjection(t *testing.T) {
	cases := []struct {
		name     string
		in       []float64
		expected []float64
	}{
		{
			name:     "mixedSigns",
			in:       []float64{0.6, 0.5, 0.4, -0.1},
			expected: []float64{13.0 / 30, 10.0 / 30, 7.0 / 30, 0},
		},
		{
			name:     "alreadyOnSimplex",
			in:       []float64{0.25, 0.25, 0.25, 0.25},
			expected: []float64{0.25, 0.25, 0.25, 0.25},
		},
		{
			name:     "indicatorStaysIndicator",
			in:       []float64{0, 0, 1, 0},
			expected: []float64{0, 0, 1, 0},
		},
		{
			name:     "allNegativeCollapsesToUniform",
			in:       []float64{-1, -1, -1, -1},
			expected: []float64{0.25, 0.25, 0.25, 0.25},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := euclideanProjection(tc.in)
			require.Len(t, got, len(tc.expected))
			for i := range got {
				assert.InDelta(t, tc.expected[i], got[i], 1e-9)
			}
		})
	}
}

func TestEuclideanProjectionProperties(t *testing.T) {
	inputs := [][]float64{
		{0.15, 0.375, 1.75, -1.5},
		{2, 0, 0},
		{0.9, 0.1, 0.1, 0.1, 0.1},
		{-0.5, 3.2, 0.01, 0.7},
	}
	for _, in := range inputs {
		got := euclideanProjection(in)

		var sum float64
		for _, v := range got {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 32, dot([]float64{1, 2, 3}, []float64{4, 5, 6}), 1e-12)
}
