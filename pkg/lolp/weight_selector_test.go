// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package lolp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/qoe"
)

func testNeurons() []*neuron {
	return []*neuron{
		{qualityIndex: 0, bitrate: 300_000, state: neuronState{throughput: 0.087}},
		{qualityIndex: 1, bitrate: 750_000, state: neuronState{throughput: 0.217}},
		{qualityIndex: 2, bitrate: 1_500_000, state: neuronState{throughput: 0.435}},
		{qualityIndex: 3, bitrate: 3_000_000, state: neuronState{throughput: 0.870}},
	}
}

func TestWeightSelectorEnumeratesAllVectors(t *testing.T) {
	s := NewWeightSelector(1.5, 0.3, 2, qoe.NewEvaluator(2, 300, 3000))

	assert.Equal(t, 625, s.WeightOptionCount())

	// every vector draws each axis from the candidate values
	for _, w := range s.weightOptions {
		require.Len(t, w, 4)
		for _, v := range w {
			assert.Contains(t, weightValues, v)
		}
	}
}

func TestFindWeightVectorReturnsEnumeratedVector(t *testing.T) {
	s := NewWeightSelector(1.5, 0.3, 2, qoe.NewEvaluator(2, 300, 3000))

	got := s.FindWeightVector(testNeurons(), 1.5, 4, 4_000_000, 1.0)

	require.NotNil(t, got)
	assert.Contains(t, s.weightOptions, got)
}

func TestFindWeightVectorInfeasible(t *testing.T) {
	s := NewWeightSelector(1.5, 0.3, 2, qoe.NewEvaluator(2, 300, 3000))

	// throughput so low that every rendition depletes the buffer below
	// the floor
	got := s.FindWeightVector(testNeurons(), 1.5, 0.2, 10_000, 1.0)

	assert.Nil(t, got)
}

func TestNextBuffer(t *testing.T) {
	s := NewWeightSelector(1.5, 0.3, 2, qoe.NewEvaluator(2, 300, 3000))

	// download faster than real time grows the buffer
	assert.InDelta(t, 4.5, s.NextBuffer(3, 0.5), 1e-9)
	// slower than real time drains one segment duration
	assert.InDelta(t, 1.0, s.NextBuffer(3, 2.5), 1e-9)
}
