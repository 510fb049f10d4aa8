// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package lolp

import (
	"math"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/qoe"
)

// weightValues are the candidate values per axis; the Cartesian product
// over the four axes (throughput, latency, buffer, switch) yields the 625
// enumerated weight vectors.
var weightValues = []float64{0.2, 0.4, 0.6, 0.8, 1.0}

const infeasibleInverseWeight = 10

// WeightSelector searches the enumerated weight vectors for the one whose
// single-use QoE is highest under the current buffer and latency
// constraints.
type WeightSelector struct {
	targetLatencyS   float64
	bufferMinS       float64
	segmentDurationS float64
	evaluator        *qoe.Evaluator

	weightOptions [][]float64
}

// NewWeightSelector enumerates the weight vectors once and binds the
// selector to a QoE evaluator.
func NewWeightSelector(targetLatencyS, bufferMinS, segmentDurationS float64, evaluator *qoe.Evaluator) *WeightSelector {
	return &WeightSelector{
		targetLatencyS:   targetLatencyS,
		bufferMinS:       bufferMinS,
		segmentDurationS: segmentDurationS,
		evaluator:        evaluator,
		weightOptions:    enumerateWeightVectors(),
	}
}

func enumerateWeightVectors() [][]float64 {
	var options [][]float64
	for _, tp := range weightValues {
		for _, lat := range weightValues {
			for _, buf := range weightValues {
				for _, sw := range weightValues {
					options = append(options, []float64{tp, lat, buf, sw})
				}
			}
		}
	}

	return options
}

// WeightOptionCount returns the number of enumerated vectors.
func (s *WeightSelector) WeightOptionCount() int {
	return len(s.weightOptions)
}

// SegmentDuration returns the nominal segment duration in seconds.
func (s *WeightSelector) SegmentDuration() float64 {
	return s.segmentDurationS
}

// MinBuffer returns the buffer floor below which a neuron is infeasible.
func (s *WeightSelector) MinBuffer() float64 {
	return s.bufferMinS
}

// NextBuffer projects the buffer level after downloading one segment that
// takes downloadTime seconds.
func (s *WeightSelector) NextBuffer(currentBufferS, downloadTimeS float64) float64 {
	if downloadTimeS > s.segmentDurationS {
		return currentBufferS - s.segmentDurationS
	}

	return currentBufferS + s.segmentDurationS - downloadTimeS
}

// NextBufferWithBitrate projects the buffer level after downloading one
// segment at the given bitrate and throughput (both bits/s).
func (s *WeightSelector) NextBufferWithBitrate(bitrate, currentBufferS, throughput float64) float64 {
	downloadTime := bitrate * s.segmentDurationS / throughput

	return s.NextBuffer(currentBufferS, downloadTime)
}

// FindWeightVector returns the enumerated vector maximizing single-use QoE
// over all feasible (neuron, vector) pairs, or nil when no pair satisfies
// the buffer and latency constraints. The rebuffer entering the QoE is
// projected per neuron from its own download time. Axis weights enter the
// QoE inverted: a small weight amplifies the metric it guards.
func (s *WeightSelector) FindWeightVector(
	neurons []*neuron,
	currentLatencyS, currentBufferS, currentThroughput, playbackRate float64,
) []float64 {
	maxQoe := math.Inf(-1)
	var winner []float64
	deltaLatency := math.Abs(currentLatencyS - s.targetLatencyS)

	for _, n := range neurons {
		downloadTime := n.bitrate * s.segmentDurationS / currentThroughput
		nextBuffer := s.NextBuffer(currentBufferS, downloadTime)
		rebuffer := math.Max(0.00001, downloadTime-nextBuffer)

		if n.state.latency > s.targetLatencyS+deltaLatency || nextBuffer < s.bufferMinS {
			continue
		}

		for _, weights := range s.weightOptions {
			weightedRebuffer := inverse(weights[2]) * rebuffer
			weightedLatency := inverse(weights[1]) * n.state.latency

			totalQoe := s.evaluator.SingleUse(n.bitrate/1000, weightedRebuffer, weightedLatency, playbackRate)
			if totalQoe > maxQoe {
				maxQoe = totalQoe
				winner = weights
			}
		}
	}

	return winner
}

func inverse(w float64) float64 {
	if w > 0 {
		return 1 / w
	}

	return infeasibleInverseWeight
}
