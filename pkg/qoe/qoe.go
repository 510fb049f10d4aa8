// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package qoe implements the per-segment Quality-of-Experience evaluator
// used by the LoL+ rule and its weight selector.
package qoe

import "math"

// LatencyPenalty is one bucket of the piecewise-linear latency schedule.
// The first bucket whose Threshold is at or above the current latency
// applies.
type LatencyPenalty struct {
	Threshold float64
	Penalty   float64
}

// Info accumulates the QoE of a session. Weights are fixed at setup from
// the segment duration and the ladder bitrate bounds.
type Info struct {
	WeightBitrateReward       float64
	WeightBitrateSwitchPen    float64
	WeightRebufferPen         float64
	WeightPlaybackSpeedPen    float64
	WeightLatencyPenSchedule  []LatencyPenalty
	LastBitrateKbps           float64
	bitrateWeightSum          float64
	bitrateSwitchWeightSum    float64
	rebufferWeightSum         float64
	latencyWeightSum          float64
	playbackSpeedWeightSum    float64
	TotalQoe                  float64
	segmentsLogged            int
}

// Evaluator computes per-segment QoE rewards.
type Evaluator struct {
	segmentDurationS float64
	minKbps          float64
	maxKbps          float64

	info *Info
}

// NewEvaluator sets up per-segment QoE accounting for a ladder bounded by
// [minKbps, maxKbps] and segments of the given duration.
func NewEvaluator(segmentDurationS, minKbps, maxKbps float64) *Evaluator {
	return &Evaluator{
		segmentDurationS: segmentDurationS,
		minKbps:          minKbps,
		maxKbps:          maxKbps,
		info:             newInfo(segmentDurationS, minKbps, maxKbps),
	}
}

func newInfo(segmentDurationS, minKbps, maxKbps float64) *Info {
	return &Info{
		WeightBitrateReward:    segmentDurationS,
		WeightBitrateSwitchPen: 1,
		WeightRebufferPen:      maxKbps,
		WeightPlaybackSpeedPen: minKbps,
		WeightLatencyPenSchedule: []LatencyPenalty{
			{Threshold: 1.1, Penalty: minKbps * 0.05},
			{Threshold: math.Inf(1), Penalty: maxKbps * 0.1},
		},
		LastBitrateKbps: math.NaN(),
	}
}

// LogSegmentMetrics folds one played segment into the running QoE total.
// Sums are accumulated in call order, left to right.
func (e *Evaluator) LogSegmentMetrics(bitrateKbps, rebufferS, latencyS, playbackSpeed float64) {
	info := e.info

	info.bitrateWeightSum += info.WeightBitrateReward * bitrateKbps
	if !math.IsNaN(info.LastBitrateKbps) {
		info.bitrateSwitchWeightSum += info.WeightBitrateSwitchPen * math.Abs(bitrateKbps-info.LastBitrateKbps)
	}
	info.LastBitrateKbps = bitrateKbps

	info.rebufferWeightSum += info.WeightRebufferPen * rebufferS
	info.latencyWeightSum += latencyPenalty(info.WeightLatencyPenSchedule, latencyS) * latencyS
	info.playbackSpeedWeightSum += info.WeightPlaybackSpeedPen * math.Abs(1-playbackSpeed)

	info.TotalQoe = info.bitrateWeightSum -
		info.bitrateSwitchWeightSum -
		info.rebufferWeightSum -
		info.latencyWeightSum -
		info.playbackSpeedWeightSum
	info.segmentsLogged++
}

// SingleUse evaluates one hypothetical segment against a fresh throwaway
// accumulator with the stored ladder bounds, leaving the session total
// untouched.
func (e *Evaluator) SingleUse(bitrateKbps, rebufferS, latencyS, playbackSpeed float64) float64 {
	throwaway := &Evaluator{
		segmentDurationS: e.segmentDurationS,
		minKbps:          e.minKbps,
		maxKbps:          e.maxKbps,
		info:             newInfo(e.segmentDurationS, e.minKbps, e.maxKbps),
	}
	throwaway.LogSegmentMetrics(bitrateKbps, rebufferS, latencyS, playbackSpeed)

	return throwaway.info.TotalQoe
}

// Info returns the running accumulator. Observability output only, never a
// control input.
func (e *Evaluator) Info() Info {
	return *e.info
}

// SegmentDuration returns the segment duration the evaluator was set up
// with.
func (e *Evaluator) SegmentDuration() float64 {
	return e.segmentDurationS
}

func latencyPenalty(schedule []LatencyPenalty, latencyS float64) float64 {
	for _, p := range schedule {
		if p.Threshold >= latencyS {
			return p.Penalty
		}
	}

	return schedule[len(schedule)-1].Penalty
}
