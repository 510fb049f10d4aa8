// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package qoe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluatorWeights(t *testing.T) {
	e := NewEvaluator(2, 300, 3000)
	info := e.Info()

	assert.Equal(t, 2.0, info.WeightBitrateReward)
	assert.Equal(t, 1.0, info.WeightBitrateSwitchPen)
	assert.Equal(t, 3000.0, info.WeightRebufferPen)
	assert.Equal(t, 300.0, info.WeightPlaybackSpeedPen)

	assert.Len(t, info.WeightLatencyPenSchedule, 2)
	assert.Equal(t, 1.1, info.WeightLatencyPenSchedule[0].Threshold)
	assert.InDelta(t, 15, info.WeightLatencyPenSchedule[0].Penalty, 1e-9)
	assert.InDelta(t, 300, info.WeightLatencyPenSchedule[1].Penalty, 1e-9)
}

func TestEvaluatorAccumulatesSegments(t *testing.T) {
	e := NewEvaluator(2, 300, 3000)

	// 2*1500 - 3000*0.5 - 15*1.0
	e.LogSegmentMetrics(1500, 0.5, 1.0, 1.0)
	assert.InDelta(t, 1485, e.Info().TotalQoe, 1e-9)

	// high latency hits the second penalty tier
	e.LogSegmentMetrics(750, 0, 2.0, 1.1)
	assert.InDelta(t, 1605, e.Info().TotalQoe, 1e-9)
}

func TestEvaluatorSingleUseLeavesSessionUntouched(t *testing.T) {
	e := NewEvaluator(2, 300, 3000)
	e.LogSegmentMetrics(1500, 0.5, 1.0, 1.0)
	before := e.Info().TotalQoe

	got := e.SingleUse(1500, 0.5, 1.0, 1.0)

	assert.InDelta(t, 1485, got, 1e-9)
	assert.Equal(t, before, e.Info().TotalQoe)
}

func TestLatencyPenaltyTiers(t *testing.T) {
	e := NewEvaluator(1, 1000, 2000)

	cases := []struct {
		name    string
		latency float64
		penalty float64
	}{
		{"lowLatencyFirstTier", 0.9, 1000 * 0.05},
		{"boundaryFirstTier", 1.1, 1000 * 0.05},
		{"highLatencySecondTier", 1.2, 2000 * 0.1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := latencyPenalty(e.info.WeightLatencyPenSchedule, tc.latency)
			assert.InDelta(t, tc.penalty, got, 1e-9)
		})
	}
}
