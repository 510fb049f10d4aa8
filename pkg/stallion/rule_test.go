// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package stallion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

func ladder() []*types.Level {
	return []*types.Level{
		{Bitrate: 300_000, MaxBitrate: 300_000, CodecSet: "avc1"},
		{Bitrate: 750_000, MaxBitrate: 750_000, CodecSet: "avc1"},
		{Bitrate: 1_500_000, MaxBitrate: 1_500_000, CodecSet: "avc1"},
		{Bitrate: 3_000_000, MaxBitrate: 3_000_000, CodecSet: "avc1"},
	}
}

func liveContext(throughputKbps, latencyS float64) rule.Context {
	return rule.Context{
		Levels:             ladder(),
		MaxAutoLevel:       3,
		CurrentLevel:       1,
		FragDuration:       2,
		LastThroughputKbps: throughputKbps,
		LatencyS:           latencyS,
		TargetLatencyS:     1.0,
		Buffer:             types.BufferInfo{Len: 5, End: 5},
		PlaybackRate:       1.0,
		Live:               true,
	}
}

func TestZeroVarianceDegeneratesToQualityForBitrate(t *testing.T) {
	r, err := NewRule(types.DefaultConfig())
	require.NoError(t, err)

	ctx := liveContext(1000, 1.0)

	var got int
	for i := 0; i < 4; i++ {
		got = r.Decide(ctx)
	}

	want := rule.QualityForBitrate(ctx.Levels, 1000, 1.0, 1.0, 2, true)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, got)
}

func TestVariancePullsEstimateDown(t *testing.T) {
	r, err := NewRule(types.DefaultConfig())
	require.NoError(t, err)

	// mean 1600 but jittery: mean - stdev drops below the 1500 rung
	var got int
	for _, tp := range []float64{800, 1600, 2400} {
		got = r.Decide(liveContext(tp, 1.0))
	}

	assert.Equal(t, 1, got)
}

func TestVoDWindowsStayEmpty(t *testing.T) {
	r, err := NewRule(types.DefaultConfig())
	require.NoError(t, err)

	ctx := liveContext(1000, 1.0)
	ctx.Live = false

	// every call pops its freshly pushed samples, so pure VoD decisions
	// never accumulate a window
	for i := 0; i < 6; i++ {
		r.Decide(ctx)
		assert.Empty(t, r.throughputs.samples)
		assert.Empty(t, r.latencies.samples)
	}
}

func TestEmptyBufferHoldsCurrent(t *testing.T) {
	r, err := NewRule(types.DefaultConfig())
	require.NoError(t, err)

	ctx := liveContext(5000, 1.0)
	ctx.Buffer = types.BufferInfo{}

	assert.Equal(t, 1, r.Decide(ctx))
}

func TestLatencySafetyBandShrinksQuality(t *testing.T) {
	r, err := NewRule(types.DefaultConfig())
	require.NoError(t, err)

	// latency drifting a full fragment duration above target forces the
	// floor through the dead-time adjustment
	var got int
	for i := 0; i < 4; i++ {
		got = r.Decide(liveContext(5000, 3.2))
	}

	assert.Equal(t, 0, got)
}

func TestWindowsAreBounded(t *testing.T) {
	r, err := NewRule(types.DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		r.Decide(liveContext(1000+float64(i), 1.0))
	}

	assert.Len(t, r.throughputs.samples, throughputSampleAmount)
	assert.Len(t, r.latencies.samples, latencySampleAmount)
}
