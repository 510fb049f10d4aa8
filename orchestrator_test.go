// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package abr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/test"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

func testLadder() []*types.Level {
	return []*types.Level{
		{Bitrate: 300_000, MaxBitrate: 300_000, CodecSet: "avc1"},
		{Bitrate: 750_000, MaxBitrate: 750_000, CodecSet: "avc1"},
		{Bitrate: 1_500_000, MaxBitrate: 1_500_000, CodecSet: "avc1"},
		{Bitrate: 3_000_000, MaxBitrate: 3_000_000, CodecSet: "avc1"},
	}
}

// bufferFrag builds a loaded+buffered main fragment whose stats encode the
// given throughput.
func bufferFrag(sn int64, level int, durationS float64, bytes int64, downloadMs int64) *types.Fragment {
	t0 := time.Unix(2000, 0)

	return &types.Fragment{
		SN: sn, Level: level, Type: types.FragMain, Duration: durationS,
		Stats: &types.LoaderStats{
			LoadingStart: t0,
			LoadingEnd:   t0.Add(time.Duration(downloadMs) * time.Millisecond),
			ParsingEnd:   t0.Add(time.Duration(downloadMs) * time.Millisecond),
			Loaded:       bytes,
		},
	}
}

func TestFallbackFindsBestLevel(t *testing.T) {
	media := test.NewMockMedia()
	media.Set(func(m *test.MockMedia) {
		m.Buffer = types.BufferInfo{Len: 8, End: 8}
	})

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	// 1 MB in 1 s: 8 Mbit/s; 0.7*8M clears even the top rung
	frag := bufferFrag(1, 0, 2, 1_000_000, 1000)
	o.OnFragLoading(frag, nil, nil)
	o.OnFragLoaded(frag, nil)
	o.OnFragBuffered(frag, nil)

	assert.Equal(t, 3, o.NextAutoLevel())
}

func TestFallbackConservativeWithoutEstimate(t *testing.T) {
	media := test.NewMockMedia()

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	// default estimate 500 kbit/s, empty buffer: only the floor fits
	got := o.NextAutoLevel()
	assert.Equal(t, 0, got)
}

func TestFallbackHonorsCodecSetPartition(t *testing.T) {
	levels := testLadder()
	levels[3].CodecSet = "hvc1"

	media := test.NewMockMedia()
	media.Set(func(m *test.MockMedia) {
		m.Buffer = types.BufferInfo{Len: 8, End: 8}
	})

	o, err := NewOrchestrator(media, levels)
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	frag := bufferFrag(1, 0, 2, 1_000_000, 1000)
	o.OnFragLoading(frag, nil, nil)
	o.OnFragLoaded(frag, nil)
	o.OnFragBuffered(frag, nil)

	// the top rung is in a different codec family than the last loaded
	// fragment and must be skipped
	assert.Equal(t, 2, o.NextAutoLevel())
}

func TestDecisionAlwaysWithinLadder(t *testing.T) {
	media := test.NewMockMedia()
	media.Set(func(m *test.MockMedia) {
		m.Buffer = types.BufferInfo{Len: 8, End: 8}
	})

	for _, tag := range []string{"LoLp", "L2ARule", "StallionRule", "Llama", "bogus", ""} {
		tag := tag
		t.Run("tag_"+tag, func(t *testing.T) {
			o, err := NewOrchestrator(media, testLadder(), WithRule(tag))
			require.NoError(t, err)
			defer o.Close() //nolint:errcheck

			for sn := int64(0); sn < 8; sn++ {
				frag := bufferFrag(sn, o.NextLoadLevel(), 2, 500_000, 1000)
				o.OnFragLoading(frag, nil, nil)
				o.OnFragLoaded(frag, nil)
				o.OnFragParsed(frag)
				o.OnFragBuffered(frag, nil)

				got := o.NextAutoLevel()
				assert.GreaterOrEqual(t, got, 0)
				assert.Less(t, got, 4)
			}
		})
	}
}

func TestRuleSwapTearsDownPreviousRule(t *testing.T) {
	closed := make(chan string, 2)

	reg := rule.NewRegistry()
	for _, tag := range []string{"first", "second"} {
		tag := tag
		reg.Register(tag, rule.FactoryFunc(func(types.Config) (rule.Rule, error) {
			return &closingRule{tag: tag, closed: closed}, nil
		}))
	}

	media := test.NewMockMedia()
	o, err := NewOrchestrator(media, testLadder(), WithRegistry(reg), WithRule("first"))
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	o.NextAutoLevel()
	o.SetRule("second")
	o.NextAutoLevel()

	select {
	case tag := <-closed:
		assert.Equal(t, "first", tag)
	default:
		t.Fatal("expected the first rule to be closed on tag change")
	}
}

type closingRule struct {
	rule.NoOp
	tag    string
	closed chan string
}

func (r *closingRule) Close() error {
	r.closed <- r.tag

	return nil
}

func TestBitrateTestFragmentSeedsDelayAndEstimate(t *testing.T) {
	media := test.NewMockMedia()

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	frag := bufferFrag(1, 0, 2, 125_000, 500) // 2 Mbit/s probe
	frag.BitrateTest = true

	o.OnFragLoading(frag, nil, nil)
	// loading synthesizes the buffered event for probes
	o.OnFragLoaded(frag, nil)

	assert.InDelta(t, 2e6, o.BwEstimate(), 1e3)
	assert.InDelta(t, 0.5, o.bitrateTestDelayS, 1e-9)
	assert.Greater(t, frag.Stats.BWEstimate, 0.0)
}

func TestAbortedFragmentIsNeverSampled(t *testing.T) {
	media := test.NewMockMedia()

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	frag := bufferFrag(1, 0, 2, 1_000_000, 1000)
	frag.Stats.Aborted = true
	o.OnFragBuffered(frag, nil)

	assert.Equal(t, types.DefaultConfig().EwmaDefaultEstimate, o.BwEstimate())
}

func TestLevelLoadedSwitchesEwmaProfileAndLatency(t *testing.T) {
	media := test.NewMockMedia()

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	o.OnLevelLoaded(&types.LevelDetails{Live: true, TargetLatency: 1.5})

	o.lock.Lock()
	assert.True(t, o.live)
	assert.Equal(t, 1.5, o.targetLatencyS)
	o.lock.Unlock()
}

func TestCatchupWritesPlaybackRate(t *testing.T) {
	media := test.NewMockMedia()
	media.Set(func(m *test.MockMedia) {
		m.Buffer = types.BufferInfo{Len: 2, End: 2}
		m.Lat = 2.5
	})

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	o.OnLevelLoaded(&types.LevelDetails{Live: true, TargetLatency: 1.5})
	o.NextAutoLevel()

	require.NotEmpty(t, media.RatesWritten)
	assert.InDelta(t, 1.2960, media.RatesWritten[len(media.RatesWritten)-1], 1e-3)
}

func TestForcedLevelCapsDecision(t *testing.T) {
	media := test.NewMockMedia()
	media.Set(func(m *test.MockMedia) {
		m.Buffer = types.BufferInfo{Len: 8, End: 8}
	})

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	defer o.Close() //nolint:errcheck

	frag := bufferFrag(1, 0, 2, 1_000_000, 1000)
	o.OnFragLoading(frag, nil, nil)
	o.OnFragLoaded(frag, nil)
	o.OnFragBuffered(frag, nil)
	require.Equal(t, 3, o.NextAutoLevel())

	o.SetNextAutoLevel(1)
	assert.Equal(t, 1, o.NextAutoLevel())

	// loading a fragment at the forced level clears the force
	forced := bufferFrag(2, 1, 2, 1_000_000, 1000)
	o.OnFragLoading(forced, nil, nil)
	o.OnFragLoaded(forced, nil)
	o.OnFragBuffered(forced, nil)
	assert.Equal(t, 3, o.NextAutoLevel())
}

func TestClosedOrchestratorIgnoresEvents(t *testing.T) {
	media := test.NewMockMedia()

	o, err := NewOrchestrator(media, testLadder())
	require.NoError(t, err)
	require.NoError(t, o.Close())

	frag := bufferFrag(1, 0, 2, 1_000_000, 1000)
	o.OnFragLoading(frag, nil, nil)
	o.OnFragBuffered(frag, nil)

	assert.Equal(t, types.DefaultConfig().EwmaDefaultEstimate, o.BwEstimate())
}
