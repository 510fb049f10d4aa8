// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package abr

import (
	"math"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
)

// driftGain scales latency drift (or buffer deficit) into the sigmoid
// argument of the catch-up rate curve.
const driftGain = 5

// settledLatencyFraction is the drift band, relative to the target latency,
// inside which the rate snaps back to 1.0.
const settledLatencyFraction = 0.02

// catchupController computes the instantaneous playback-rate correction for
// live catch-up.
type catchupController struct {
	cfg types.Config
}

// rate returns the playback rate for the current latency and buffer state
// and whether a correction should be written at all.
func (c *catchupController) rate(latencyS, targetLatencyS, bufferLenS float64, playing bool) (float64, bool) {
	if !c.cfg.CatchupPlayback || !playing {
		return 0, false
	}
	if latencyS > c.cfg.CatchupLatencyThreshold {
		return 0, false
	}

	drift := latencyS - targetLatencyS
	bufferStarved := bufferLenS < c.cfg.PlaybackBufferMin

	if math.Abs(drift) > c.cfg.MinDrift || bufferStarved {
		cpr := c.cfg.CatchupPlaybackRate
		var d float64
		if bufferStarved {
			d = driftGain * (bufferLenS - c.cfg.PlaybackBufferMin)
		} else {
			d = driftGain * drift
		}
		rate := 1 - cpr + 2*cpr/(1+math.Exp(-d))
		rate = math.Min(math.Max(rate, 1-cpr), 1+cpr)

		return rate, true
	}

	if math.Abs(drift) <= settledLatencyFraction*targetLatencyS {
		return 1.0, true
	}

	return 0, false
}
