// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package rule

import (
	"math"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
)

// ClampLevel clamps a quality index to the ladder bounds.
func ClampLevel(q, levelCount int) int {
	if q < 0 {
		return 0
	}
	if q >= levelCount {
		return levelCount - 1
	}

	return q
}

// LadderKbps returns the ladder bitrates in kilobits per second.
func LadderKbps(levels []*types.Level) []float64 {
	kbps := make([]float64, len(levels))
	for i, l := range levels {
		kbps[i] = l.Bitrate.Kbps()
	}

	return kbps
}

// MinMaxKbps returns the lowest and highest ladder bitrates in kbps.
func MinMaxKbps(levels []*types.Level) (float64, float64) {
	kbps := LadderKbps(levels)
	minKbps, maxKbps := kbps[0], kbps[0]
	for _, b := range kbps[1:] {
		if b < minKbps {
			minKbps = b
		}
		if b > maxKbps {
			maxKbps = b
		}
	}

	return minKbps, maxKbps
}

// Magnitude returns the Euclidean norm of the ladder bitrate vector in
// bits/s, used by LoL+ as its bitrate normalization factor.
func Magnitude(levels []*types.Level) float64 {
	var sum float64
	for _, l := range levels {
		sum += float64(l.Bitrate) * float64(l.Bitrate)
	}

	return math.Sqrt(sum)
}

// QualityForBitrate returns the highest ladder index whose bitrate fits the
// given throughput, shrunk by the live dead-time ratio: when the latency
// drift is a fraction of the fragment duration, that fraction of the
// download window is already spent, so the effective throughput shrinks
// proportionally. A drift of a full fragment duration or more leaves no
// usable window and forces index 0.
func QualityForBitrate(levels []*types.Level, throughputKbps, latencyS, targetLatencyS, fragDurationS float64, live bool) int {
	tp := throughputKbps
	if live && latencyS > 0 && fragDurationS > 0 {
		drift := math.Abs(latencyS - targetLatencyS)
		if drift >= fragDurationS {
			return 0
		}
		tp *= 1 - drift/fragDurationS
	}

	quality := 0
	for i, l := range levels {
		if l.Bitrate <= types.Rate(tp)*types.KiloBitsPerSecond {
			quality = i
		}
	}

	return quality
}
