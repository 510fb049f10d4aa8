// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package types holds the value types shared between the decision rules and
// the orchestrator: the rendition ladder, fragments and their loader
// statistics, and buffer occupancy.
package types

import "time"

// FragmentType identifies the elementary stream a fragment belongs to.
type FragmentType string

// Fragment types.
const (
	FragMain     FragmentType = "main"
	FragAudio    FragmentType = "audio"
	FragSubtitle FragmentType = "subtitle"
)

// BitsPerSecond is a data rate of 1 bit per second.
const (
	BitsPerSecond     = Rate(1)
	KiloBitsPerSecond = 1000 * BitsPerSecond
	MegaBitsPerSecond = 1000 * KiloBitsPerSecond
)

// Rate is a data rate in bits per second.
type Rate float64

// Kbps returns the rate in kilobits per second.
func (r Rate) Kbps() float64 {
	return float64(r) / 1000.0
}

// TimeData records the arrival of one container box boundary during a
// chunked download: the wall-clock timestamp and the number of bytes of the
// chunk that began with the box.
type TimeData struct {
	Timestamp time.Time
	Len       int64
}

// LoaderStats carries the per-request statistics the loader hands to the
// core. Loading and parsing marks satisfy
// LoadingStart <= LoadingEnd <= ParsingEnd.
type LoaderStats struct {
	LoadingStart time.Time
	LoadingEnd   time.Time
	ParsingEnd   time.Time

	// Loaded is the number of bytes received so far, Total the expected
	// request size when the server announced one (0 otherwise).
	Loaded int64
	Total  int64

	// BWEstimate is the bandwidth estimate (bits/s) recorded when the
	// request completed, 0 while in flight.
	BWEstimate float64

	Aborted bool

	// StartTimeData and EndTimeData record moof and mdat box boundaries
	// respectively, in arrival order. BoxLoaded is the sum of mdat chunk
	// lengths.
	StartTimeData []TimeData
	EndTimeData   []TimeData
	BoxLoaded     int64
}

// Fragment is one media segment of a rendition.
type Fragment struct {
	// SN is the media sequence number. InitSegment fragments carry no
	// meaningful SN.
	SN          int64
	InitSegment bool

	Level int
	Type  FragmentType

	// Duration and Start are media-timeline seconds.
	Duration float64
	Start    float64

	// BitrateTest marks a probe fragment loaded solely to measure
	// throughput.
	BitrateTest bool

	Stats *LoaderStats
}

// Part is an LL-HLS partial segment with its own loader statistics.
type Part struct {
	Fragment *Fragment
	Stats    *LoaderStats
	Duration float64
	Index    int
}

// BufferInfo describes the forward buffer ahead of the playhead: Len seconds
// buffered and End, the media-timeline position of the buffered range end.
// It is computed by the player with the configured hole tolerance.
type BufferInfo struct {
	Len float64
	End float64
}

// LevelDetails carries the playlist-level attributes of a loaded rendition.
type LevelDetails struct {
	Live                  bool
	AverageTargetDuration float64
	PartTarget            float64
	TargetLatency         float64
}

// Level is one rendition of the ladder. Index 0 is the lowest bitrate.
// Switches are only legal between levels sharing a CodecSet.
type Level struct {
	Bitrate    Rate
	MaxBitrate Rate
	CodecSet   string
	Details    *LevelDetails

	loadedBytes    float64
	loadedDuration float64
}

// AddRealBitrateSample accumulates the measured size of a downloaded
// fragment so RealBitrate can replace the playlist bitrate once enough
// media has been observed.
func (l *Level) AddRealBitrateSample(bytes int64, durationS float64) {
	if durationS <= 0 {
		return
	}
	l.loadedBytes += float64(bytes)
	l.loadedDuration += durationS
}

// RealBitrate returns the observed average bitrate, or 0 when no media has
// been accumulated yet.
func (l *Level) RealBitrate() Rate {
	if l.loadedDuration <= 0 {
		return 0
	}
	return Rate(8 * l.loadedBytes / l.loadedDuration)
}

// MaxOrRealBitrate returns the rate level fetches should be budgeted with:
// the observed real bitrate when available and permitted, else MaxBitrate.
func (l *Level) MaxOrRealBitrate(useReal bool) Rate {
	if useReal {
		if r := l.RealBitrate(); r > 0 {
			return r
		}
	}
	return l.MaxBitrate
}
