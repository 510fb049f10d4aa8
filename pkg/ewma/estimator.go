// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package ewma implements the dual half-life bandwidth estimator fed from
// per-fragment download samples.
package ewma

import (
	"github.com/pion/logging"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
)

const (
	defaultMinWeight  = 0.001
	defaultMinDelayMs = 50
)

// Option configures an Estimator.
type Option func(*Estimator)

// WithLoggerFactory sets a logger factory for the estimator.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(e *Estimator) {
		e.log = loggerFactory.NewLogger("bw_estimator")
	}
}

// WithMinWeight overrides the total weight required before the estimate is
// trusted over the configured default.
func WithMinWeight(w float64) Option {
	return func(e *Estimator) {
		e.minWeight = w
	}
}

// Estimator tracks a fast and a slow EWMA of the observed bandwidth. The
// slow average is the published estimate; the fast one gates how quickly it
// becomes trustworthy.
type Estimator struct {
	log logging.LeveledLogger

	minWeight       float64
	minDelayMs      float64
	defaultEstimate float64

	fast *movingAverage
	slow *movingAverage
}

// New creates an Estimator with the given half-lives (seconds) and the
// default estimate returned until enough samples arrived.
func New(slowS, fastS, defaultEstimate float64, opts ...Option) *Estimator {
	e := &Estimator{
		log:             logging.NewDefaultLoggerFactory().NewLogger("bw_estimator"),
		minWeight:       defaultMinWeight,
		minDelayMs:      defaultMinDelayMs,
		defaultEstimate: defaultEstimate,
		fast:            newMovingAverage(fastS),
		slow:            newMovingAverage(slowS),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// UpdateHalfLives switches the decay profile, keeping the accumulated
// history. Called on live/VoD transitions.
func (e *Estimator) UpdateHalfLives(slowS, fastS float64) {
	e.slow.setHalfLife(slowS)
	e.fast.setHalfLife(fastS)
}

// Sample feeds one download observation. Non-positive durations are
// rejected silently.
func (e *Estimator) Sample(durationMs float64, bytes int64) {
	if durationMs <= 0 {
		return
	}
	if durationMs < e.minDelayMs {
		durationMs = e.minDelayMs
	}

	bandwidth := 8000 * float64(bytes) / durationMs
	weight := durationMs / 1000

	e.fast.sample(weight, bandwidth)
	e.slow.sample(weight, bandwidth)
	e.log.Tracef("sampled %d bytes over %.0fms, estimate now %.0f bits/s", bytes, durationMs, e.Estimate())
}

// CanEstimate reports whether at least one sample has been applied.
func (e *Estimator) CanEstimate() bool {
	return e.fast.getTotalWeight() >= e.minWeight
}

// Estimate returns the slow average once it is trustworthy, else the
// configured default.
func (e *Estimator) Estimate() float64 {
	if e.CanEstimate() {
		return e.slow.getEstimate()
	}

	return e.defaultEstimate
}

// BoxSample derives a download sample from the moof/mdat chunk records of a
// fragment. The first and last chunks of each kind are trimmed: the first
// carries connection ramp-up, the last is usually cut short by the request
// ending. Returns ok=false when too few chunks remain, in which case the
// caller falls back to the request processing time.
func BoxSample(stats *types.LoaderStats) (durationMs float64, bytes int64, ok bool) {
	if len(stats.StartTimeData) < 3 || len(stats.EndTimeData) < 3 {
		return 0, 0, false
	}

	start := stats.StartTimeData[1 : len(stats.StartTimeData)-1]
	end := stats.EndTimeData[1 : len(stats.EndTimeData)-1]

	last := end[len(end)-1]
	durationMs = last.Timestamp.Sub(start[0].Timestamp).Seconds() * 1000
	bytes = stats.BoxLoaded - last.Len
	if durationMs <= 0 || bytes <= 0 {
		return 0, 0, false
	}

	return durationMs, bytes, true
}

// ProcessingSample derives the fallback sample from the request processing
// interval.
func ProcessingSample(stats *types.LoaderStats) (durationMs float64, bytes int64) {
	return stats.ParsingEnd.Sub(stats.LoadingStart).Seconds() * 1000, stats.Loaded
}
