// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package stallion implements the Stallion decision rule: a sliding-window
// mean-minus-k-sigma throughput estimate paired with a mean-plus-k-sigma
// latency safety band.
package stallion

import (
	"math"

	"github.com/pion/logging"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

// Tag is the rule tag Stallion registers under.
const Tag = "StallionRule"

const (
	throughputSampleAmount = 3
	latencySampleAmount    = 4

	throughputSafetyFactor = 1.0
	latencySafetyFactor    = 1.25
)

// Option configures a Stallion rule.
type Option func(*Rule)

// WithLoggerFactory sets a logger factory for the rule.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(r *Rule) {
		r.log = loggerFactory.NewLogger("stallion_rule")
	}
}

// window is a bounded window of the most recent samples, oldest first.
type window struct {
	cap     int
	samples []float64
}

func (w *window) push(v float64) {
	w.samples = append(w.samples, v)
	if len(w.samples) > w.cap {
		w.samples = w.samples[1:]
	}
}

func (w *window) pop() {
	if len(w.samples) > 0 {
		w.samples = w.samples[:len(w.samples)-1]
	}
}

func (w *window) mean() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.samples {
		sum += v
	}

	return sum / float64(len(w.samples))
}

func (w *window) stdev() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	mean := w.mean()
	var sum float64
	for _, v := range w.samples {
		d := v - mean
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(w.samples)))
}

// Rule is the Stallion decision rule.
type Rule struct {
	log logging.LeveledLogger

	throughputs window
	latencies   window
}

// NewRule creates a Stallion rule.
func NewRule(_ types.Config, opts ...Option) (*Rule, error) {
	r := &Rule{
		log:         logging.NewDefaultLoggerFactory().NewLogger("stallion_rule"),
		throughputs: window{cap: throughputSampleAmount},
		latencies:   window{cap: latencySampleAmount},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Factory returns a rule.Factory creating Stallion rules with the given
// options.
func Factory(opts ...Option) rule.Factory {
	return rule.FactoryFunc(func(cfg types.Config) (rule.Rule, error) {
		return NewRule(cfg, opts...)
	})
}

// Decide pushes the current throughput and latency samples and picks the
// highest rendition fitting the safe estimates.
//
// On VoD the freshly pushed samples are popped again before returning, so
// VoD decisions stay pure per call and the windows only ever grow on live
// streams.
func (r *Rule) Decide(ctx rule.Context) int {
	if len(ctx.Levels) < 2 {
		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	}

	if ctx.LastThroughputKbps > 0 {
		r.throughputs.push(ctx.LastThroughputKbps)
	}
	r.latencies.push(ctx.LatencyS)

	bitrateSafe := r.throughputs.mean() - throughputSafetyFactor*r.throughputs.stdev()
	latencySafe := r.latencies.mean() + latencySafetyFactor*r.latencies.stdev()

	if !ctx.Live {
		if ctx.LastThroughputKbps > 0 {
			r.throughputs.pop()
		}
		r.latencies.pop()
	}

	if ctx.Buffer.Len <= 0 {
		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	}

	return rule.QualityForBitrate(
		ctx.Levels,
		bitrateSafe,
		latencySafe, ctx.TargetLatencyS, ctx.FragDuration, ctx.Live,
	)
}

// Update implements rule.Rule; Stallion keeps no lifecycle state.
func (r *Rule) Update(rule.Event, rule.Context) {}

// Close implements rule.Rule.
func (r *Rule) Close() error {
	return nil
}
