// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package lolp implements the LoL+ decision rule: a self-organizing map
// over per-bitrate neurons with dynamic weight selection and a per-segment
// QoE evaluator.
package lolp

import (
	"math/rand"

	"github.com/pion/logging"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/qoe"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

// Tag is the rule tag LoL+ registers under.
const Tag = "LoLp"

const (
	defaultTargetLatencyS = 1.5
	defaultBufferMinS     = 0.3
)

// Option configures a LoL+ rule.
type Option func(*Rule)

// WithLoggerFactory sets a logger factory for the rule.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(r *Rule) {
		r.log = loggerFactory.NewLogger("lolp_rule")
	}
}

// WithWeightSelectionMode overrides the dynamic weight selection mode.
func WithWeightSelectionMode(mode WeightSelectionMode) Option {
	return func(r *Rule) {
		r.mode = mode
	}
}

// WithTargetLatency overrides the latency the weight selector steers
// towards.
func WithTargetLatency(latencyS float64) Option {
	return func(r *Rule) {
		r.targetLatencyS = latencyS
	}
}

// WithBufferMin overrides the buffer floor below which renditions are
// considered infeasible.
func WithBufferMin(bufferMinS float64) Option {
	return func(r *Rule) {
		r.bufferMinS = bufferMinS
	}
}

// Rule is the LoL+ decision rule.
type Rule struct {
	log logging.LeveledLogger

	mode           WeightSelectionMode
	targetLatencyS float64
	bufferMinS     float64

	som       *somController
	evaluator *qoe.Evaluator
	selector  *WeightSelector

	lastQoe float64
}

// NewRule creates a LoL+ rule seeded from the config.
func NewRule(cfg types.Config, opts ...Option) (*Rule, error) {
	r := &Rule{
		log:            logging.NewDefaultLoggerFactory().NewLogger("lolp_rule"),
		mode:           WeightsDynamic,
		targetLatencyS: defaultTargetLatencyS,
		bufferMinS:     defaultBufferMinS,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.som = newSomController(r.mode, rand.New(rand.NewSource(cfg.Seed)), r.log)

	return r, nil
}

// Factory returns a rule.Factory creating LoL+ rules with the given
// options.
func Factory(opts ...Option) rule.Factory {
	return rule.FactoryFunc(func(cfg types.Config) (rule.Rule, error) {
		return NewRule(cfg, opts...)
	})
}

// setup binds the evaluator and selector to the ladder on first use; both
// depend on the segment duration and the ladder bitrate bounds.
func (r *Rule) setup(ctx rule.Context) {
	if r.evaluator != nil {
		return
	}
	minKbps, maxKbps := rule.MinMaxKbps(ctx.Levels)
	segmentDuration := ctx.FragDuration
	if segmentDuration <= 0 {
		segmentDuration = 1
	}
	target := r.targetLatencyS
	if ctx.TargetLatencyS > 0 {
		target = ctx.TargetLatencyS
	}
	r.evaluator = qoe.NewEvaluator(segmentDuration, minKbps, maxKbps)
	r.selector = NewWeightSelector(target, r.bufferMinS, segmentDuration, r.evaluator)
}

// Decide returns the SOM winner for the current snapshot.
func (r *Rule) Decide(ctx rule.Context) int {
	if len(ctx.Levels) < 2 {
		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	}
	r.setup(ctx)

	throughput := ctx.ThroughputBps
	if throughput <= 0 {
		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	}

	q := r.som.nextQuality(
		ctx.Levels,
		throughput,
		ctx.LatencyS,
		ctx.Buffer.Len,
		ctx.PlaybackRate,
		ctx.CurrentLevel,
		r.selector,
	)

	return rule.ClampLevel(q, len(ctx.Levels))
}

// Update logs the QoE of each buffered segment. The running total is
// surfaced through Qoe only; it never feeds back into the decision.
func (r *Rule) Update(ev rule.Event, ctx rule.Context) {
	if ev != rule.EventFragBuffered || ctx.Frag == nil {
		return
	}
	r.setup(ctx)

	level := rule.ClampLevel(ctx.Frag.Level, len(ctx.Levels))
	bitrateKbps := ctx.Levels[level].Bitrate.Kbps()

	// segment rebuffer time approximated by the download overrun against
	// the buffer that absorbed it
	rebuffer := 0.0
	if ctx.LastThroughputKbps > 0 {
		downloadTime := bitrateKbps * ctx.FragDuration / ctx.LastThroughputKbps
		if over := downloadTime - ctx.Buffer.Len; over > 0 {
			rebuffer = over
		}
	}

	r.evaluator.LogSegmentMetrics(bitrateKbps, rebuffer, ctx.LatencyS, ctx.PlaybackRate)
	r.lastQoe = r.evaluator.Info().TotalQoe
}

// Qoe returns the running QoE total after the last buffered segment.
func (r *Rule) Qoe() float64 {
	return r.lastQoe
}

// Close implements rule.Rule.
func (r *Rule) Close() error {
	return nil
}
