// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package llama implements the Llama decision rule: a harmonic-mean
// throughput heuristic with hysteresis between the instantaneous and the
// smoothed estimate.
package llama

import (
	"github.com/pion/logging"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

// Tag is the rule tag Llama registers under.
const Tag = "Llama"

const (
	throughputWindowSize = 10
	safetyFactor         = 1.0

	// warmupFragments is the number of fragments after session start
	// during which the rule holds the current quality.
	warmupFragments = 5
)

// Option configures a Llama rule.
type Option func(*Rule)

// WithLoggerFactory sets a logger factory for the rule.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(r *Rule) {
		r.log = loggerFactory.NewLogger("llama_rule")
	}
}

// Rule is the Llama decision rule.
type Rule struct {
	log logging.LeveledLogger

	// reciprocals is a ring of 1/throughput samples; the harmonic mean is
	// their count over their sum.
	reciprocals []float64

	sn0    int64
	hasSn0 bool
}

// NewRule creates a Llama rule.
func NewRule(_ types.Config, opts ...Option) (*Rule, error) {
	r := &Rule{
		log: logging.NewDefaultLoggerFactory().NewLogger("llama_rule"),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Factory returns a rule.Factory creating Llama rules with the given
// options.
func Factory(opts ...Option) rule.Factory {
	return rule.FactoryFunc(func(cfg types.Config) (rule.Rule, error) {
		return NewRule(cfg, opts...)
	})
}

func (r *Rule) push(throughputKbps float64) {
	if throughputKbps <= 0 {
		return
	}
	r.reciprocals = append(r.reciprocals, 1/throughputKbps)
	if len(r.reciprocals) > throughputWindowSize {
		r.reciprocals = r.reciprocals[1:]
	}
}

func (r *Rule) harmonicMean() float64 {
	if len(r.reciprocals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.reciprocals {
		sum += v
	}

	return float64(len(r.reciprocals)) / sum * safetyFactor
}

// Decide applies the hysteresis: step down as soon as the instantaneous
// throughput drops below the current rendition, step up only when both the
// harmonic mean and the instantaneous throughput clear the next rung.
func (r *Rule) Decide(ctx rule.Context) int {
	current := rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	if ctx.Frag != nil && ctx.Frag.Type == types.FragAudio {
		return current
	}

	r.push(ctx.LastThroughputKbps)

	if ctx.Frag != nil {
		if !r.hasSn0 {
			r.sn0 = ctx.Frag.SN
			r.hasSn0 = true
		}
		delta := ctx.Frag.SN - r.sn0
		if delta < 0 {
			delta = -delta
		}
		if delta < warmupFragments {
			return current
		}
	}

	bitrates := rule.LadderKbps(ctx.Levels)
	lastThroughput := ctx.LastThroughputKbps

	if lastThroughput < bitrates[current] {
		return rule.ClampLevel(current-1, len(ctx.Levels))
	}

	if current+1 < len(bitrates) &&
		r.harmonicMean() > bitrates[current+1] &&
		lastThroughput > bitrates[current+1] &&
		// TODO: this gate can never fail; decide whether it should compare
		// against a real buffer floor instead
		ctx.Buffer.Len >= -1 {
		return current + 1
	}

	return current
}

// Update resets the warmup origin on a stall, so the rule holds quality
// while the session recovers.
func (r *Rule) Update(ev rule.Event, _ rule.Context) {
	if ev == rule.EventStall {
		r.hasSn0 = false
	}
}

// Close implements rule.Rule.
func (r *Rule) Close() error {
	return nil
}
