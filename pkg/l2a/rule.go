// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package l2a implements the L2A-LL decision rule: online learning over the
// rendition ladder driven by a Lagrangian multiplier, with decisions drawn
// from a probability vector projected onto the simplex.
package l2a

import (
	"math"

	"github.com/pion/logging"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

// Tag is the rule tag L2A-LL registers under.
const Tag = "L2ARule"

type state int

const (
	stateOneBitrate state = iota
	stateStartup
	stateSteady
)

const (
	// bufferTarget is the buffer level that ends STARTUP.
	bufferTarget = 1.5
	// horizon is the optimization horizon in segments.
	horizon = 4
	// react rescales the Lagrangian on overshoot.
	react = 2
)

// Option configures an L2A rule.
type Option func(*Rule)

// WithLoggerFactory sets a logger factory for the rule.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(r *Rule) {
		r.log = loggerFactory.NewLogger("l2a_rule")
	}
}

// typeState is the per-media-type learning state.
type typeState struct {
	state       state
	lastQuality int

	q     float64 // Lagrangian multiplier
	w     []float64
	prevW []float64

	vl    float64
	alpha float64

	lastSegmentDurationS float64
	hasSegmentDuration   bool
}

func newTypeState() *typeState {
	vl := math.Pow(horizon, 0.99)

	return &typeState{
		state: stateStartup,
		vl:    vl,
		alpha: math.Max(horizon, vl*math.Sqrt(horizon)),
	}
}

// Rule is the L2A-LL decision rule.
type Rule struct {
	log logging.LeveledLogger

	states map[types.FragmentType]*typeState
}

// NewRule creates an L2A rule.
func NewRule(_ types.Config, opts ...Option) (*Rule, error) {
	r := &Rule{
		log:    logging.NewDefaultLoggerFactory().NewLogger("l2a_rule"),
		states: map[types.FragmentType]*typeState{},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Factory returns a rule.Factory creating L2A rules with the given options.
func Factory(opts ...Option) rule.Factory {
	return rule.FactoryFunc(func(cfg types.Config) (rule.Rule, error) {
		return NewRule(cfg, opts...)
	})
}

func (r *Rule) stateFor(t types.FragmentType) *typeState {
	s, ok := r.states[t]
	if !ok {
		s = newTypeState()
		r.states[t] = s
	}

	return s
}

// Decide returns the next quality for the fragment's media type.
func (r *Rule) Decide(ctx rule.Context) int {
	fragType := types.FragMain
	if ctx.Frag != nil {
		fragType = ctx.Frag.Type
	}
	s := r.stateFor(fragType)

	if len(ctx.Levels) < 2 {
		s.state = stateOneBitrate

		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	}

	switch s.state {
	case stateOneBitrate:
		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	case stateStartup:
		return r.decideStartup(s, ctx)
	default:
		return r.decideSteady(s, ctx)
	}
}

func (r *Rule) decideStartup(s *typeState, ctx rule.Context) int {
	// a latency drift of a full fragment duration or more leaves no usable
	// download window yet: hold the current quality
	if ctx.Live && ctx.FragDuration > 0 &&
		math.Abs(ctx.LatencyS-ctx.TargetLatencyS) >= ctx.FragDuration {
		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	}

	quality := rule.QualityForBitrate(
		ctx.Levels,
		ctx.ThroughputBps/1000,
		ctx.LatencyS, ctx.TargetLatencyS, ctx.FragDuration, ctx.Live,
	)
	s.lastQuality = quality

	if s.hasSegmentDuration && ctx.Buffer.Len >= bufferTarget {
		s.state = stateSteady
		s.q = s.vl
		s.prevW = make([]float64, len(ctx.Levels))
		s.prevW[s.lastQuality] = 1
		s.w = make([]float64, len(ctx.Levels))
		r.log.Debugf("startup complete, Q=%.3f, quality=%d", s.q, quality)
	}

	return quality
}

func (r *Rule) decideSteady(s *typeState, ctx rule.Context) int {
	bitrates := rule.LadderKbps(ctx.Levels)
	n := len(bitrates)
	if len(s.prevW) != n {
		// ladder changed underneath us, relearn
		s.state = stateStartup
		s.hasSegmentDuration = false

		return rule.ClampLevel(ctx.CurrentLevel, len(ctx.Levels))
	}

	segmentDuration := s.lastSegmentDurationS
	lastThroughput := math.Max(1, ctx.LastThroughputKbps)
	playbackRate := ctx.PlaybackRate
	if playbackRate <= 0 {
		playbackRate = 1
	}

	if len(s.w) != n {
		s.w = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		sign := 1.0
		if playbackRate*bitrates[i] > lastThroughput {
			// downloading this rendition would deplete the buffer, so its
			// selection probability decreases
			sign = -1
		}
		s.w[i] = s.prevW[i] + sign*(segmentDuration/(2*s.alpha))*((s.q+s.vl)*(playbackRate*bitrates[i]/lastThroughput))
	}

	s.w = euclideanProjection(s.w)

	diff := make([]float64, n)
	for i := 0; i < n; i++ {
		diff[i] = s.w[i] - s.prevW[i]
		s.prevW[i] = s.w[i]
	}

	s.q = math.Max(0, s.q-segmentDuration+segmentDuration*playbackRate*
		((dot(bitrates, s.prevW)+dot(bitrates, diff))/lastThroughput))

	target := dot(s.w, bitrates)
	quality := 0
	minDiff := math.Inf(1)
	for i := 0; i < n; i++ {
		if d := math.Abs(bitrates[i] - target); d < minDiff {
			minDiff = d
			quality = i
		}
	}

	// smooth ascent: cap at one rung when the next rung already fits the
	// measured throughput
	if quality > s.lastQuality && bitrates[s.lastQuality+1] <= lastThroughput {
		quality = s.lastQuality + 1
	}

	if bitrates[quality] >= lastThroughput {
		s.q = react * math.Max(s.vl, s.q)
	}

	s.lastQuality = quality

	return rule.ClampLevel(quality, n)
}

// Update completes the per-segment accounting on FRAG_PARSED and drops the
// rule back to STARTUP on a stall.
func (r *Rule) Update(ev rule.Event, ctx rule.Context) {
	switch ev {
	case rule.EventFragParsed:
		if ctx.Frag == nil || ctx.Frag.Duration <= 0 {
			return
		}
		s := r.stateFor(ctx.Frag.Type)
		s.lastSegmentDurationS = ctx.Frag.Duration
		s.hasSegmentDuration = true
	case rule.EventStall:
		for _, s := range r.states {
			if s.state == stateSteady || s.state == stateStartup {
				s.state = stateStartup
				s.hasSegmentDuration = false
				s.lastSegmentDurationS = 0
			}
		}
	case rule.EventFragBuffered:
	}
}

// Close implements rule.Rule.
func (r *Rule) Close() error {
	return nil
}
