// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package abr contains the orchestration layer of the ABR decision engine:
// it owns one decision rule at a time, feeds it fragment statistics, keeps
// the bandwidth estimate, aborts downloads that would starve the buffer and
// steers the live catch-up playback rate.
package abr

import (
	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/l2a"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/llama"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/lolp"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/stallion"
)

// Media is the read-mostly view of the media element the core observes. The
// only mutation the core performs is the playback rate.
type Media interface {
	CurrentTime() float64
	PlaybackRate() float64
	SetPlaybackRate(rate float64)
	Paused() bool
	Buffered() types.BufferInfo
	Latency() float64
	TargetLatency() float64
}

// Aborter cancels an in-flight fragment download.
type Aborter interface {
	Abort()
}

// Abort describes an emergency-aborted fragment download.
type Abort struct {
	Frag  *types.Fragment
	Part  *types.Part
	Stats *types.LoaderStats
}

// ErrorDetails identifies the error events the orchestrator reacts to.
type ErrorDetails int

// Error events.
const (
	ErrFragLoadError ErrorDetails = iota
	ErrFragLoadTimeout
	ErrBufferStalled
)

// Observer receives decision telemetry. Implementations must be cheap; they
// run on the decision path.
type Observer interface {
	Decision(tag string, level int)
	Estimate(bps float64)
	PlaybackRate(rate float64)
	EmergencyAbort()
}

// DefaultRegistry returns a registry with the four built-in rules
// registered under their tags.
func DefaultRegistry() *rule.Registry {
	r := rule.NewRegistry()
	r.Register(lolp.Tag, lolp.Factory())
	r.Register(l2a.Tag, l2a.Factory())
	r.Register(stallion.Tag, stallion.Factory())
	r.Register(llama.Tag, llama.Factory())

	return r
}
