// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package types

// Config is the read-only tuning surface consumed by the core. All durations
// are seconds, all rates bits per second unless stated otherwise.
type Config struct {
	// EWMA half-lives for the bandwidth estimator, switched on live/VoD
	// transitions.
	EwmaSlowVoD  float64 `yaml:"ewmaSlowVoD"`
	EwmaFastVoD  float64 `yaml:"ewmaFastVoD"`
	EwmaSlowLive float64 `yaml:"ewmaSlowLive"`
	EwmaFastLive float64 `yaml:"ewmaFastLive"`

	// EwmaDefaultEstimate is returned until the estimator has seen enough
	// samples.
	EwmaDefaultEstimate float64 `yaml:"ewmaDefaultEstimate"`

	// BandwidthFactor discounts the estimate when staying at or below the
	// current level, BandwidthUpFactor when switching up.
	BandwidthFactor   float64 `yaml:"bandwidthFactor"`
	BandwidthUpFactor float64 `yaml:"bandwidthUpFactor"`

	// MaxWithRealBitrate budgets level fetches with the observed average
	// bitrate instead of the playlist MaxBitrate.
	MaxWithRealBitrate bool `yaml:"maxWithRealBitrate"`

	MaxBufferHole      float64 `yaml:"maxBufferHole"`
	MaxStarvationDelay float64 `yaml:"maxStarvationDelay"`
	MaxLoadingDelay    float64 `yaml:"maxLoadingDelay"`

	// BoxThroughput enables deriving bandwidth samples from moof/mdat
	// chunk timestamps instead of request processing time.
	BoxThroughput bool `yaml:"boxThroughput"`

	// Catch-up playback-rate controller.
	CatchupPlayback         bool    `yaml:"catchupPlayback"`
	CatchupPlaybackRate     float64 `yaml:"catchupPlaybackRate"`
	CatchupLatencyThreshold float64 `yaml:"catchupLatencyThreshold"`
	PlaybackBufferMin       float64 `yaml:"playbackBufferMin"`
	MinDrift                float64 `yaml:"minDrift"`

	// MinPlaybackRateChange suppresses playback-rate writes smaller than
	// this delta. Safari needs 0.25, everything else is fine with 0.02.
	MinPlaybackRateChange float64 `yaml:"minPlaybackRateChange"`

	// Seed feeds the pseudorandom stream used by k-means++ seeding and
	// Xavier weight initialization so decisions are reproducible.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns the semantic defaults of the config surface.
func DefaultConfig() Config {
	return Config{
		EwmaSlowVoD:             3,
		EwmaFastVoD:             3,
		EwmaSlowLive:            9,
		EwmaFastLive:            3,
		EwmaDefaultEstimate:     5e5,
		BandwidthFactor:         0.8,
		BandwidthUpFactor:       0.7,
		MaxWithRealBitrate:      false,
		MaxBufferHole:           0.1,
		MaxStarvationDelay:      4,
		MaxLoadingDelay:         4,
		BoxThroughput:           false,
		CatchupPlayback:         true,
		CatchupPlaybackRate:     0.3,
		CatchupLatencyThreshold: 60,
		PlaybackBufferMin:       0.5,
		MinDrift:                0.05,
		MinPlaybackRateChange:   0.02,
		Seed:                    1,
	}
}
