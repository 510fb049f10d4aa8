// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

// Package metrics exposes the decision telemetry of the orchestrator as
// Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer implements abr.Observer backed by Prometheus collectors.
type Observer struct {
	decisions       *prometheus.CounterVec
	emergencyAborts prometheus.Counter
	estimate        prometheus.Gauge
	playbackRate    prometheus.Gauge
	nextLevel       prometheus.Gauge
}

// NewObserver registers the collectors on the given registerer.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)

	return &Observer{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "abr_decisions_total",
			Help: "ABR decisions taken, by rule tag.",
		}, []string{"rule"}),
		emergencyAborts: factory.NewCounter(prometheus.CounterOpts{
			Name: "abr_emergency_aborts_total",
			Help: "Fragment downloads aborted by the abandonment watchdog.",
		}),
		estimate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "abr_bandwidth_estimate_bits",
			Help: "Current bandwidth estimate in bits per second.",
		}),
		playbackRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "abr_playback_rate",
			Help: "Playback rate written by the catch-up controller.",
		}),
		nextLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "abr_next_level",
			Help: "Most recent automatic level decision.",
		}),
	}
}

// Decision implements abr.Observer.
func (o *Observer) Decision(tag string, level int) {
	if tag == "" {
		tag = "fallback"
	}
	o.decisions.WithLabelValues(tag).Inc()
	o.nextLevel.Set(float64(level))
}

// Estimate implements abr.Observer.
func (o *Observer) Estimate(bps float64) {
	o.estimate.Set(bps)
}

// PlaybackRate implements abr.Observer.
func (o *Observer) PlaybackRate(rate float64) {
	o.playbackRate.Set(rate)
}

// EmergencyAbort implements abr.Observer.
func (o *Observer) EmergencyAbort() {
	o.emergencyAborts.Inc()
}
