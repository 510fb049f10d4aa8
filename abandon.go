// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package abr

import (
	"math"
	"time"
)

const (
	// watchdogInterval is the abandonment check period while a main
	// fragment is in flight.
	watchdogInterval = 100 * time.Millisecond

	// abandonBwFactor discounts the measured load rate when projecting
	// how fast a lower rendition would arrive.
	abandonBwFactor = 0.8
)

// armWatchdog starts the periodic abandonment check. Idempotent; caller
// holds the lock.
func (o *Orchestrator) armWatchdog() {
	if o.watchdogTicker != nil {
		return
	}
	o.watchdogTicker = o.tickerFactory(watchdogInterval)
	o.watchdogQuit = make(chan struct{})

	go o.watchdogLoop(o.watchdogTicker, o.watchdogQuit)
}

// disarmWatchdog cancels the periodic check. Idempotent; caller holds the
// lock.
func (o *Orchestrator) disarmWatchdog() {
	if o.watchdogTicker == nil {
		return
	}
	o.watchdogTicker.Stop()
	close(o.watchdogQuit)
	o.watchdogTicker = nil
	o.watchdogQuit = nil
}

func (o *Orchestrator) watchdogLoop(t Ticker, quit chan struct{}) {
	for {
		select {
		case <-t.Ch():
			o.abandonRulesCheck()
		case <-quit:
			return
		}
	}
}

// abandonRulesCheck decides whether the in-flight fragment will finish
// before the buffer runs dry, and if a lower rendition would arrive in
// time, aborts the download and forces the switch.
func (o *Orchestrator) abandonRulesCheck() {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed || o.watchdogTicker == nil {
		return
	}

	frag := o.fragCurrent
	if frag == nil || frag.Level < 0 || frag.Level >= len(o.levels) {
		return
	}
	stats := fragStats(frag, o.partCurrent)
	if stats == nil || stats.Aborted {
		return
	}

	duration := o.fragDuration()
	if duration <= 0 {
		return
	}

	playbackRate := o.playbackRate()
	requestDelayMs := o.now().Sub(stats.LoadingStart).Seconds() * 1000

	// give the request at least half a (rate-scaled) fragment duration
	// before judging it
	if requestDelayMs <= 500*duration/playbackRate {
		return
	}

	expectedLen := stats.Total
	if expectedLen <= 0 {
		expectedLen = int64(math.Max(
			float64(stats.Loaded),
			math.Ceil(duration*float64(o.levels[frag.Level].MaxBitrate)/8),
		))
	}

	loadRate := stats.BWEstimate / 8 // bytes/s
	if loadRate <= 0 {
		loadRate = float64(stats.Loaded) * 1000 / requestDelayMs
	}
	loadRate = math.Max(1, loadRate)

	fragLoadedDelay := float64(expectedLen-stats.Loaded) / loadRate
	bufferStarvationDelay := (o.media.Buffered().End - o.media.CurrentTime()) / playbackRate

	// never abandon while the buffer can absorb two fragments
	if bufferStarvationDelay >= 2*duration/playbackRate || fragLoadedDelay <= bufferStarvationDelay {
		return
	}

	nextLoadLevel := -1
	nextDelay := math.Inf(1)
	for i := frag.Level - 1; i >= o.minAutoLevel; i-- {
		nextDelay = duration * float64(o.levels[i].MaxBitrate) / (8 * abandonBwFactor * loadRate)
		nextLoadLevel = i
		if nextDelay < bufferStarvationDelay {
			break
		}
	}
	if nextLoadLevel < 0 || nextDelay >= fragLoadedDelay {
		return
	}

	o.log.Warnf(
		"fragment sn %d level %d will not finish before starvation (loaded delay %.2fs, starvation %.2fs), emergency switch to level %d",
		frag.SN, frag.Level, fragLoadedDelay, bufferStarvationDelay, nextLoadLevel,
	)

	o.bwe.Sample(requestDelayMs, stats.Loaded)
	o.forcedAutoLevel = nextLoadLevel
	o.nextLoadLevel = nextLoadLevel
	stats.Aborted = true
	if o.aborter != nil {
		o.aborter.Abort()
	}
	o.disarmWatchdog()
	if o.observer != nil {
		o.observer.EmergencyAbort()
	}

	abort := Abort{Frag: frag, Part: o.partCurrent, Stats: stats}
	for _, f := range o.onAbort {
		f(abort)
	}
}
