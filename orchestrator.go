// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package abr

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/ewma"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

var (
	errNoLevels = errors.New("orchestrator needs a non-empty level ladder")
	errNoMedia  = errors.New("orchestrator needs a media element to observe")
)

// notForced marks the forced auto level as unset.
const notForced = -1

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConfig replaces the default config.
func WithConfig(cfg types.Config) Option {
	return func(o *Orchestrator) error {
		o.cfg = cfg

		return nil
	}
}

// WithRule selects the active decision rule tag. Unknown tags fall back to
// the conservative level search.
func WithRule(tag string) Option {
	return func(o *Orchestrator) error {
		o.ruleTag = tag

		return nil
	}
}

// WithRegistry replaces the default rule registry.
func WithRegistry(r *rule.Registry) Option {
	return func(o *Orchestrator) error {
		o.registry = r

		return nil
	}
}

// WithLoggerFactory sets a logger factory for the orchestrator.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(o *Orchestrator) error {
		o.loggerFactory = loggerFactory
		o.log = loggerFactory.NewLogger("abr_orchestrator")

		return nil
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) error {
		o.observer = obs

		return nil
	}
}

// WithTickerFactory replaces the watchdog ticker source, for tests.
func WithTickerFactory(f TickerFactory) Option {
	return func(o *Orchestrator) error {
		o.tickerFactory = f

		return nil
	}
}

// WithNow replaces the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		o.now = now

		return nil
	}
}

// WithAutoLevelBounds restricts automatic decisions to [minLevel, maxLevel].
func WithAutoLevelBounds(minLevel, maxLevel int) Option {
	return func(o *Orchestrator) error {
		o.minAutoLevel = minLevel
		o.maxAutoLevel = maxLevel

		return nil
	}
}

// Orchestrator mediates between the media observer, the bandwidth
// estimator, the active decision rule and the abandonment watchdog. All
// methods are safe for use from the single media event-loop goroutine plus
// the internal watchdog tick.
type Orchestrator struct {
	lock sync.Mutex

	log           logging.LeveledLogger
	loggerFactory logging.LoggerFactory

	cfg      types.Config
	levels   []*types.Level
	media    Media
	registry *rule.Registry
	bwe      *ewma.Estimator
	catchup  catchupController
	observer Observer

	tickerFactory TickerFactory
	now           func() time.Time

	ruleTag    string
	activeTag  string
	activeRule rule.Rule

	minAutoLevel int
	maxAutoLevel int

	fragCurrent *types.Fragment
	partCurrent *types.Part
	aborter     Aborter

	lastLoadedFragLevel    int
	lastFragThroughputKbps float64
	bitrateTestDelayS      float64
	forcedAutoLevel        int
	nextLoadLevel          int
	live                   bool
	targetLatencyS         float64

	watchdogTicker Ticker
	watchdogQuit   chan struct{}

	onAbort []func(Abort)
	closed  bool
}

// NewOrchestrator creates an orchestrator for the given ladder. The ladder
// slice is read-only to the core apart from the per-level real-bitrate
// accumulators.
func NewOrchestrator(media Media, levels []*types.Level, opts ...Option) (*Orchestrator, error) {
	if len(levels) == 0 {
		return nil, errNoLevels
	}
	if media == nil {
		return nil, errNoMedia
	}

	o := &Orchestrator{
		log:             logging.NewDefaultLoggerFactory().NewLogger("abr_orchestrator"),
		loggerFactory:   logging.NewDefaultLoggerFactory(),
		cfg:             types.DefaultConfig(),
		levels:          levels,
		media:           media,
		tickerFactory:   newTimeTicker,
		now:             time.Now,
		minAutoLevel:    0,
		maxAutoLevel:    len(levels) - 1,
		forcedAutoLevel: notForced,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	o.bwe = ewma.New(
		o.cfg.EwmaSlowVoD, o.cfg.EwmaFastVoD, o.cfg.EwmaDefaultEstimate,
		ewma.WithLoggerFactory(o.loggerFactory),
	)
	o.catchup = catchupController{cfg: o.cfg}

	return o, nil
}

// OnEmergencyAborted registers a callback fired when the watchdog aborts an
// in-flight fragment.
func (o *Orchestrator) OnEmergencyAborted(f func(Abort)) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.onAbort = append(o.onAbort, f)
}

// SetRule switches the active rule tag. The running rule is torn down on
// the next decision.
func (o *Orchestrator) SetRule(tag string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.ruleTag = tag
}

// SetNextAutoLevel forces the automatic decision: it caps the result while
// the estimator can estimate and replaces it while it cannot. The force
// stays until a fragment of that level is loaded. Pass -1 to clear.
func (o *Orchestrator) SetNextAutoLevel(level int) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if level == notForced {
		o.forcedAutoLevel = notForced

		return
	}
	o.forcedAutoLevel = rule.ClampLevel(level, len(o.levels))
}

// NextLoadLevel returns the level the loader should fetch next.
func (o *Orchestrator) NextLoadLevel() int {
	o.lock.Lock()
	defer o.lock.Unlock()

	return o.nextLoadLevel
}

// BwEstimate returns the current bandwidth estimate in bits/s.
func (o *Orchestrator) BwEstimate() float64 {
	o.lock.Lock()
	defer o.lock.Unlock()

	return o.bwe.Estimate()
}

// swapRule tears down the previous rule when the tag changed and lazily
// builds the new one. Caller holds the lock.
func (o *Orchestrator) swapRule() {
	if o.activeTag == o.ruleTag {
		return
	}
	if o.activeRule != nil {
		if err := o.activeRule.Close(); err != nil {
			o.log.Warnf("closing rule %q: %v", o.activeTag, err)
		}
		o.activeRule = nil
	}
	o.activeTag = o.ruleTag
	if o.ruleTag == "" {
		return
	}
	r, err := o.registry.Build(o.ruleTag, o.cfg)
	if err != nil {
		o.log.Warnf("rule %q unavailable, using conservative fallback: %v", o.ruleTag, err)

		return
	}
	o.activeRule = r
}

func (o *Orchestrator) playbackRate() float64 {
	rate := math.Abs(o.media.PlaybackRate())
	if o.media.Paused() || rate == 0 {
		return 1.0
	}

	return rate
}

func (o *Orchestrator) fragDuration() float64 {
	if o.partCurrent != nil {
		return o.partCurrent.Duration
	}
	if o.fragCurrent != nil {
		return o.fragCurrent.Duration
	}

	return 0
}

// buildContext snapshots the decision inputs. Caller holds the lock.
func (o *Orchestrator) buildContext() rule.Context {
	return rule.Context{
		Levels:             o.levels,
		MinAutoLevel:       o.minAutoLevel,
		MaxAutoLevel:       o.maxAutoLevel,
		CurrentLevel:       o.lastLoadedFragLevel,
		Frag:               o.fragCurrent,
		FragDuration:       o.fragDuration(),
		ThroughputBps:      o.bwe.Estimate(),
		LastThroughputKbps: o.lastFragThroughputKbps,
		LatencyS:           o.media.Latency(),
		TargetLatencyS:     o.targetLatency(),
		Buffer:             o.media.Buffered(),
		PlaybackRate:       o.playbackRate(),
		Live:               o.live,
	}
}

func (o *Orchestrator) targetLatency() float64 {
	if o.targetLatencyS > 0 {
		return o.targetLatencyS
	}

	return o.media.TargetLatency()
}

// NextAutoLevel computes the next rendition index: the active rule decides,
// the conservative search fills in when no rule is active, the forced level
// caps the result (or replaces it while the estimator has no sample yet),
// and the catch-up controller adjusts the playback rate as a side effect.
func (o *Orchestrator) NextAutoLevel() int {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return o.nextLoadLevel
	}

	o.swapRule()
	ctx := o.buildContext()

	var level int
	if o.activeRule != nil {
		level = rule.ClampLevel(o.activeRule.Decide(ctx), len(o.levels))
	} else {
		level = o.findBestLevelConservative(ctx)
	}

	if o.forcedAutoLevel != notForced {
		if !o.bwe.CanEstimate() {
			level = o.forcedAutoLevel
		} else if o.forcedAutoLevel < level {
			level = o.forcedAutoLevel
		}
	}

	o.nextLoadLevel = level
	if o.observer != nil {
		o.observer.Decision(o.activeTag, level)
		o.observer.Estimate(o.bwe.Estimate())
	}

	o.applyCatchup(ctx)

	return level
}

// applyCatchup writes the playback-rate correction, suppressing changes
// below the configured delta. Caller holds the lock.
func (o *Orchestrator) applyCatchup(ctx rule.Context) {
	if !o.live {
		return
	}
	newRate, ok := o.catchup.rate(ctx.LatencyS, ctx.TargetLatencyS, ctx.Buffer.Len, !o.media.Paused())
	if !ok {
		return
	}
	if math.Abs(newRate-o.media.PlaybackRate()) < o.cfg.MinPlaybackRateChange {
		return
	}
	o.log.Debugf("catch-up playback rate %.4f (latency %.2fs, target %.2fs)", newRate, ctx.LatencyS, ctx.TargetLatencyS)
	o.media.SetPlaybackRate(newRate)
	if o.observer != nil {
		o.observer.PlaybackRate(newRate)
	}
}

// findBestLevelConservative is the fallback search used when no rule is
// active: first try to find a level that guarantees no rebuffering at all,
// then retry with the starvation budget. Caller holds the lock.
func (o *Orchestrator) findBestLevelConservative(ctx rule.Context) int {
	avgBw := o.bwe.Estimate()
	bufferStarvationDelay := ctx.Buffer.Len / ctx.PlaybackRate

	if best := o.findBestLevel(ctx, avgBw, bufferStarvationDelay, 0,
		o.cfg.BandwidthFactor, o.cfg.BandwidthUpFactor); best >= 0 {
		return best
	}

	fragDuration := ctx.FragDuration
	maxStarvationDelay := o.cfg.MaxStarvationDelay
	if fragDuration > 0 {
		maxStarvationDelay = math.Min(fragDuration, maxStarvationDelay)
	}
	bwFactor, bwUpFactor := o.cfg.BandwidthFactor, o.cfg.BandwidthUpFactor

	if bufferStarvationDelay == 0 && o.bitrateTestDelayS > 0 {
		// a bitrate test just measured the link; spend its savings on the
		// loading budget and trust the estimate undiscounted
		maxLoadingDelay := o.cfg.MaxLoadingDelay
		if fragDuration > 0 {
			maxLoadingDelay = math.Min(fragDuration, maxLoadingDelay)
		}
		maxStarvationDelay = maxLoadingDelay - o.bitrateTestDelayS
		bwFactor, bwUpFactor = 1, 1
	}

	best := o.findBestLevel(ctx, avgBw, bufferStarvationDelay, maxStarvationDelay, bwFactor, bwUpFactor)
	if best < 0 {
		return 0
	}

	return best
}

func (o *Orchestrator) findBestLevel(
	ctx rule.Context,
	avgBw, bufferStarvationDelay, maxStarvationDelay, bwFactor, bwUpFactor float64,
) int {
	maxFetchDuration := bufferStarvationDelay + maxStarvationDelay

	var currentCodecSet string
	if o.lastLoadedFragLevel >= 0 && o.lastLoadedFragLevel < len(o.levels) {
		currentCodecSet = o.levels[o.lastLoadedFragLevel].CodecSet
	}

	for i := o.maxAutoLevel; i >= o.minAutoLevel; i-- {
		level := o.levels[i]
		if level == nil || (currentCodecSet != "" && level.CodecSet != currentCodecSet) {
			continue
		}

		avgDuration := ctx.FragDuration
		if details := level.Details; details != nil {
			if o.partCurrent != nil && details.PartTarget > 0 {
				avgDuration = details.PartTarget
			} else if details.AverageTargetDuration > 0 {
				avgDuration = details.AverageTargetDuration
			}
		}

		var adjustedBw float64
		if i <= o.lastLoadedFragLevel {
			adjustedBw = bwFactor * avgBw
		} else {
			adjustedBw = bwUpFactor * avgBw
		}

		bitrate := float64(o.levels[i].MaxOrRealBitrate(o.cfg.MaxWithRealBitrate))
		fetchDuration := bitrate * avgDuration / adjustedBw

		if adjustedBw > bitrate &&
			(fetchDuration == 0 || math.IsInf(fetchDuration, 0) ||
				(o.live && o.bitrateTestDelayS == 0) ||
				fetchDuration < maxFetchDuration) {
			return i
		}
	}

	return -1
}

// OnLevelLoaded switches the estimator profile on live/VoD transitions and
// records the target latency.
func (o *Orchestrator) OnLevelLoaded(details *types.LevelDetails) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed || details == nil {
		return
	}
	o.live = details.Live
	o.targetLatencyS = details.TargetLatency
	if details.Live {
		o.bwe.UpdateHalfLives(o.cfg.EwmaSlowLive, o.cfg.EwmaFastLive)
	} else {
		o.bwe.UpdateHalfLives(o.cfg.EwmaSlowVoD, o.cfg.EwmaFastVoD)
	}
}

// OnFragLoading records the in-flight fragment and arms the abandonment
// watchdog for main fragments.
func (o *Orchestrator) OnFragLoading(frag *types.Fragment, part *types.Part, aborter Aborter) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed || frag == nil {
		return
	}
	o.fragCurrent = frag
	o.partCurrent = part
	o.aborter = aborter
	if frag.Type == types.FragMain && !frag.InitSegment {
		o.armWatchdog()
	}
}

// OnFragLoaded disarms the watchdog, tracks the last loaded level and
// handles the bitrate-test shortcut.
func (o *Orchestrator) OnFragLoaded(frag *types.Fragment, part *types.Part) {
	o.lock.Lock()
	if o.closed || frag == nil {
		o.lock.Unlock()

		return
	}
	o.disarmWatchdog()

	if frag.Level == o.forcedAutoLevel {
		// the emergency switch has taken effect
		o.forcedAutoLevel = notForced
	}

	stats := fragStats(frag, part)
	if frag.Type == types.FragMain && !frag.InitSegment {
		o.lastLoadedFragLevel = frag.Level
		if o.cfg.MaxWithRealBitrate && stats != nil && frag.Level >= 0 && frag.Level < len(o.levels) {
			duration := frag.Duration
			if part != nil {
				duration = part.Duration
			}
			o.levels[frag.Level].AddRealBitrateSample(stats.Loaded, duration)
		}
	}

	bitrateTest := frag.BitrateTest && stats != nil
	if bitrateTest {
		// a bitrate test is never parsed or appended; account for it as
		// buffered right away
		stats.ParsingEnd = stats.LoadingEnd
	}
	o.lock.Unlock()

	if bitrateTest {
		o.OnFragBuffered(frag, part)
	}
}

// OnFragBuffered samples the bandwidth estimator exactly once per
// successfully buffered main fragment and forwards the event to the rule.
func (o *Orchestrator) OnFragBuffered(frag *types.Fragment, part *types.Part) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed || frag == nil {
		return
	}
	stats := fragStats(frag, part)
	if stats == nil || stats.Aborted || frag.InitSegment || frag.Type != types.FragMain {
		return
	}

	durationMs, bytes := o.deriveSample(stats)
	o.bwe.Sample(durationMs, bytes)
	stats.BWEstimate = o.bwe.Estimate()
	if durationMs > 0 {
		o.lastFragThroughputKbps = 8 * float64(bytes) / durationMs
	}

	if frag.BitrateTest {
		o.bitrateTestDelayS = durationMs / 1000
	} else {
		o.bitrateTestDelayS = 0
	}

	if o.activeRule != nil {
		o.activeRule.Update(rule.EventFragBuffered, o.buildContext())
	}
}

// deriveSample prefers box-level throughput when enabled and enough chunk
// records exist. Caller holds the lock.
func (o *Orchestrator) deriveSample(stats *types.LoaderStats) (float64, int64) {
	if o.cfg.BoxThroughput {
		if durationMs, bytes, ok := ewma.BoxSample(stats); ok {
			return durationMs, bytes
		}
	}

	return ewma.ProcessingSample(stats)
}

// OnFragParsed forwards parse completion to the rule.
func (o *Orchestrator) OnFragParsed(frag *types.Fragment) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed || o.activeRule == nil {
		return
	}
	ctx := o.buildContext()
	ctx.Frag = frag
	o.activeRule.Update(rule.EventFragParsed, ctx)
}

// OnError clears the watchdog on load failures and resets the rule on
// stalls. Retry policy itself lives outside the core.
func (o *Orchestrator) OnError(details ErrorDetails) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	switch details {
	case ErrFragLoadError, ErrFragLoadTimeout:
		o.disarmWatchdog()
	case ErrBufferStalled:
		if o.activeRule != nil {
			o.activeRule.Update(rule.EventStall, o.buildContext())
		}
	}
}

// Close cancels the watchdog and tears down the active rule. Subsequent
// events are ignored. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.disarmWatchdog()
	if o.activeRule != nil {
		err := o.activeRule.Close()
		o.activeRule = nil

		return err
	}

	return nil
}

func fragStats(frag *types.Fragment, part *types.Part) *types.LoaderStats {
	if part != nil && part.Stats != nil {
		return part.Stats
	}

	return frag.Stats
}
