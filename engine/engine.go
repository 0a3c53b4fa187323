/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package engine drives the real-time torque loop.

A Loop owns the scheduler and the output stream and runs them on one locked OS
thread: wait for the deadline, emit one report, feed the liveness heartbeats and
account the time the tick took.

Loop statistics are copied into one of two preallocated samples every report
interval and handed to a publisher goroutine, which computes percentiles and
writes the stats server. The loop thread never takes the stats server lock.
When the publisher still holds both samples the report is skipped.
*/
package engine

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"

	"github.com/openracing/rt/mailbox"
	"github.com/openracing/rt/rtstream"
	"github.com/openracing/rt/scheduler"
	"github.com/openracing/rt/stats"
)

// DefaultReportInterval is how often loop statistics are published
const DefaultReportInterval = time.Second

// processing times above this are recorded as this
const maxProcessingTime = 50 * time.Millisecond

// Heartbeat is fed by the loop to prove a component is alive
type Heartbeat interface {
	Feed() error
}

// Config of the loop
type Config struct {
	// ApplyRT configures the loop thread with RT before the first tick
	ApplyRT bool
	RT      scheduler.RTSetup
	// ReportInterval between two published snapshots
	ReportInterval time.Duration
}

// DefaultConfig returns a Config with RT setup enabled
func DefaultConfig() Config {
	return Config{
		ApplyRT:        true,
		RT:             scheduler.DefaultRTSetup(),
		ReportInterval: DefaultReportInterval,
	}
}

// Option configures a Loop
type Option func(*Loop)

// WithRTHeartbeat sets the heartbeat fed on every tick
func WithRTHeartbeat(h Heartbeat) Option {
	return func(l *Loop) {
		l.rtBeat = h
	}
}

// WithDeviceHeartbeat sets the heartbeat fed on every tick the device accepted a report
func WithDeviceHeartbeat(h Heartbeat) Option {
	return func(l *Loop) {
		l.deviceBeat = h
	}
}

// WithWatchdogStatus sets the source of the per component watchdog status in snapshots
func WithWatchdogStatus(f func() map[string]string) Option {
	return func(l *Loop) {
		l.watchdogs = f
	}
}

// WithSafeState latches the output to zero: while f returns true every tick
// emits a zero report and disarms the mailbox, whoever armed it
func WithSafeState(f func() bool) Option {
	return func(l *Loop) {
		l.safeState = f
	}
}

// WithClock replaces the time source used to measure processing time
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// Loop is the real-time control loop
type Loop struct {
	cfg     Config
	sched   *scheduler.Scheduler
	stream  *rtstream.Stream
	mailbox *mailbox.TorqueMailbox
	stats   stats.Server

	rtBeat     Heartbeat
	deviceBeat Heartbeat
	watchdogs  func() map[string]string
	safeState  func() bool
	now        func() time.Time

	procStats        *welford.Stats
	procHist         *hdrhistogram.Histogram
	lastReport       time.Time
	timingViolations uint64
	faults           uint64
	skippedReports   uint64

	// free holds the samples the loop may fill, pending the ones the publisher owns
	free    chan *sample
	pending chan *sample
}

// sample is a copy of the loop state taken on the loop thread
type sample struct {
	now              time.Time
	ticks            uint64
	resyncs          uint64
	jitter           *scheduler.JitterMetrics
	adaptive         scheduler.AdaptiveState
	phaseError       float64
	pllStable        bool
	rtApplied        bool
	counters         rtstream.Counters
	faults           uint64
	timingViolations uint64
	skippedReports   uint64
	armed            bool
	safeState        bool
	proc             welford.Stats
	procCount        int64
	procP50          int64
	procP99          int64
	procMax          int64
}

func newSample(capacity int) *sample {
	return &sample{jitter: scheduler.NewJitterMetrics(capacity)}
}

// New creates a Loop
func New(cfg Config, sched *scheduler.Scheduler, stream *rtstream.Stream, mb *mailbox.TorqueMailbox, st stats.Server, opts ...Option) *Loop {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	l := &Loop{
		cfg:       cfg,
		sched:     sched,
		stream:    stream,
		mailbox:   mb,
		stats:     st,
		now:       time.Now,
		procStats: welford.New(),
		procHist:  hdrhistogram.New(1, int64(maxProcessingTime), 3),
		free:      make(chan *sample, 2),
	}
	for _, o := range opts {
		o(l)
	}
	capacity := sched.Metrics().Capacity()
	l.free <- newSample(capacity)
	l.free <- newSample(capacity)
	return l
}

// Run ticks until ctx is cancelled, then drives the output to zero
func (l *Loop) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if l.cfg.ApplyRT {
		if err := l.sched.ApplyRTSetup(l.cfg.RT); err != nil {
			log.Warningf("running without real-time setup: %v", err)
		} else {
			log.Infof("real-time setup applied: %+v", l.cfg.RT)
		}
	}
	log.Infof("starting torque loop with period %v", l.sched.Period())

	l.pending = make(chan *sample, cap(l.free))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.publishPending()
	}()

	l.lastReport = l.now()
	for {
		select {
		case <-ctx.Done():
			close(l.pending)
			wg.Wait()
			l.pending = nil
			l.shutdown()
			return nil
		default:
		}
		l.step()
	}
}

// step runs one tick of the loop
func (l *Loop) step() {
	if _, err := l.sched.WaitForTick(); err != nil {
		l.timingViolations++
	}

	start := l.now()
	tick := l.stream.Tick
	if l.safeState != nil && l.safeState() {
		l.mailbox.Disarm()
		tick = l.stream.TickZero
	}
	if err := tick(); err != nil {
		l.faults++
		log.Warningf("torque output zeroed and disarmed: %v", err)
	}
	if l.rtBeat != nil {
		_ = l.rtBeat.Feed()
	}
	if l.deviceBeat != nil && l.stream.LastWriteOK() {
		_ = l.deviceBeat.Feed()
	}
	end := l.now()

	took := end.Sub(start)
	l.sched.RecordProcessingTime(took)
	l.procStats.Add(float64(took))
	_ = l.procHist.RecordValue(int64(min(max(took, 0), maxProcessingTime)))

	if end.Sub(l.lastReport) >= l.cfg.ReportInterval {
		l.report(end)
	}
}

func (l *Loop) shutdown() {
	l.mailbox.Disarm()
	if err := l.stream.Tick(); err != nil {
		log.Errorf("final zero report: %v", err)
	}
	l.report(l.now())
	log.Infof("torque loop stopped after %d ticks", l.sched.TickCount())
}

// finite maps NaN and infinities, which JSON cannot carry, to 0
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// collect copies the loop state into s. It does not allocate.
func (l *Loop) collect(s *sample, now time.Time) {
	s.now = now
	s.ticks = l.sched.TickCount()
	s.resyncs = l.sched.Resyncs()
	l.sched.Metrics().CopyTo(s.jitter)
	s.adaptive = l.sched.AdaptiveScheduling()
	s.phaseError = l.sched.PhaseError()
	s.pllStable = l.sched.PLLStable()
	s.rtApplied = l.sched.RTSetupApplied()
	s.counters = l.stream.Counters()
	s.faults = l.faults
	s.timingViolations = l.timingViolations
	s.skippedReports = l.skippedReports
	s.armed = l.mailbox.Armed()
	s.safeState = l.safeState != nil && l.safeState()
	s.proc = *l.procStats
	s.procCount = l.procHist.TotalCount()
	s.procP50 = l.procHist.ValueAtQuantile(50)
	s.procP99 = l.procHist.ValueAtQuantile(99)
	s.procMax = l.procHist.Max()
}

// Snapshot builds the current loop report. It must run on the loop goroutine.
func (l *Loop) Snapshot(now time.Time) *stats.Snapshot {
	s := newSample(l.sched.Metrics().Capacity())
	l.collect(s, now)
	return l.snapshot(s)
}

func (l *Loop) snapshot(s *sample) *stats.Snapshot {
	m := s.jitter
	snap := &stats.Snapshot{
		Timestamp:         s.now,
		Ticks:             s.ticks,
		JitterP50Ns:       int64(m.P50()),
		JitterP95Ns:       int64(m.P95()),
		JitterP99Ns:       int64(m.P99()),
		JitterMaxNs:       int64(m.MaxJitter),
		JitterRMSNs:       int64(m.StdDev()),
		MissedTickRate:    finite(m.MissedTickRate()),
		MeetsRequirements: m.MeetsRequirements(),
		RTSetupApplied:    s.rtApplied,
		SafeState:         s.safeState,
		AdaptiveEnabled:   s.adaptive.Enabled,
		TargetPeriodNs:    int64(s.adaptive.TargetPeriod),
		PeriodFraction:    finite(s.adaptive.PeriodFraction()),
		PLLPhaseErrorNs:   finite(s.phaseError),
		PLLStable:         s.pllStable,
		ProcessingEMANs:   int64(s.adaptive.ProcessingTimeEMA),
		ProcessingP50Ns:   s.procP50,
		ProcessingP99Ns:   s.procP99,
		ProcessingMaxNs:   s.procMax,
	}
	if s.procCount > 0 {
		snap.ProcessingMeanNs = finite(s.proc.Mean())
	}
	if s.procCount > 1 {
		snap.ProcessingStdNs = finite(s.proc.Stddev())
	}
	if l.watchdogs != nil {
		snap.Watchdogs = l.watchdogs()
	}
	return snap
}

// report hands a sample to the publisher, or publishes it inline when no publisher runs
func (l *Loop) report(now time.Time) {
	l.lastReport = now
	if l.stats == nil {
		return
	}
	var s *sample
	select {
	case s = <-l.free:
	default:
		l.skippedReports++
		return
	}
	l.collect(s, now)
	if l.pending == nil {
		l.publish(s)
		l.free <- s
		return
	}
	l.pending <- s
}

func (l *Loop) publishPending() {
	for s := range l.pending {
		l.publish(s)
		l.free <- s
	}
}

func (l *Loop) publish(s *sample) {
	snap := l.snapshot(s)
	l.stats.SetSnapshot(snap)

	c := s.counters
	l.stats.SetCounters(stats.Counters{
		stats.RTPrefix + "ticks":                 int64(c.Ticks),
		stats.RTPrefix + "writes":                int64(c.Writes),
		stats.RTPrefix + "would_block":           int64(c.WouldBlock),
		stats.RTPrefix + "zero_reports":          int64(c.ZeroReports),
		stats.RTPrefix + "seq_watchdog_timeouts": int64(c.WatchdogTimeouts),
		stats.RTPrefix + "write_faults":          int64(c.WriteFaults),
		stats.RTPrefix + "faults":                int64(s.faults),
		stats.RTPrefix + "timing_violations":     int64(s.timingViolations),
		stats.RTPrefix + "resyncs":               int64(s.resyncs),
		stats.RTPrefix + "skipped_reports":       int64(s.skippedReports),
		stats.RTPrefix + "jitter.p99_ns":         snap.JitterP99Ns,
		stats.RTPrefix + "jitter.max_ns":         snap.JitterMaxNs,
		stats.RTPrefix + "processing.p99_ns":     snap.ProcessingP99Ns,
		stats.RTPrefix + "target_period_ns":      snap.TargetPeriodNs,
		stats.RTPrefix + "meets_requirements":    boolToInt(snap.MeetsRequirements),
		stats.RTPrefix + "rt_setup_applied":      boolToInt(snap.RTSetupApplied),
		stats.RTPrefix + "pll_stable":            boolToInt(snap.PLLStable),
		stats.RTPrefix + "armed":                 boolToInt(s.armed),
		stats.RTPrefix + "safe_state":            boolToInt(snap.SafeState),
	})

	log.Debugf("ticks=%d jitter p99=%v max=%v processing p99=%v",
		snap.Ticks, time.Duration(snap.JitterP99Ns), time.Duration(snap.JitterMaxNs), time.Duration(snap.ProcessingP99Ns))
}
