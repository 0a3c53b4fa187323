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
Package scheduler implements the absolute-deadline ticker of the real-time loop.

Deadlines advance by a period corrected by a PLL, so sleeping late on one tick does
not shift the following ones. Every tick records its wake-up jitter, and the
optional adaptive policy stretches the period under load.
*/
package scheduler

import (
	"errors"
	"time"
)

// PeriodOneKHz is the period of a 1kHz loop
const PeriodOneKHz = time.Millisecond

// DefaultMaxJitter is the wake-up lateness WaitForTick reports as a timing violation
const DefaultMaxJitter = 10 * time.Millisecond

// DefaultSpinThreshold is how long before a deadline the sleeper switches to busy waiting
const DefaultSpinThreshold = 50 * time.Microsecond

// ErrTimingViolation is returned when a tick woke up later than the max jitter
var ErrTimingViolation = errors.New("timing violation: jitter exceeds limit")

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the time source and the sleeper
func WithClock(now func() time.Time, sleepUntil func(time.Time)) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleepUntil = sleepUntil
	}
}

// WithMaxJitter sets the timing violation threshold
func WithMaxJitter(d time.Duration) Option {
	return func(s *Scheduler) {
		s.maxJitter = d
	}
}

// WithJitterSamples sets the jitter ring size
func WithJitterSamples(n int) Option {
	return func(s *Scheduler) {
		s.metrics = NewJitterMetrics(n)
	}
}

// WithSpinThreshold sets the busy wait window of the default sleeper
func WithSpinThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		s.spin = d
	}
}

// Scheduler is an absolute-deadline ticker. It is owned by a single goroutine.
type Scheduler struct {
	period    time.Duration
	nextTick  time.Time
	lastWake  time.Time
	tickCount uint64
	resyncs   uint64

	pll      *PLL
	metrics  *JitterMetrics
	adaptive adaptive

	maxJitter      time.Duration
	spin           time.Duration
	rtSetupApplied bool

	now        func() time.Time
	sleepUntil func(time.Time)
}

// New creates a scheduler with the given period
func New(period time.Duration, opts ...Option) *Scheduler {
	period = max(period, 1)
	s := &Scheduler{
		period:    period,
		pll:       NewPLL(period),
		metrics:   NewJitterMetrics(DefaultJitterSamples),
		adaptive:  newAdaptive(period),
		maxJitter: DefaultMaxJitter,
		spin:      DefaultSpinThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.sleepUntil == nil {
		s.sleepUntil = func(deadline time.Time) {
			preciseSleepUntil(deadline, s.spin)
		}
	}
	return s
}

// NewOneKHz creates a 1ms scheduler
func NewOneKHz(opts ...Option) *Scheduler {
	return New(PeriodOneKHz, opts...)
}

// ApplyRTSetup configures the calling OS thread for real-time work. Applied once.
// The caller must have locked the goroutine to its thread.
func (s *Scheduler) ApplyRTSetup(setup RTSetup) error {
	if s.rtSetupApplied {
		return nil
	}
	if err := applyRTSetup(setup); err != nil {
		return err
	}
	s.rtSetupApplied = true
	return nil
}

// RTSetupApplied reports whether ApplyRTSetup succeeded
func (s *Scheduler) RTSetupApplied() bool {
	return s.rtSetupApplied
}

// WaitForTick blocks until the next deadline and returns the tick count.
// It returns ErrTimingViolation, together with the tick count, when the wake-up
// was later than the max jitter; the schedule is still advanced.
func (s *Scheduler) WaitForTick() (uint64, error) {
	arrived := s.now()
	if s.nextTick.IsZero() {
		s.nextTick = arrived.Add(s.pll.EstimatedPeriod())
	}

	missed := !arrived.Before(s.nextTick)
	if !missed {
		s.sleepUntil(s.nextTick)
	}
	woke := s.now()
	jitter := woke.Sub(s.nextTick)
	if jitter < 0 {
		jitter = -jitter
	}
	s.metrics.RecordTick(jitter, missed)

	s.pll.SetTargetPeriod(s.adaptive.update(jitter, missed))
	corrected := s.pll.EstimatedPeriod()
	if !s.lastWake.IsZero() {
		corrected = s.pll.Update(woke.Sub(s.lastWake))
	}
	s.lastWake = woke

	s.tickCount++
	s.nextTick = s.nextTick.Add(corrected)
	if !s.nextTick.After(woke) {
		// overran by a whole period, skip the lost ticks instead of bursting
		s.nextTick = woke.Add(corrected)
		s.resyncs++
	}

	if jitter > s.maxJitter {
		return s.tickCount, ErrTimingViolation
	}
	return s.tickCount, nil
}

// SetAdaptiveScheduling installs a normalized copy of cfg and restarts the adaptive period
func (s *Scheduler) SetAdaptiveScheduling(cfg AdaptiveConfig) {
	s.adaptive.configure(cfg)
	s.pll.SetTargetPeriod(s.adaptive.target())
}

// AdaptiveScheduling returns the adaptive controller state
func (s *Scheduler) AdaptiveScheduling() AdaptiveState {
	return s.adaptive.state()
}

// RecordProcessingTime reports how long the work of the last tick took
func (s *Scheduler) RecordProcessingTime(d time.Duration) {
	s.adaptive.recordProcessingTime(d)
}

// TickCount is the number of completed ticks
func (s *Scheduler) TickCount() uint64 {
	return s.tickCount
}

// Resyncs is the number of times the schedule was moved forward after an overrun
func (s *Scheduler) Resyncs() uint64 {
	return s.resyncs
}

// Metrics returns the jitter tracker. Only the owning goroutine may use it.
func (s *Scheduler) Metrics() *JitterMetrics {
	return s.metrics
}

// PhaseError returns the PLL accumulated phase error in nanoseconds
func (s *Scheduler) PhaseError() float64 {
	return s.pll.PhaseError()
}

// PLLStable reports whether the PLL estimate is within 5% of its target
func (s *Scheduler) PLLStable() bool {
	return s.pll.IsStable()
}

// Period is the base period
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Reset restarts the schedule from the next WaitForTick and clears all statistics
func (s *Scheduler) Reset() {
	s.nextTick = time.Time{}
	s.lastWake = time.Time{}
	s.tickCount = 0
	s.resyncs = 0
	s.pll.Reset()
	s.pll.SetTargetPeriod(s.period)
	s.metrics.Reset()
	s.adaptive.reset()
}
