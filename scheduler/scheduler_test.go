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

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// simClock wakes every sleeper exactly lateness after its deadline
type simClock struct {
	t        time.Time
	lateness time.Duration
	sleeps   int
}

func newSimClock() *simClock {
	return &simClock{t: time.Unix(1700000000, 0)}
}

func (c *simClock) now() time.Time {
	return c.t
}

func (c *simClock) sleepUntil(deadline time.Time) {
	c.sleeps++
	if deadline.After(c.t) {
		c.t = deadline.Add(c.lateness)
	}
}

func (c *simClock) work(d time.Duration) {
	c.t = c.t.Add(d)
}

func newSimScheduler(opts ...Option) (*Scheduler, *simClock) {
	c := newSimClock()
	opts = append([]Option{WithClock(c.now, c.sleepUntil)}, opts...)
	return New(time.Millisecond, opts...), c
}

func TestSchedulerCreation(t *testing.T) {
	s := NewOneKHz()
	require.Equal(t, time.Millisecond, s.Period())
	require.Equal(t, uint64(0), s.TickCount())
	require.False(t, s.RTSetupApplied())
	require.False(t, s.AdaptiveScheduling().Enabled)
	require.Equal(t, time.Duration(1), New(0).Period())
	require.Equal(t, DefaultJitterSamples, s.Metrics().Capacity())
}

func TestSchedulerSteadyTicks(t *testing.T) {
	s, c := newSimScheduler()
	start := c.now()
	for i := 1; i <= 100; i++ {
		n, err := s.WaitForTick()
		require.NoError(t, err)
		require.Equal(t, uint64(i), n)
		c.work(200 * time.Microsecond)
	}
	// last wake was at tick 100, work added after it
	require.Equal(t, start.Add(100*time.Millisecond+200*time.Microsecond), c.now())
	m := s.Metrics()
	require.Equal(t, uint64(100), m.TotalTicks)
	require.Equal(t, uint64(0), m.MissedTicks)
	require.Equal(t, time.Duration(0), m.MaxJitter)
	require.True(t, m.MeetsRequirements())
	require.True(t, s.PLLStable())
	require.Equal(t, 0.0, s.PhaseError())
}

func TestSchedulerLateWakeups(t *testing.T) {
	s, c := newSimScheduler()
	c.lateness = 30 * time.Microsecond
	for i := 0; i < 50; i++ {
		_, err := s.WaitForTick()
		require.NoError(t, err)
	}
	m := s.Metrics()
	require.Equal(t, 30*time.Microsecond, m.P50())
	require.Equal(t, 30*time.Microsecond, m.MaxJitter)
	require.Equal(t, uint64(0), m.MissedTicks)
}

func TestSchedulerMissedDeadline(t *testing.T) {
	s, c := newSimScheduler()
	_, err := s.WaitForTick()
	require.NoError(t, err)
	sleeps := c.sleeps

	// work overruns the whole next period
	c.work(3 * time.Millisecond)
	_, err = s.WaitForTick()
	require.NoError(t, err)
	require.Equal(t, sleeps, c.sleeps, "must not sleep after a missed deadline")
	require.Equal(t, uint64(1), s.Metrics().MissedTicks)
	require.Equal(t, 2*time.Millisecond, s.Metrics().LastJitter)
	require.Equal(t, uint64(1), s.Resyncs())

	// schedule was moved forward, next tick is on time again
	_, err = s.WaitForTick()
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.Metrics().MissedTicks)
}

func TestSchedulerTimingViolation(t *testing.T) {
	s, c := newSimScheduler(WithMaxJitter(time.Millisecond))
	_, err := s.WaitForTick()
	require.NoError(t, err)
	c.work(5 * time.Millisecond)
	n, err := s.WaitForTick()
	require.ErrorIs(t, err, ErrTimingViolation)
	require.Equal(t, uint64(2), n)
}

func TestSchedulerAdaptiveRelaxes(t *testing.T) {
	s, c := newSimScheduler()
	s.SetAdaptiveScheduling(EnabledAdaptiveConfig())
	c.lateness = 300 * time.Microsecond
	for i := 0; i < 10; i++ {
		_, err := s.WaitForTick()
		require.NoError(t, err)
	}
	st := s.AdaptiveScheduling()
	require.True(t, st.Enabled)
	require.Equal(t, 1050*time.Microsecond, st.TargetPeriod)
}

func TestSchedulerAdaptiveTightens(t *testing.T) {
	s, c := newSimScheduler()
	s.SetAdaptiveScheduling(EnabledAdaptiveConfig())
	for i := 0; i < 100; i++ {
		_, err := s.WaitForTick()
		require.NoError(t, err)
		c.work(40 * time.Microsecond)
		s.RecordProcessingTime(40 * time.Microsecond)
	}
	st := s.AdaptiveScheduling()
	require.Equal(t, 900*time.Microsecond, st.TargetPeriod)
	require.True(t, st.IsAtMin())
	require.Equal(t, 40*time.Microsecond, st.LastProcessingTime)
}

func TestSchedulerRecordProcessingTime(t *testing.T) {
	s := NewOneKHz()
	s.RecordProcessingTime(100 * time.Microsecond)
	st := s.AdaptiveScheduling()
	require.Equal(t, 100*time.Microsecond, st.LastProcessingTime)
	require.InDelta(t, 100.0, st.ProcessingTimeEMAUs, 1e-9)
}

func TestSchedulerReset(t *testing.T) {
	s, c := newSimScheduler()
	s.SetAdaptiveScheduling(EnabledAdaptiveConfig())
	c.lateness = 300 * time.Microsecond
	for i := 0; i < 5; i++ {
		_, _ = s.WaitForTick()
	}
	s.Reset()
	require.Equal(t, uint64(0), s.TickCount())
	require.Equal(t, uint64(0), s.Metrics().TotalTicks)
	require.Equal(t, time.Millisecond, s.AdaptiveScheduling().TargetPeriod)
	require.Equal(t, 0.0, s.PhaseError())
}

func TestSchedulerRealClock(t *testing.T) {
	s := New(2*time.Millisecond, WithMaxJitter(time.Second))
	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := s.WaitForTick()
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 9*time.Millisecond)
	require.Equal(t, uint64(5), s.TickCount())
}

func TestRTSetupValidate(t *testing.T) {
	require.NoError(t, DefaultRTSetup().Validate())
	bad := DefaultRTSetup()
	bad.Priority = 0
	require.Error(t, bad.Validate())
	bad.HighPriority = false
	require.NoError(t, bad.Validate())
}
