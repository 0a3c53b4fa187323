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

package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openracing/rt/hid"
	"github.com/openracing/rt/report"
	"github.com/openracing/rt/rtstream"
	"github.com/openracing/rt/stats"
	"github.com/openracing/rt/watchdog"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeSystemd records sd_notify states
type fakeSystemd struct {
	mu       sync.Mutex
	states   []string
	interval time.Duration
}

func (s *fakeSystemd) notify(state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
	return true, nil
}

func (s *fakeSystemd) watchdogInterval() (time.Duration, error) {
	return s.interval, nil
}

func (s *fakeSystemd) count(state string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if st == state {
			n++
		}
	}
	return n
}

func (s *fakeSystemd) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.states...)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Device.Kind = hid.KindNull
	cfg.Device.Path = ""
	cfg.Scheduler.RealTime = false
	cfg.Stream.WatchdogMaxStaleTicks = 1000
	cfg.Watchdog = WatchdogConfig{
		RT:       time.Second,
		Device:   time.Second,
		Producer: time.Second,
	}
	cfg.Producer.Enabled = true
	cfg.ReportInterval = 10 * time.Millisecond
	return cfg
}

func TestNewOpensDevice(t *testing.T) {
	cfg := testConfig()
	d, err := New(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, d.Producer())
	require.Equal(t, []string{ComponentDevice, ComponentProducer, ComponentRT}, d.components())

	cfg.Device.Kind = hid.KindHIDRaw
	cfg.Device.Path = "/dev/this-hidraw-does-not-exist"
	_, err = New(cfg, nil)
	require.Error(t, err)
}

func TestNewWithoutProducer(t *testing.T) {
	cfg := testConfig()
	cfg.Producer.Enabled = false
	d, err := NewWithDevice(cfg, nil, &hid.NullWriter{})
	require.NoError(t, err)
	require.Nil(t, d.Producer())
	_, ok := d.Watchdog(ComponentProducer)
	require.False(t, ok)
	require.Equal(t, map[string]string{ComponentRT: "Disarmed", ComponentDevice: "Disarmed"}, d.WatchdogStatus())
}

func TestNewWithDeviceRejectsBadWatchdog(t *testing.T) {
	cfg := testConfig()
	cfg.Watchdog.RT = time.Millisecond
	_, err := NewWithDevice(cfg, nil, &hid.NullWriter{})
	require.ErrorIs(t, err, watchdog.ErrInvalidTimeout)
}

func TestPollInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Watchdog.Producer = 40 * time.Millisecond
	d, err := NewWithDevice(cfg, nil, &hid.NullWriter{})
	require.NoError(t, err)
	require.Equal(t, 10*time.Millisecond, d.pollInterval())
}

func TestCheckWatchdogsEntersSafeState(t *testing.T) {
	c := newFakeClock()
	cfg := testConfig()
	cfg.Watchdog = WatchdogConfig{
		RT:       100 * time.Millisecond,
		Device:   250 * time.Millisecond,
		Producer: 50 * time.Millisecond,
	}
	st := stats.NewStats()
	d, err := NewWithDevice(cfg, st, &hid.NullWriter{}, WithClock(c.now))
	require.NoError(t, err)
	for _, name := range d.components() {
		w, _ := d.Watchdog(name)
		require.NoError(t, w.Arm())
	}
	d.Mailbox().Arm()

	c.advance(40 * time.Millisecond)
	d.checkWatchdogs()
	require.False(t, d.InSafeState())
	require.True(t, d.Mailbox().Armed())

	c.advance(20 * time.Millisecond)
	d.checkWatchdogs()
	require.True(t, d.InSafeState())
	require.False(t, d.Mailbox().Armed())
	require.Equal(t, map[string]string{
		ComponentRT:       "Armed",
		ComponentDevice:   "Armed",
		ComponentProducer: "SafeState",
	}, d.WatchdogStatus())

	// safe state is counted once
	d.checkWatchdogs()
	counters := st.GetCounters()
	require.Equal(t, int64(1), counters[stats.WatchdogPrefix+"producer.safe_state"])

	d.reportWatchdogs()
	counters = st.GetCounters()
	require.Equal(t, int64(watchdog.SafeState), counters[stats.WatchdogPrefix+"producer.status"])
	require.Equal(t, int64(1), counters[stats.WatchdogPrefix+"producer.timeouts"])
	require.Equal(t, int64(watchdog.Armed), counters[stats.WatchdogPrefix+"rt.status"])
	require.Equal(t, int64(0), counters[stats.ProducerPrefix+"published"])
}

// frameDevice keeps every report written to it
type frameDevice struct {
	frames [][]byte
}

func (d *frameDevice) Write(b []byte) error {
	d.frames = append(d.frames, append([]byte(nil), b...))
	return nil
}

func (d *frameDevice) Close() error {
	return nil
}

func (d *frameDevice) lastTorque(t *testing.T) report.Torque {
	require.NotEmpty(t, d.frames)
	r, err := report.Decode(d.frames[len(d.frames)-1])
	require.NoError(t, err)
	return r.Torque
}

func TestSafeStateKeepsTorqueOff(t *testing.T) {
	c := newFakeClock()
	dev := &frameDevice{}
	d, err := NewWithDevice(testConfig(), nil, dev, WithClock(c.now))
	require.NoError(t, err)
	for _, name := range d.components() {
		w, _ := d.Watchdog(name)
		require.NoError(t, w.Arm())
	}

	d.Mailbox().Publish(report.TorqueFromNm(10), 0)
	d.Mailbox().Arm()
	d.loop.step()
	require.Equal(t, report.TorqueFromNm(10), dev.lastTorque(t))

	c.advance(2 * time.Second)
	d.checkWatchdogs()
	require.True(t, d.InSafeState())

	// a producer arming the mailbox again gets no torque out
	for range 3 {
		d.Mailbox().Publish(report.TorqueFromNm(10), 0)
		d.Mailbox().Arm()
		d.loop.step()
		require.Equal(t, report.Torque(0), dev.lastTorque(t))
		require.False(t, d.Mailbox().Armed())
	}
	require.True(t, d.InSafeState())
}

func TestPetSystemd(t *testing.T) {
	sd := &fakeSystemd{interval: 20 * time.Millisecond}
	d, err := NewWithDevice(testConfig(), nil, &hid.NullWriter{}, WithSystemd(sd.notify, sd.watchdogInterval))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.petSystemd(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return sd.count(sdWatchdog) >= 2
	}, 5*time.Second, time.Millisecond)

	d.safeState.Store(true)
	// one ping may already be on its way
	time.Sleep(15 * time.Millisecond)
	pinged := sd.count(sdWatchdog)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, pinged, sd.count(sdWatchdog))

	cancel()
	<-done
	states := sd.all()
	require.Equal(t, sdReady, states[0])
	require.Equal(t, sdStopping, states[len(states)-1])
}

func TestPetSystemdWithoutWatchdog(t *testing.T) {
	sd := &fakeSystemd{}
	d, err := NewWithDevice(testConfig(), nil, &hid.NullWriter{}, WithSystemd(sd.notify, sd.watchdogInterval))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.petSystemd(ctx)
	require.Equal(t, []string{sdReady, sdStopping}, sd.all())
}

func TestRun(t *testing.T) {
	sd := &fakeSystemd{}
	st := stats.NewStats()
	dev := &hid.NullWriter{}
	d, err := NewWithDevice(testConfig(), st, dev, WithSystemd(sd.notify, sd.watchdogInterval))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return dev.Frames() > 50 && d.Producer().Published() > 10
	}, 10*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.False(t, d.InSafeState())
	require.False(t, d.Mailbox().Armed())

	counters := st.GetCounters()
	require.Positive(t, counters[stats.RTPrefix+"ticks"])
	require.Positive(t, counters[stats.WatchdogPrefix+"rt.feeds"])
	require.Positive(t, counters[stats.ProducerPrefix+"published"])
	require.Equal(t, []string{sdReady, sdStopping}, sd.all())

	// the device is closed once Run returns
	require.Equal(t, rtstream.ErrDisconnected, dev.Write([]byte{0}))
}
