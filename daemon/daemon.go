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
Package daemon wires the real-time torque loop, the device, the test signal
producer and the component supervision together.

Every supervised component has its own liveness watchdog. The supervisor polls
them four times per timeout; when one expires the mailbox is disarmed, the
watchdog enters safe state and the systemd watchdog is no longer petted, so the
service manager restarts the daemon. There is no other way out of safe state.
*/
package daemon

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	sddaemon "github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openracing/rt/engine"
	"github.com/openracing/rt/hid"
	"github.com/openracing/rt/mailbox"
	"github.com/openracing/rt/report"
	"github.com/openracing/rt/rtstream"
	"github.com/openracing/rt/scheduler"
	"github.com/openracing/rt/stats"
	"github.com/openracing/rt/waveform"
	"github.com/openracing/rt/watchdog"
)

// Supervised components
const (
	ComponentRT       = "rt"
	ComponentDevice   = "hid"
	ComponentProducer = "producer"
)

// sd_notify states
const (
	sdReady    = "READY=1"
	sdWatchdog = "WATCHDOG=1"
	sdStopping = "STOPPING=1"
)

// Option configures a Daemon
type Option func(*Daemon)

// WithClock replaces the time source of the watchdogs
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		d.now = now
	}
}

// WithSystemd replaces sd_notify and the systemd watchdog interval lookup
func WithSystemd(notify func(state string) (bool, error), interval func() (time.Duration, error)) Option {
	return func(d *Daemon) {
		d.notify = notify
		d.watchdogInterval = interval
	}
}

// Daemon is the wheel daemon
type Daemon struct {
	cfg   *Config
	stats stats.Server
	now   func() time.Time

	device   hid.Device
	mailbox  *mailbox.TorqueMailbox
	stream   *rtstream.Stream
	sched    *scheduler.Scheduler
	loop     *engine.Loop
	producer *waveform.Generator

	// watchdogs is built once in New and only read afterwards
	watchdogs map[string]*watchdog.SoftwareWatchdog
	safeState atomic.Bool

	notify           func(state string) (bool, error)
	watchdogInterval func() (time.Duration, error)
}

// New opens the configured device and builds a Daemon on it
func New(cfg *Config, st stats.Server, opts ...Option) (*Daemon, error) {
	dev, err := hid.Open(cfg.Device.Kind, cfg.Device.Path, cfg.Device.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("opening %s device %q: %w", cfg.Device.Kind, cfg.Device.Path, err)
	}
	d, err := NewWithDevice(cfg, st, dev, opts...)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return d, nil
}

// NewWithDevice builds a Daemon writing to dev. The daemon closes dev when Run returns.
func NewWithDevice(cfg *Config, st stats.Server, dev hid.Device, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		stats:   st,
		now:     time.Now,
		device:  dev,
		mailbox: mailbox.New(),
		notify: func(state string) (bool, error) {
			return sddaemon.SdNotify(false, state)
		},
		watchdogInterval: func() (time.Duration, error) {
			return sddaemon.SdWatchdogEnabled(false)
		},
	}
	for _, o := range opts {
		o(d)
	}

	d.watchdogs = map[string]*watchdog.SoftwareWatchdog{}
	for name, timeout := range cfg.Watchdog.timeouts() {
		if name == ComponentProducer && !cfg.Producer.Enabled {
			continue
		}
		wcfg := watchdog.Config{Timeout: timeout}
		if err := wcfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s watchdog: %w", name, err)
		}
		d.watchdogs[name] = watchdog.New(wcfg, watchdog.WithClock(d.now))
	}

	d.stream = rtstream.New(d.mailbox, dev, report.NewOWP1Encoder(cfg.Device.MaxTorqueNm), cfg.Stream)

	sopts := []scheduler.Option{
		scheduler.WithMaxJitter(cfg.Scheduler.MaxJitter),
		scheduler.WithJitterSamples(cfg.Scheduler.JitterSamples),
		scheduler.WithSpinThreshold(cfg.Scheduler.SpinThreshold),
	}
	d.sched = scheduler.New(cfg.Scheduler.Period, sopts...)
	d.sched.SetAdaptiveScheduling(cfg.Scheduler.Adaptive)

	d.loop = engine.New(
		engine.Config{
			ApplyRT:        cfg.Scheduler.RealTime,
			RT:             cfg.Scheduler.RT,
			ReportInterval: cfg.ReportInterval,
		},
		d.sched, d.stream, d.mailbox, st,
		engine.WithRTHeartbeat(d.watchdogs[ComponentRT]),
		engine.WithDeviceHeartbeat(d.watchdogs[ComponentDevice]),
		engine.WithWatchdogStatus(d.WatchdogStatus),
		engine.WithSafeState(d.InSafeState),
	)

	if cfg.Producer.Enabled {
		p, err := waveform.New(cfg.Producer.Expression,
			waveform.WithFlags(cfg.Producer.Flags),
			waveform.WithHeartbeat(d.watchdogs[ComponentProducer]),
		)
		if err != nil {
			return nil, err
		}
		d.producer = p
	}
	return d, nil
}

// Mailbox is the command channel external producers write to.
// Once in safe state the loop disarms it before every tick.
func (d *Daemon) Mailbox() *mailbox.TorqueMailbox {
	return d.mailbox
}

// Producer returns the built-in producer, nil when disabled
func (d *Daemon) Producer() *waveform.Generator {
	return d.producer
}

// Watchdog returns the watchdog of a supervised component
func (d *Daemon) Watchdog(component string) (*watchdog.SoftwareWatchdog, bool) {
	w, ok := d.watchdogs[component]
	return w, ok
}

// InSafeState reports whether any component forced the safe state
func (d *Daemon) InSafeState() bool {
	return d.safeState.Load()
}

// WatchdogStatus returns the state of every supervised component
func (d *Daemon) WatchdogStatus() map[string]string {
	res := make(map[string]string, len(d.watchdogs))
	for name, w := range d.watchdogs {
		res[name] = w.Status().String()
	}
	return res
}

func (d *Daemon) components() []string {
	names := make([]string, 0, len(d.watchdogs))
	for name := range d.watchdogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts all components and blocks until ctx is cancelled or one of them fails
func (d *Daemon) Run(ctx context.Context) error {
	defer d.device.Close()
	for _, name := range d.components() {
		if err := d.watchdogs[name].Arm(); err != nil {
			return fmt.Errorf("arming %s watchdog: %w", name, err)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return d.loop.Run(ctx)
	})
	if d.producer != nil {
		eg.Go(func() error {
			return d.producer.Run(ctx, d.mailbox, d.cfg.Producer.Interval)
		})
	}
	eg.Go(func() error {
		d.supervise(ctx)
		return nil
	})
	eg.Go(func() error {
		d.petSystemd(ctx)
		return nil
	})
	return eg.Wait()
}

// pollInterval is a quarter of the shortest watchdog timeout
func (d *Daemon) pollInterval() time.Duration {
	interval := watchdog.MaxTimeout
	for _, w := range d.watchdogs {
		interval = min(interval, w.Timeout())
	}
	return max(interval/4, time.Millisecond)
}

func (d *Daemon) supervise(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval())
	defer ticker.Stop()
	lastReport := d.now()
	for {
		select {
		case <-ctx.Done():
			d.reportWatchdogs()
			return
		case <-ticker.C:
			d.checkWatchdogs()
			if now := d.now(); now.Sub(lastReport) >= d.cfg.ReportInterval {
				d.reportWatchdogs()
				lastReport = now
			}
		}
	}
}

// checkWatchdogs polls every watchdog once and forces safe state on the first timeout
func (d *Daemon) checkWatchdogs() {
	for _, name := range d.components() {
		w := d.watchdogs[name]
		if !w.HasTimedOut() {
			continue
		}
		d.mailbox.Disarm()
		if err := w.TriggerSafeState(); err != nil {
			continue
		}
		d.safeState.Store(true)
		if d.stats != nil {
			d.stats.UpdateCounterBy(stats.WatchdogPrefix+name+".safe_state", 1)
		}
		since, _ := w.TimeSinceLastFeed()
		log.Errorf("%s watchdog expired, last heartbeat %v ago (timeout %v): torque disarmed, safe state entered", name, since, w.Timeout())
	}
}

func (d *Daemon) reportWatchdogs() {
	if d.stats == nil {
		return
	}
	c := stats.Counters{}
	for _, name := range d.components() {
		m := d.watchdogs[name].Metrics()
		prefix := stats.WatchdogPrefix + name + "."
		c[prefix+"feeds"] = int64(m.FeedCount)
		c[prefix+"timeouts"] = int64(m.TimeoutCount)
		c[prefix+"consecutive_failures"] = int64(m.ConsecutiveFailures)
		c[prefix+"max_feed_interval_ns"] = int64(m.MaxFeedInterval)
		c[prefix+"status"] = int64(d.watchdogs[name].Status())
	}
	if d.producer != nil {
		c[stats.ProducerPrefix+"published"] = int64(d.producer.Published())
	}
	d.stats.SetCounters(c)
}

// petSystemd reports readiness and pets the systemd watchdog while no component is in safe state
func (d *Daemon) petSystemd(ctx context.Context) {
	if _, err := d.notify(sdReady); err != nil {
		log.Warningf("sd_notify ready: %v", err)
	}
	defer func() {
		if _, err := d.notify(sdStopping); err != nil {
			log.Warningf("sd_notify stopping: %v", err)
		}
	}()

	interval, err := d.watchdogInterval()
	if err != nil {
		log.Warningf("systemd watchdog: %v", err)
	}
	if err != nil || interval <= 0 {
		<-ctx.Done()
		return
	}
	log.Infof("petting systemd watchdog every %v", interval/2)
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.InSafeState() {
				continue
			}
			if _, err := d.notify(sdWatchdog); err != nil {
				log.Warningf("sd_notify watchdog: %v", err)
			}
		}
	}
}
