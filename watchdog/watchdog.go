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
Package watchdog implements a software liveness watchdog.

A component arms the watchdog and then feeds it at least once per timeout.
Timeouts are detected lazily: HasTimedOut compares the time since the last
feed with the timeout and moves the state to TimedOut as a side effect, so a
supervisor has to poll faster than the timeout. Safe state is never entered
implicitly, the supervisor decides to call TriggerSafeState.

	Disarmed -> Armed -> TimedOut
	    any state    -> SafeState (terminal until Reset)
*/
package watchdog

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Timeout bounds accepted by NewConfig
const (
	MinTimeout     = 10 * time.Millisecond
	MaxTimeout     = 5000 * time.Millisecond
	DefaultTimeout = 100 * time.Millisecond
)

// Config of a watchdog
type Config struct {
	Timeout time.Duration
}

// DefaultConfig returns a Config with the 100ms timeout
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout}
}

// NewConfig builds a Config from a timeout in milliseconds
func NewConfig(timeoutMs uint32) (Config, error) {
	c := Config{Timeout: time.Duration(timeoutMs) * time.Millisecond}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate Config is sane
func (c Config) Validate() error {
	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		return fmt.Errorf("%w: %v is outside [%v, %v]", ErrInvalidTimeout, c.Timeout, MinTimeout, MaxTimeout)
	}
	return nil
}

// Option configures a SoftwareWatchdog
type Option func(*SoftwareWatchdog)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(w *SoftwareWatchdog) {
		w.now = now
	}
}

// SoftwareWatchdog is a single supervised liveness state machine.
// All methods are safe for concurrent use.
type SoftwareWatchdog struct {
	cfg   Config
	now   func() time.Time
	epoch time.Time

	state     state
	startedAt atomic.Int64
	lastFeed  atomic.Int64
	safeState atomic.Bool
	metrics   metrics
}

// New creates a disarmed watchdog
func New(cfg Config, opts ...Option) *SoftwareWatchdog {
	w := &SoftwareWatchdog{
		cfg: cfg,
		now: time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	w.epoch = w.now()
	return w
}

// NewWithTimeout creates a disarmed watchdog with a timeout in milliseconds
func NewWithTimeout(timeoutMs uint32, opts ...Option) (*SoftwareWatchdog, error) {
	cfg, err := NewConfig(timeoutMs)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...), nil
}

// stamp returns nanoseconds since the watchdog epoch. 0 is reserved for "never".
func (w *SoftwareWatchdog) stamp() int64 {
	ts := int64(w.now().Sub(w.epoch))
	if ts <= 0 {
		return 1
	}
	return ts
}

// Arm starts supervision. Only allowed from Disarmed.
func (w *SoftwareWatchdog) Arm() error {
	if err := w.state.arm(); err != nil {
		return err
	}
	ts := w.stamp()
	w.startedAt.Store(ts)
	w.lastFeed.Store(ts)
	w.metrics.recordArm()
	return nil
}

// Disarm stops supervision. Only allowed from Armed.
func (w *SoftwareWatchdog) Disarm() error {
	return w.state.disarm()
}

// Feed records a heartbeat
func (w *SoftwareWatchdog) Feed() error {
	if err := w.state.canFeed(); err != nil {
		w.metrics.recordFailure()
		return err
	}
	ts := w.stamp()
	w.lastFeed.Store(ts)
	// a timeout or disarm may have landed between the check and the store
	if err := w.state.canFeed(); err != nil {
		w.metrics.recordFailure()
		return err
	}
	w.metrics.recordFeed(ts)
	return nil
}

// HasTimedOut reports whether the watchdog is in TimedOut, moving it there
// first when armed and the time since the last feed exceeds the timeout
func (w *SoftwareWatchdog) HasTimedOut() bool {
	switch w.state.load() {
	case TimedOut:
		return true
	case Armed:
	default:
		return false
	}
	last := w.lastFeed.Load()
	if last == 0 {
		return false
	}
	if time.Duration(w.stamp()-last) <= w.cfg.Timeout {
		return false
	}
	// a concurrent caller may win the transition, it counts the timeout then
	if w.state.timeout() == nil {
		w.metrics.recordTimeout()
	}
	return w.state.load() == TimedOut
}

// TriggerTimeout forces Armed -> TimedOut, for fault injection
func (w *SoftwareWatchdog) TriggerTimeout() error {
	if err := w.state.timeout(); err != nil {
		return err
	}
	w.metrics.recordTimeout()
	return nil
}

// TriggerSafeState moves the watchdog to SafeState. Fails if already there.
func (w *SoftwareWatchdog) TriggerSafeState() error {
	if err := w.state.triggerSafeState(); err != nil {
		return err
	}
	w.safeState.Store(true)
	w.metrics.recordSafeState()
	return nil
}

// Reset returns to Disarmed and clears timestamps, the safe state flag and metrics
func (w *SoftwareWatchdog) Reset() {
	w.state.reset()
	w.lastFeed.Store(0)
	w.startedAt.Store(0)
	w.safeState.Store(false)
	w.metrics.reset()
}

// Status returns the current state
func (w *SoftwareWatchdog) Status() Status {
	return w.state.load()
}

// IsArmed is true in Armed only
func (w *SoftwareWatchdog) IsArmed() bool {
	return w.state.load() == Armed
}

// IsSafeStateTriggered reports whether safe state was entered since the last reset
func (w *SoftwareWatchdog) IsSafeStateTriggered() bool {
	return w.safeState.Load()
}

// IsHealthy is true when the watchdog has neither timed out nor entered safe state
func (w *SoftwareWatchdog) IsHealthy() bool {
	return !w.HasTimedOut() && !w.IsSafeStateTriggered()
}

// TimeSinceLastFeed returns the time since the last feed and false if never fed
func (w *SoftwareWatchdog) TimeSinceLastFeed() (time.Duration, bool) {
	last := w.lastFeed.Load()
	if last == 0 {
		return 0, false
	}
	d := w.stamp() - last
	if d < 0 {
		d = 0
	}
	return time.Duration(d), true
}

// TimeSinceArm returns the time since the last Arm and false if not armed since reset
func (w *SoftwareWatchdog) TimeSinceArm() (time.Duration, bool) {
	start := w.startedAt.Load()
	if start == 0 {
		return 0, false
	}
	return time.Duration(w.stamp() - start), true
}

// Timeout returns the configured timeout
func (w *SoftwareWatchdog) Timeout() time.Duration {
	return w.cfg.Timeout
}

// Metrics returns a snapshot of the counters
func (w *SoftwareWatchdog) Metrics() Metrics {
	return w.metrics.snapshot()
}
