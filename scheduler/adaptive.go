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
	"time"
)

// AdaptiveConfig controls how the loop period follows load
type AdaptiveConfig struct {
	Enabled bool `yaml:"enabled"`

	MinPeriod time.Duration `yaml:"min_period"`
	MaxPeriod time.Duration `yaml:"max_period"`

	IncreaseStep time.Duration `yaml:"increase_step"`
	DecreaseStep time.Duration `yaml:"decrease_step"`

	// JitterRelaxThreshold and above grows the period, JitterTightenThreshold and below allows shrinking
	JitterRelaxThreshold   time.Duration `yaml:"jitter_relax_threshold"`
	JitterTightenThreshold time.Duration `yaml:"jitter_tighten_threshold"`

	ProcessingRelaxThreshold   time.Duration `yaml:"processing_relax_threshold"`
	ProcessingTightenThreshold time.Duration `yaml:"processing_tighten_threshold"`

	// ProcessingEMAAlpha is the weight of the newest processing time sample
	ProcessingEMAAlpha float64 `yaml:"processing_ema_alpha"`
}

// DefaultAdaptiveConfig returns the disabled default policy around a 1ms period
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Enabled:                    false,
		MinPeriod:                  900 * time.Microsecond,
		MaxPeriod:                  1100 * time.Microsecond,
		IncreaseStep:               5 * time.Microsecond,
		DecreaseStep:               2 * time.Microsecond,
		JitterRelaxThreshold:       200 * time.Microsecond,
		JitterTightenThreshold:     50 * time.Microsecond,
		ProcessingRelaxThreshold:   180 * time.Microsecond,
		ProcessingTightenThreshold: 80 * time.Microsecond,
		ProcessingEMAAlpha:         0.2,
	}
}

// EnabledAdaptiveConfig is DefaultAdaptiveConfig with adaptation turned on
func EnabledAdaptiveConfig() AdaptiveConfig {
	c := DefaultAdaptiveConfig()
	c.Enabled = true
	return c
}

// WithEnabled returns a copy with Enabled set
func (c AdaptiveConfig) WithEnabled(enabled bool) AdaptiveConfig {
	c.Enabled = enabled
	return c
}

// WithPeriodBounds returns a copy with new period bounds
func (c AdaptiveConfig) WithPeriodBounds(minPeriod, maxPeriod time.Duration) AdaptiveConfig {
	c.MinPeriod = minPeriod
	c.MaxPeriod = maxPeriod
	return c
}

// WithStepSizes returns a copy with new step sizes
func (c AdaptiveConfig) WithStepSizes(increase, decrease time.Duration) AdaptiveConfig {
	c.IncreaseStep = increase
	c.DecreaseStep = decrease
	return c
}

// WithJitterThresholds returns a copy with new jitter thresholds
func (c AdaptiveConfig) WithJitterThresholds(relax, tighten time.Duration) AdaptiveConfig {
	c.JitterRelaxThreshold = relax
	c.JitterTightenThreshold = tighten
	return c
}

// WithProcessingThresholds returns a copy with new processing time thresholds
func (c AdaptiveConfig) WithProcessingThresholds(relax, tighten time.Duration) AdaptiveConfig {
	c.ProcessingRelaxThreshold = relax
	c.ProcessingTightenThreshold = tighten
	return c
}

// WithEMAAlpha returns a copy with a new EMA weight
func (c AdaptiveConfig) WithEMAAlpha(alpha float64) AdaptiveConfig {
	c.ProcessingEMAAlpha = alpha
	return c
}

// Normalize repairs the config in place so IsValid holds. It is idempotent.
func (c *AdaptiveConfig) Normalize() {
	if c.MinPeriod > c.MaxPeriod {
		c.MinPeriod, c.MaxPeriod = c.MaxPeriod, c.MinPeriod
	}
	c.MinPeriod = max(c.MinPeriod, 1)
	c.MaxPeriod = max(c.MaxPeriod, c.MinPeriod)
	c.IncreaseStep = max(c.IncreaseStep, 1)
	c.DecreaseStep = max(c.DecreaseStep, 1)
	// thresholds below zero never match a measured value, floor them like the periods
	c.JitterRelaxThreshold = max(c.JitterRelaxThreshold, 0)
	c.ProcessingRelaxThreshold = max(c.ProcessingRelaxThreshold, 0)
	c.JitterTightenThreshold = max(min(c.JitterTightenThreshold, c.JitterRelaxThreshold), 0)
	c.ProcessingTightenThreshold = max(min(c.ProcessingTightenThreshold, c.ProcessingRelaxThreshold), 0)
	if !(c.ProcessingEMAAlpha >= 0.01) {
		// also catches NaN
		c.ProcessingEMAAlpha = 0.01
	}
	c.ProcessingEMAAlpha = min(c.ProcessingEMAAlpha, 1.0)
}

// IsValid checks the invariants Normalize establishes
func (c AdaptiveConfig) IsValid() bool {
	return c.MinPeriod > 0 &&
		c.MaxPeriod >= c.MinPeriod &&
		c.IncreaseStep > 0 &&
		c.DecreaseStep > 0 &&
		c.JitterTightenThreshold >= 0 &&
		c.ProcessingTightenThreshold >= 0 &&
		c.JitterTightenThreshold <= c.JitterRelaxThreshold &&
		c.ProcessingTightenThreshold <= c.ProcessingRelaxThreshold &&
		c.ProcessingEMAAlpha >= 0.01 &&
		c.ProcessingEMAAlpha <= 1.0
}

// AdaptiveState is a snapshot of the adaptive controller
type AdaptiveState struct {
	Enabled             bool
	TargetPeriod        time.Duration
	MinPeriod           time.Duration
	MaxPeriod           time.Duration
	LastProcessingTime  time.Duration
	ProcessingTimeEMA   time.Duration
	ProcessingTimeEMAUs float64
}

// DefaultAdaptiveState is the state of a fresh 1ms scheduler
func DefaultAdaptiveState() AdaptiveState {
	return AdaptiveState{
		TargetPeriod: PeriodOneKHz,
		MinPeriod:    900 * time.Microsecond,
		MaxPeriod:    1100 * time.Microsecond,
	}
}

// IsAtMax is true when the target period reached the upper bound
func (s AdaptiveState) IsAtMax() bool {
	return s.TargetPeriod >= s.MaxPeriod
}

// IsAtMin is true when the target period reached the lower bound
func (s AdaptiveState) IsAtMin() bool {
	return s.TargetPeriod <= s.MinPeriod
}

// PeriodFraction is where the target sits between the bounds, 0.5 when they are equal
func (s AdaptiveState) PeriodFraction() float64 {
	if s.MaxPeriod == s.MinPeriod {
		return 0.5
	}
	return float64(s.TargetPeriod-s.MinPeriod) / float64(s.MaxPeriod-s.MinPeriod)
}

// adaptive grows the period under load and shrinks it back when healthy
type adaptive struct {
	cfg            AdaptiveConfig
	basePeriod     time.Duration
	period         time.Duration
	lastProcessing time.Duration
	// processing time EMA in nanoseconds
	ema float64
}

func newAdaptive(basePeriod time.Duration) adaptive {
	return adaptive{
		cfg:        DefaultAdaptiveConfig(),
		basePeriod: basePeriod,
		period:     basePeriod,
	}
}

func (a *adaptive) configure(cfg AdaptiveConfig) {
	cfg.Normalize()
	a.cfg = cfg
	a.period = clampDuration(a.basePeriod, cfg.MinPeriod, cfg.MaxPeriod)
}

// target returns the period the PLL should lock to
func (a *adaptive) target() time.Duration {
	if a.cfg.Enabled {
		return a.period
	}
	return a.basePeriod
}

// update applies one tick of the relax/tighten policy and returns the new target period
func (a *adaptive) update(jitter time.Duration, missed bool) time.Duration {
	if !a.cfg.Enabled {
		a.period = a.basePeriod
		return a.basePeriod
	}

	jitterOverloaded := missed || jitter >= a.cfg.JitterRelaxThreshold
	jitterHealthy := !missed && jitter <= a.cfg.JitterTightenThreshold

	hasSignal := a.lastProcessing > 0
	processingOverloaded := hasSignal && a.ema >= float64(a.cfg.ProcessingRelaxThreshold)
	processingHealthy := hasSignal && a.ema <= float64(a.cfg.ProcessingTightenThreshold)

	switch {
	case jitterOverloaded || processingOverloaded:
		a.period += a.cfg.IncreaseStep
	case jitterHealthy && processingHealthy:
		a.period -= a.cfg.DecreaseStep
	}
	a.period = clampDuration(a.period, a.cfg.MinPeriod, a.cfg.MaxPeriod)
	return a.period
}

func (a *adaptive) recordProcessingTime(d time.Duration) {
	a.lastProcessing = d
	if a.ema <= emaEpsilon {
		a.ema = float64(d)
		return
	}
	alpha := a.cfg.ProcessingEMAAlpha
	a.ema = (1-alpha)*a.ema + alpha*float64(d)
}

func (a *adaptive) reset() {
	a.period = a.basePeriod
	a.lastProcessing = 0
	a.ema = 0
}

func (a *adaptive) state() AdaptiveState {
	return AdaptiveState{
		Enabled:             a.cfg.Enabled,
		TargetPeriod:        a.period,
		MinPeriod:           a.cfg.MinPeriod,
		MaxPeriod:           a.cfg.MaxPeriod,
		LastProcessingTime:  a.lastProcessing,
		ProcessingTimeEMA:   time.Duration(a.ema),
		ProcessingTimeEMAUs: a.ema / float64(time.Microsecond),
	}
}

const emaEpsilon = 1e-9

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
