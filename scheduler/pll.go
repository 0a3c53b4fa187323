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

// Default PLL gains
const (
	DefaultPLLGain         = 0.01
	DefaultPLLIntegralGain = 0.1
)

// PLL corrects the scheduling period for drift with a PI controller.
// The estimated period never leaves +-10% of the target.
type PLL struct {
	target        time.Duration
	estimated     float64
	gain          float64
	integralGain  float64
	phaseErrorSum float64
	samples       uint64
}

// NewPLL creates a PLL with default gains
func NewPLL(target time.Duration) *PLL {
	return NewPLLWithGains(target, DefaultPLLGain, DefaultPLLIntegralGain)
}

// NewPLLWithGains creates a PLL with custom gains clamped to [0,1]
func NewPLLWithGains(target time.Duration, gain, integralGain float64) *PLL {
	target = max(target, 1)
	return &PLL{
		target:       target,
		estimated:    float64(target),
		gain:         clampFloat(gain, 0, 1),
		integralGain: clampFloat(integralGain, 0, 1),
	}
}

// Update feeds the measured interval since the previous tick and returns the next period
func (p *PLL) Update(actual time.Duration) time.Duration {
	periodError := float64(actual - p.target)
	p.phaseErrorSum += periodError
	p.samples++
	correction := p.gain*periodError + p.integralGain*p.gain*p.phaseErrorSum
	p.estimated = float64(p.target) - correction
	p.clamp()
	return time.Duration(p.estimated)
}

// SetTargetPeriod changes the target, keeping accumulated error
func (p *PLL) SetTargetPeriod(target time.Duration) {
	p.target = max(target, 1)
	p.clamp()
}

// TargetPeriod returns the target period
func (p *PLL) TargetPeriod() time.Duration {
	return p.target
}

// EstimatedPeriod returns the current corrected period
func (p *PLL) EstimatedPeriod() time.Duration {
	return time.Duration(p.estimated)
}

// PhaseError is the accumulated error in nanoseconds, positive when running slow
func (p *PLL) PhaseError() float64 {
	return p.phaseErrorSum
}

// AveragePhaseError is PhaseError per sample
func (p *PLL) AveragePhaseError() float64 {
	if p.samples == 0 {
		return 0
	}
	return p.phaseErrorSum / float64(p.samples)
}

// Reset clears the error and returns the estimate to the target
func (p *PLL) Reset() {
	p.estimated = float64(p.target)
	p.phaseErrorSum = 0
	p.samples = 0
}

// IsStable is true while the estimate is within 5% of the target
func (p *PLL) IsStable() bool {
	ratio := p.estimated / float64(p.target)
	return ratio >= 0.95 && ratio <= 1.05
}

func (p *PLL) clamp() {
	t := float64(p.target)
	p.estimated = clampFloat(p.estimated, t*0.9, t*1.1)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
