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
	"math"
	"time"
)

// DefaultJitterSamples is the ring size of NewJitterMetrics(DefaultJitterSamples)
const DefaultJitterSamples = 10000

// Timing requirements of a 1kHz force feedback loop
const (
	MaxP99Jitter      = 250 * time.Microsecond
	MaxMissedTickRate = 0.00001
)

// JitterMetrics tracks tick jitter over a fixed-size ring of recent samples.
// It has a single writer; percentile queries reuse an internal scratch buffer so
// they must not run concurrently with RecordTick. Use Clone or CopyTo for cross-goroutine reporting.
type JitterMetrics struct {
	TotalTicks  uint64
	MissedTicks uint64
	MaxJitter   time.Duration
	LastJitter  time.Duration

	sumSquared float64
	samples    []time.Duration
	capacity   int
	next       int
	scratch    []time.Duration
}

// NewJitterMetrics allocates a tracker keeping up to capacity samples.
// Capacity 0 still counts ticks but percentiles are always 0.
func NewJitterMetrics(capacity int) *JitterMetrics {
	if capacity < 0 {
		capacity = 0
	}
	return &JitterMetrics{
		samples:  make([]time.Duration, 0, capacity),
		capacity: capacity,
		scratch:  make([]time.Duration, 0, capacity),
	}
}

// RecordTick accounts one tick
func (m *JitterMetrics) RecordTick(jitter time.Duration, missed bool) {
	if jitter < 0 {
		jitter = -jitter
	}
	m.TotalTicks++
	if missed {
		m.MissedTicks++
	}
	if jitter > m.MaxJitter {
		m.MaxJitter = jitter
	}
	j := float64(jitter)
	m.sumSquared += j * j
	m.LastJitter = jitter

	if m.capacity == 0 {
		return
	}
	if len(m.samples) < m.capacity {
		m.samples = append(m.samples, jitter)
		if len(m.samples) == m.capacity {
			m.next = 0
		}
		return
	}
	m.samples[m.next] = jitter
	m.next = (m.next + 1) % m.capacity
}

// P50 jitter
func (m *JitterMetrics) P50() time.Duration {
	return m.Percentile(0.50)
}

// P95 jitter
func (m *JitterMetrics) P95() time.Duration {
	return m.Percentile(0.95)
}

// P99 jitter
func (m *JitterMetrics) P99() time.Duration {
	return m.Percentile(0.99)
}

// Percentile returns the p-quantile (p in [0,1]) of the sampled jitter, 0 without samples
func (m *JitterMetrics) Percentile(p float64) time.Duration {
	n := len(m.samples)
	if n == 0 {
		return 0
	}
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	m.scratch = append(m.scratch[:0], m.samples...)
	idx := int(float64(n) * p)
	if idx > n-1 {
		idx = n - 1
	}
	return selectNth(m.scratch, idx)
}

// Variance is the mean of squared jitter over all ticks.
// It is not centered: with jitter always >= 0 this is the squared RMS, used as a cheap upper bound.
func (m *JitterMetrics) Variance() float64 {
	if m.TotalTicks == 0 {
		return 0
	}
	return m.sumSquared / float64(m.TotalTicks)
}

// StdDev is the square root of Variance, i.e. the RMS jitter
func (m *JitterMetrics) StdDev() time.Duration {
	return time.Duration(math.Sqrt(m.Variance()))
}

// AverageJitter approximates the mean with the RMS, which is never below the true mean
func (m *JitterMetrics) AverageJitter() time.Duration {
	if m.TotalTicks == 0 {
		return 0
	}
	return m.StdDev()
}

// MissedTickRate is missed/total, 0 before the first tick
func (m *JitterMetrics) MissedTickRate() float64 {
	if m.TotalTicks == 0 {
		return 0
	}
	return float64(m.MissedTicks) / float64(m.TotalTicks)
}

// MeetsRequirements checks p99 <= 250us and missed rate <= 0.001%
func (m *JitterMetrics) MeetsRequirements() bool {
	return m.MeetsCustomRequirements(MaxP99Jitter, MaxMissedTickRate)
}

// MeetsCustomRequirements checks p99 and missed rate against caller thresholds
func (m *JitterMetrics) MeetsCustomRequirements(maxP99 time.Duration, maxMissedRate float64) bool {
	return m.P99() <= maxP99 && m.MissedTickRate() <= maxMissedRate
}

// Reset clears counters and samples, keeping the buffers
func (m *JitterMetrics) Reset() {
	m.TotalTicks = 0
	m.MissedTicks = 0
	m.MaxJitter = 0
	m.LastJitter = 0
	m.sumSquared = 0
	m.samples = m.samples[:0]
	m.scratch = m.scratch[:0]
	m.next = 0
}

// SampleCount is the number of samples in the ring
func (m *JitterMetrics) SampleCount() int {
	return len(m.samples)
}

// Capacity is the ring size
func (m *JitterMetrics) Capacity() int {
	return m.capacity
}

// Clone returns an independent copy. Allocates.
func (m *JitterMetrics) Clone() *JitterMetrics {
	c := &JitterMetrics{}
	m.CopyTo(c)
	return c
}

// CopyTo makes dst an independent copy of m. Buffers of dst are reused when
// large enough, so copying between trackers of equal capacity does not allocate.
func (m *JitterMetrics) CopyTo(dst *JitterMetrics) {
	samples, scratch := dst.samples[:0], dst.scratch[:0]
	if cap(samples) < m.capacity {
		samples = make([]time.Duration, 0, m.capacity)
	}
	if cap(scratch) < m.capacity {
		scratch = make([]time.Duration, 0, m.capacity)
	}
	*dst = *m
	dst.samples = append(samples, m.samples...)
	dst.scratch = scratch
}

// selectNth partially orders a so that a[k] is the k-th smallest element and returns it.
// Hoare partitioning with a median of three pivot, expected O(n), no allocation.
func selectNth(a []time.Duration, k int) time.Duration {
	lo, hi := 0, len(a)-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if a[mid] < a[lo] {
			a[mid], a[lo] = a[lo], a[mid]
		}
		if a[hi] < a[lo] {
			a[hi], a[lo] = a[lo], a[hi]
		}
		if a[hi] < a[mid] {
			a[hi], a[mid] = a[mid], a[hi]
		}
		pivot := a[mid]
		i, j := lo, hi
		for i <= j {
			for a[i] < pivot {
				i++
			}
			for a[j] > pivot {
				j--
			}
			if i <= j {
				a[i], a[j] = a[j], a[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return a[k]
		}
	}
	return a[k]
}
