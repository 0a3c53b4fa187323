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

package watchdog

import (
	"math"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of watchdog counters
type Metrics struct {
	FeedCount           uint64
	ArmCount            uint64
	TimeoutCount        uint64
	SafeStateCount      uint64
	ConsecutiveFailures uint32
	MaxFeedInterval     time.Duration
	// LastFeed is the time of the last feed relative to watchdog creation, 0 if never fed
	LastFeed time.Duration
}

// SuccessRate is the share of successful feeds, 1 when nothing was fed yet
func (m Metrics) SuccessRate() float64 {
	total := m.FeedCount + uint64(m.ConsecutiveFailures)
	if total == 0 {
		return 1.0
	}
	return float64(m.FeedCount) / float64(total)
}

// metrics keeps every counter in its own atomic so any goroutine may record
type metrics struct {
	feedCount           atomic.Uint64
	armCount            atomic.Uint64
	timeoutCount        atomic.Uint64
	safeStateCount      atomic.Uint64
	consecutiveFailures atomic.Uint32
	maxFeedInterval     atomic.Int64
	lastFeed            atomic.Int64
}

func (m *metrics) recordFeed(ts int64) {
	prev := m.lastFeed.Swap(ts)
	if prev > 0 && ts > prev {
		interval := ts - prev
		for {
			cur := m.maxFeedInterval.Load()
			if interval <= cur || m.maxFeedInterval.CompareAndSwap(cur, interval) {
				break
			}
		}
	}
	m.feedCount.Add(1)
	m.consecutiveFailures.Store(0)
}

func (m *metrics) recordFailure() {
	for {
		cur := m.consecutiveFailures.Load()
		if cur == math.MaxUint32 || m.consecutiveFailures.CompareAndSwap(cur, cur+1) {
			return
		}
	}
}

func (m *metrics) recordArm() {
	m.armCount.Add(1)
}

func (m *metrics) recordTimeout() {
	m.timeoutCount.Add(1)
}

func (m *metrics) recordSafeState() {
	m.safeStateCount.Add(1)
}

func (m *metrics) reset() {
	m.feedCount.Store(0)
	m.armCount.Store(0)
	m.timeoutCount.Store(0)
	m.safeStateCount.Store(0)
	m.consecutiveFailures.Store(0)
	m.maxFeedInterval.Store(0)
	m.lastFeed.Store(0)
}

func (m *metrics) snapshot() Metrics {
	return Metrics{
		FeedCount:           m.feedCount.Load(),
		ArmCount:            m.armCount.Load(),
		TimeoutCount:        m.timeoutCount.Load(),
		SafeStateCount:      m.safeStateCount.Load(),
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		MaxFeedInterval:     time.Duration(m.maxFeedInterval.Load()),
		LastFeed:            time.Duration(m.lastFeed.Load()),
	}
}
