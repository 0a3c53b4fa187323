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

package stats

import (
	"maps"
	"sync"
	"sync/atomic"
)

// Server is where the daemon publishes its counters and loop reports
type Server interface {
	// Reset zeroes all counters, keeping the keys
	Reset()
	SetCounter(key string, val int64)
	// SetCounters sets all given counters under one lock
	SetCounters(counters Counters)
	UpdateCounterBy(key string, count int64)
	SetSnapshot(snap *Snapshot)
}

// Stats keeps counters in memory. The latest loop report sits behind an atomic
// pointer so publishing it never waits for a reader.
type Stats struct {
	mu       sync.RWMutex
	counters Counters
	snapshot atomic.Pointer[Snapshot]
}

// NewStats returns empty Stats
func NewStats() *Stats {
	return &Stats{
		counters: Counters{},
	}
}

// UpdateCounterBy adds count to a counter
func (s *Stats) UpdateCounterBy(key string, count int64) {
	s.mu.Lock()
	s.counters[key] += count
	s.mu.Unlock()
}

// SetCounter sets a counter
func (s *Stats) SetCounter(key string, val int64) {
	s.mu.Lock()
	s.counters[key] = val
	s.mu.Unlock()
}

// SetCounters sets every counter of c
func (s *Stats) SetCounters(c Counters) {
	s.mu.Lock()
	maps.Copy(s.counters, c)
	s.mu.Unlock()
}

// GetCounters returns a copy of all counters
func (s *Stats) GetCounters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.counters)
}

// SetSnapshot stores a copy of the latest loop report
func (s *Stats) SetSnapshot(snap *Snapshot) {
	c := snap.clone()
	s.snapshot.Store(&c)
}

// GetSnapshot returns a copy of the latest loop report, zero before the first one
func (s *Stats) GetSnapshot() Snapshot {
	snap := s.snapshot.Load()
	if snap == nil {
		return Snapshot{}
	}
	return snap.clone()
}

// Reset zeroes all counters
func (s *Stats) Reset() {
	s.mu.Lock()
	for k := range s.counters {
		s.counters[k] = 0
	}
	s.mu.Unlock()
}
