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
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// DefaultLoopPeriod is the tick period GC pauses are compared against when none is set
const DefaultLoopPeriod = time.Millisecond

// gcPauseRing is the size of runtime.MemStats.PauseNs
const gcPauseRing uint32 = 256

// SysStats samples what steals time from a real-time loop: preemption by the
// scheduler, page faults that mlockall should have prevented and GC pauses.
// Totals are exported as they are, deltas are relative to the previous call.
type SysStats struct {
	// LoopPeriod is the loop tick period, GC pauses longer than it cost at least one tick
	LoopPeriod time.Duration

	proc *process.Process
	prev *sysSample
}

// sysSample is the set of monotonic counters deltas are computed from
type sysSample struct {
	involuntarySwitches uint64
	majorFaults         uint64
	minorFaults         uint64
	numGC               uint32
	pauseTotalNs        uint64
	mallocs             uint64
}

// perSecond returns the growth of a counter per second, 0 when it went backwards
func perSecond(cur, prev uint64, interval time.Duration) uint64 {
	if cur < prev || interval <= 0 {
		return 0
	}
	return uint64(float64(cur-prev) / interval.Seconds())
}

// gcPauses returns how many GC cycles after sinceGC paused longer than period and
// the longest pause among them. Only the last 256 cycles are kept by the runtime.
func gcPauses(m *runtime.MemStats, sinceGC uint32, period time.Duration) (over uint64, longest uint64) {
	if m.NumGC-sinceGC > gcPauseRing {
		sinceGC = m.NumGC - gcPauseRing
	}
	for gc := sinceGC; gc < m.NumGC; gc++ {
		pause := m.PauseNs[gc%gcPauseRing]
		longest = max(longest, pause)
		if time.Duration(pause) > period {
			over++
		}
	}
	return over, longest
}

func (s *SysStats) self() (*process.Process, error) {
	if s.proc != nil {
		return s.proc, nil
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	s.proc = proc
	return proc, nil
}

// CollectRuntimeStats gathers process and Go runtime stats relevant to loop timing
func (s *SysStats) CollectRuntimeStats(interval time.Duration) (map[string]uint64, error) {
	proc, err := s.self()
	if err != nil {
		return nil, err
	}
	period := s.LoopPeriod
	if period <= 0 {
		period = DefaultLoopPeriod
	}

	stats := map[string]uint64{}
	cur := &sysSample{}

	if created, err := proc.CreateTime(); err == nil {
		stats["process.uptime_s"] = uint64(time.Since(time.UnixMilli(created)).Seconds())
	}
	if pct, err := proc.Percent(0); err == nil {
		stats["process.cpu_pct"] = uint64(pct)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats["process.rss"] = mem.RSS
		// swapped out pages fault on access no matter what mlockall promised
		stats["process.swap"] = mem.Swap
	}
	if n, err := proc.NumThreads(); err == nil {
		stats["process.threads"] = uint64(n)
	}
	if cs, err := proc.NumCtxSwitches(); err == nil {
		cur.involuntarySwitches = uint64(cs.Involuntary)
		stats["process.ctx_switches.voluntary"] = uint64(cs.Voluntary)
		stats["process.ctx_switches.involuntary"] = cur.involuntarySwitches
	}
	if pf, err := proc.PageFaults(); err == nil {
		cur.majorFaults = pf.MajorFaults
		cur.minorFaults = pf.MinorFaults
		stats["process.page_faults.major"] = pf.MajorFaults
		stats["process.page_faults.minor"] = pf.MinorFaults
	}

	m := &runtime.MemStats{}
	runtime.ReadMemStats(m)
	cur.numGC = m.NumGC
	cur.pauseTotalNs = m.PauseTotalNs
	cur.mallocs = m.Mallocs
	stats["runtime.goroutines"] = uint64(runtime.NumGoroutine())
	stats["runtime.mem.heap_alloc"] = m.HeapAlloc
	stats["runtime.mem.sys"] = m.Sys
	stats["runtime.gc.count"] = uint64(m.NumGC)
	stats["runtime.gc.pause_total_ns"] = m.PauseTotalNs

	if prev := s.prev; prev != nil {
		stats["process.ctx_switches.involuntary.rate"] = perSecond(cur.involuntarySwitches, prev.involuntarySwitches, interval)
		stats["process.page_faults.major.delta"] = cur.majorFaults - min(prev.majorFaults, cur.majorFaults)
		stats["process.page_faults.minor.rate"] = perSecond(cur.minorFaults, prev.minorFaults, interval)
		stats["runtime.mem.mallocs.rate"] = perSecond(cur.mallocs, prev.mallocs, interval)
		stats["runtime.gc.delta"] = uint64(cur.numGC - min(prev.numGC, cur.numGC))
		stats["runtime.gc.pause_ns.delta"] = cur.pauseTotalNs - min(prev.pauseTotalNs, cur.pauseTotalNs)
		over, longest := gcPauses(m, prev.numGC, period)
		stats["runtime.gc.pauses_over_period"] = over
		stats["runtime.gc.pause_max_ns"] = longest
	}
	s.prev = cur
	return stats, nil
}
