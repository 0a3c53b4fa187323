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
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"
)

var expectedTotalKeys = []string{
	"process.uptime_s",
	"process.rss",
	"process.ctx_switches.voluntary",
	"process.ctx_switches.involuntary",
	"process.page_faults.major",
	"process.page_faults.minor",
	"runtime.goroutines",
	"runtime.mem.heap_alloc",
	"runtime.gc.count",
	"runtime.gc.pause_total_ns",
}

var expectedDeltaKeys = []string{
	"process.ctx_switches.involuntary.rate",
	"process.page_faults.major.delta",
	"process.page_faults.minor.rate",
	"runtime.mem.mallocs.rate",
	"runtime.gc.delta",
	"runtime.gc.pause_ns.delta",
	"runtime.gc.pauses_over_period",
	"runtime.gc.pause_max_ns",
}

func TestSysStats(t *testing.T) {
	stats := SysStats{}
	interval := time.Second

	collected, err := stats.CollectRuntimeStats(interval)
	require.NoError(t, err)
	keys := maps.Keys(collected)
	require.Subset(t, keys, expectedTotalKeys)
	for _, k := range expectedDeltaKeys {
		require.NotContains(t, keys, k)
	}

	// deltas need a previous sample
	runtime.GC()
	collected, err = stats.CollectRuntimeStats(interval)
	require.NoError(t, err)
	keys = maps.Keys(collected)
	require.Subset(t, keys, append(expectedTotalKeys, expectedDeltaKeys...))
	require.GreaterOrEqual(t, collected["runtime.gc.delta"], uint64(1))
	require.Positive(t, collected["runtime.gc.pause_max_ns"])
}

func TestPerSecond(t *testing.T) {
	require.Equal(t, uint64(4), perSecond(21, 1, 5*time.Second))
	require.Equal(t, uint64(200), perSecond(30, 10, 100*time.Millisecond))
	// counters going backwards are not a rate
	require.Equal(t, uint64(0), perSecond(1, 20, time.Second))
	require.Equal(t, uint64(0), perSecond(20, 1, 0))
}

func TestGCPauses(t *testing.T) {
	m := &runtime.MemStats{NumGC: 5}
	m.PauseNs[0] = uint64(100 * time.Microsecond)
	m.PauseNs[1] = uint64(3 * time.Millisecond)
	m.PauseNs[2] = uint64(200 * time.Microsecond)
	m.PauseNs[3] = uint64(1500 * time.Microsecond)
	m.PauseNs[4] = uint64(900 * time.Microsecond)

	over, longest := gcPauses(m, 0, time.Millisecond)
	require.Equal(t, uint64(2), over)
	require.Equal(t, uint64(3*time.Millisecond), longest)

	// only cycles after the previous sample count
	over, longest = gcPauses(m, 2, time.Millisecond)
	require.Equal(t, uint64(1), over)
	require.Equal(t, uint64(1500*time.Microsecond), longest)

	over, longest = gcPauses(m, 5, time.Millisecond)
	require.Zero(t, over)
	require.Zero(t, longest)
}

func TestGCPausesRingWraps(t *testing.T) {
	m := &runtime.MemStats{NumGC: 1000}
	for i := range m.PauseNs {
		m.PauseNs[i] = uint64(2 * time.Millisecond)
	}
	// older cycles are gone from the ring, at most 256 are counted
	over, _ := gcPauses(m, 10, time.Millisecond)
	require.Equal(t, uint64(gcPauseRing), over)
}
