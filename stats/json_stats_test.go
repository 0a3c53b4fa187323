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
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func TestJSONStats(t *testing.T) {
	stats := NewJSONStats()
	port, err := getFreePort()
	require.Nil(t, err, "Failed to allocate port")
	url := fmt.Sprintf("http://localhost:%d", port)
	go stats.Start(port, time.Second)
	time.Sleep(time.Second)

	stats.SetCounter(RTPrefix+"ticks", 1000)
	snap := &Snapshot{
		Ticks:             1000,
		JitterP99Ns:       120000,
		MeetsRequirements: true,
		Watchdogs:         map[string]string{"rt": "Armed", "hid": "Armed"},
	}
	stats.SetSnapshot(snap)

	counters, err := FetchCounters(url)
	require.NoError(t, err)
	require.Equal(t, int64(1000), counters["wheel.rt.ticks"])

	got, err := FetchSnapshot(url)
	require.NoError(t, err)
	require.Equal(t, snap.Ticks, got.Ticks)
	require.Equal(t, snap.JitterP99Ns, got.JitterP99Ns)
	require.True(t, got.MeetsRequirements)
	require.Equal(t, snap.Watchdogs, got.Watchdogs)
}

func TestHeaders(t *testing.T) {
	stats := NewJSONStats()
	ts := httptest.NewServer(stats.Handler())
	defer ts.Close()

	c := http.Client{
		Timeout: time.Second * 2,
	}

	for _, path := range []string{"/", "/counters"} {
		resp, err := c.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, applicationJSON, resp.Header.Get(contentType))
	}
}

func TestCollectSysStats(t *testing.T) {
	stats := NewJSONStats()
	stats.interval = time.Second
	stats.SetLoopPeriod(time.Millisecond)
	require.NoError(t, stats.CollectSysStats())
	require.NoError(t, stats.CollectSysStats())
	counters := stats.GetCounters()
	require.Contains(t, counters, "runtime.goroutines")
	require.Contains(t, counters, "process.uptime_s")
	require.Contains(t, counters, "process.page_faults.major.delta")
	require.Contains(t, counters, "runtime.gc.pauses_over_period")
}

func TestFetchCountersBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := FetchCounters(ts.URL)
	require.Error(t, err)
	_, err = FetchSnapshot(ts.URL)
	require.Error(t, err)
}
