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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlattenKey(t *testing.T) {
	require.Equal(t, "wheel_rt_ticks", flattenKey("wheel.rt.ticks"))
	require.Equal(t, "a_b_c_d_e_f", flattenKey("a b-c=d/e.f"))
}

func TestPrometheusExporterScrape(t *testing.T) {
	source := NewJSONStats()
	source.SetCounter("wheel.rt.ticks", 1000)
	source.SetCounter("wheel.watchdog.rt.feeds", 999)
	ts := httptest.NewServer(source.Handler())
	defer ts.Close()

	e := NewPrometheusExporter(0, 0, time.Second)
	e.sourceURL = ts.URL
	require.NoError(t, e.Scrape())
	// second scrape hits the already registered path
	source.SetCounter("wheel.rt.ticks", 2000)
	require.NoError(t, e.Scrape())

	ms := httptest.NewServer(e.Handler())
	defer ms.Close()
	resp, err := http.Get(ms.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), fmt.Sprintf("wheel_rt_ticks %d", 2000))
	require.Contains(t, string(b), "wheel_watchdog_rt_feeds 999")
}

func TestPrometheusExporterScrapeError(t *testing.T) {
	e := NewPrometheusExporter(0, 0, time.Second)
	e.sourceURL = "http://localhost:1"
	require.Error(t, e.Scrape())
}
