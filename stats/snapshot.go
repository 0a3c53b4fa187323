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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Counter key prefixes
const (
	RTPrefix       = "wheel.rt."
	WatchdogPrefix = "wheel.watchdog."
	ProducerPrefix = "wheel.producer."
)

// Snapshot is the periodic report of the real-time loop
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Ticks     uint64    `json:"ticks"`

	JitterP50Ns       int64   `json:"jitter_p50_ns"`
	JitterP95Ns       int64   `json:"jitter_p95_ns"`
	JitterP99Ns       int64   `json:"jitter_p99_ns"`
	JitterMaxNs       int64   `json:"jitter_max_ns"`
	JitterRMSNs       int64   `json:"jitter_rms_ns"`
	MissedTickRate    float64 `json:"missed_tick_rate"`
	MeetsRequirements bool    `json:"meets_requirements"`
	RTSetupApplied    bool    `json:"rt_setup_applied"`
	SafeState         bool    `json:"safe_state"`

	AdaptiveEnabled  bool    `json:"adaptive_enabled"`
	TargetPeriodNs   int64   `json:"target_period_ns"`
	PeriodFraction   float64 `json:"period_fraction"`
	PLLPhaseErrorNs  float64 `json:"pll_phase_error_ns"`
	PLLStable        bool    `json:"pll_stable"`
	ProcessingEMANs  int64   `json:"processing_ema_ns"`
	ProcessingP50Ns  int64   `json:"processing_p50_ns"`
	ProcessingP99Ns  int64   `json:"processing_p99_ns"`
	ProcessingMaxNs  int64   `json:"processing_max_ns"`
	ProcessingMeanNs float64 `json:"processing_mean_ns"`
	ProcessingStdNs  float64 `json:"processing_stddev_ns"`

	// Watchdogs maps supervised component to watchdog status
	Watchdogs map[string]string `json:"watchdogs"`
}

func (s *Snapshot) clone() Snapshot {
	c := *s
	if s.Watchdogs != nil {
		c.Watchdogs = make(map[string]string, len(s.Watchdogs))
		for k, v := range s.Watchdogs {
			c.Watchdogs[k] = v
		}
	}
	return c
}

// Counters is various counters exported by the daemon
type Counters map[string]int64

// WithPrefix returns counters starting with prefix, prefix trimmed
func (c Counters) WithPrefix(prefix string) map[string]int64 {
	res := map[string]int64{}
	for k, v := range c {
		if strings.HasPrefix(k, prefix) {
			res[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return res
}

func fetch(url string, v any) error {
	c := http.Client{
		Timeout: time.Second * 2,
	}

	resp, err := c.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// FetchCounters returns counters map fetched from the url
func FetchCounters(url string) (Counters, error) {
	counters := make(Counters)
	err := fetch(fmt.Sprintf("%s/counters", url), &counters)
	return counters, err
}

// FetchSnapshot returns the loop report fetched from the url
func FetchSnapshot(url string) (*Snapshot, error) {
	s := &Snapshot{}
	if err := fetch(url, s); err != nil {
		return nil, err
	}
	return s, nil
}
