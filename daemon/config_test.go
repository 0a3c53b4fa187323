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

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openracing/rt/hid"
	"github.com/openracing/rt/scheduler"
	"github.com/openracing/rt/waveform"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, hid.KindHIDRaw, cfg.Device.Kind)
	require.Equal(t, scheduler.PeriodOneKHz, cfg.Scheduler.Period)
	require.False(t, cfg.Producer.Enabled)
	require.Equal(t, waveform.DefaultExpression, cfg.Producer.Expression)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "bad kind", modify: func(c *Config) { c.Device.Kind = "usb" }, errMsg: "kind must be either"},
		{name: "no path", modify: func(c *Config) { c.Device.Path = "" }, errMsg: "path must be specified"},
		{name: "null needs no path", modify: func(c *Config) { c.Device.Kind = hid.KindNull; c.Device.Path = "" }},
		{name: "serial baud", modify: func(c *Config) { c.Device.Kind = hid.KindSerial; c.Device.BaudRate = 0 }, errMsg: "baud_rate"},
		{name: "torque", modify: func(c *Config) { c.Device.MaxTorqueNm = 0 }, errMsg: "max_torque_nm"},
		{name: "stale ticks", modify: func(c *Config) { c.Stream.WatchdogMaxStaleTicks = 0 }, errMsg: "invalid stream config"},
		{name: "period", modify: func(c *Config) { c.Scheduler.Period = 0 }, errMsg: "period must be"},
		{name: "max jitter", modify: func(c *Config) { c.Scheduler.MaxJitter = 0 }, errMsg: "max_jitter"},
		{name: "jitter samples", modify: func(c *Config) { c.Scheduler.JitterSamples = 0 }, errMsg: "jitter_samples"},
		{name: "negative spin", modify: func(c *Config) { c.Scheduler.SpinThreshold = -time.Microsecond }, errMsg: "spin_threshold"},
		{name: "spin covers period", modify: func(c *Config) { c.Scheduler.SpinThreshold = c.Scheduler.Period }, errMsg: "spin_threshold"},
		{name: "no spin", modify: func(c *Config) { c.Scheduler.SpinThreshold = 0 }},
		{name: "rt priority", modify: func(c *Config) { c.Scheduler.RT.Priority = 100 }, errMsg: "rt priority"},
		{name: "watchdog too short", modify: func(c *Config) { c.Watchdog.RT = 5 * time.Millisecond }, errMsg: "rt: invalid watchdog timeout"},
		{name: "watchdog too long", modify: func(c *Config) { c.Watchdog.Device = time.Minute }, errMsg: "hid: invalid watchdog timeout"},
		{name: "producer interval", modify: func(c *Config) { c.Producer.Enabled = true; c.Producer.Interval = 0 }, errMsg: "invalid producer config"},
		{name: "producer expression", modify: func(c *Config) { c.Producer.Enabled = true; c.Producer.Expression = "speed * 2" }, errMsg: "unsupported variable"},
		{name: "disabled producer is not checked", modify: func(c *Config) { c.Producer.Expression = "speed * 2" }},
		{name: "monitoring port", modify: func(c *Config) { c.MonitoringPort = -1 }, errMsg: "monitoringport"},
		{name: "metrics interval", modify: func(c *Config) { c.MetricsInterval = 0 }, errMsg: "metrics_interval"},
		{name: "report interval", modify: func(c *Config) { c.ReportInterval = 0 }, errMsg: "report_interval"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestReadConfig(t *testing.T) {
	expected := DefaultConfig()
	expected.Device.Kind = hid.KindSerial
	expected.Device.Path = "/dev/ttyACM0"
	expected.Device.BaudRate = 921600
	expected.Stream.UserAbsLimit = 2560
	expected.Scheduler.Adaptive = scheduler.EnabledAdaptiveConfig()
	expected.Scheduler.RT.CPU = 3
	expected.Scheduler.SpinThreshold = 20 * time.Microsecond
	expected.Watchdog.Producer = 500 * time.Millisecond
	expected.Producer.Enabled = true
	expected.Producer.Expression = "clamp(4 * sin(2 * pi * t), -3, 3)"
	expected.MonitoringPort = 4281

	cfg := `device:
  kind: serial
  path: /dev/ttyACM0
  baud_rate: 921600
stream:
  user_abs_limit: 2560
scheduler:
  adaptive:
    enabled: true
  rt:
    cpu: 3
  spin_threshold: 20us
watchdog:
  producer: 500ms
producer:
  enabled: true
  expression: "clamp(4 * sin(2 * pi * t), -3, 3)"
monitoring_port: 4281
`
	cfgFile := filepath.Join(t.TempDir(), "wheeld.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o644))

	got, err := ReadConfig(cfgFile)
	require.NoError(t, err)
	require.Equal(t, expected, got)
	require.NoError(t, got.Validate())
}

func TestReadConfigErrors(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	cfgFile := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("device: [1, 2"), 0o644))
	_, err = ReadConfig(cfgFile)
	require.Error(t, err)
}

func TestPrepareConfig(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "wheeld.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("monitoring_port: 1234\ndevice:\n  path: /dev/hidraw3\n"), 0o644))

	// flags that were not set do not override the file
	cfg, err := PrepareConfig(cfgFile, "/dev/hidraw9", 4321, true, map[string]bool{})
	require.NoError(t, err)
	require.Equal(t, "/dev/hidraw3", cfg.Device.Path)
	require.Equal(t, 1234, cfg.MonitoringPort)
	require.False(t, cfg.Producer.Enabled)

	cfg, err = PrepareConfig(cfgFile, "/dev/hidraw9", 4321, true, map[string]bool{"device": true, "monitoringport": true, "producer": true})
	require.NoError(t, err)
	require.Equal(t, "/dev/hidraw9", cfg.Device.Path)
	require.Equal(t, 4321, cfg.MonitoringPort)
	require.True(t, cfg.Producer.Enabled)

	_, err = PrepareConfig(cfgFile, "", 0, false, map[string]bool{"device": true})
	require.ErrorContains(t, err, "validating config")

	_, err = PrepareConfig(filepath.Join(t.TempDir(), "missing.yaml"), "", 0, false, nil)
	require.ErrorContains(t, err, "reading config")
}
