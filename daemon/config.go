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
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/openracing/rt/hid"
	"github.com/openracing/rt/rtstream"
	"github.com/openracing/rt/scheduler"
	"github.com/openracing/rt/waveform"
	"github.com/openracing/rt/watchdog"
)

// DeviceConfig describes the wheelbase the torque reports are written to
type DeviceConfig struct {
	Kind        hid.Kind `yaml:"kind"`          // hidraw, serial or null
	Path        string   `yaml:"path"`          // device node, ignored for null
	BaudRate    int      `yaml:"baud_rate"`     // serial only
	MaxTorqueNm float64  `yaml:"max_torque_nm"` // symmetric report clamp
}

// Validate DeviceConfig is sane
func (c *DeviceConfig) Validate() error {
	switch c.Kind {
	case hid.KindHIDRaw, hid.KindSerial:
		if c.Path == "" {
			return fmt.Errorf("path must be specified for %s devices", c.Kind)
		}
	case hid.KindNull:
	default:
		return fmt.Errorf("kind must be either %q, %q or %q", hid.KindHIDRaw, hid.KindSerial, hid.KindNull)
	}
	if c.Kind == hid.KindSerial && c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive")
	}
	if c.MaxTorqueNm <= 0 {
		return fmt.Errorf("max_torque_nm must be positive")
	}
	return nil
}

// SchedulerConfig describes the loop timing
type SchedulerConfig struct {
	Period        time.Duration            `yaml:"period"`
	MaxJitter     time.Duration            `yaml:"max_jitter"`
	JitterSamples int                      `yaml:"jitter_samples"`
	SpinThreshold time.Duration            `yaml:"spin_threshold"` // busy wait before each deadline
	RealTime      bool                     `yaml:"real_time"` // apply RT setup to the loop thread
	RT            scheduler.RTSetup        `yaml:"rt"`
	Adaptive      scheduler.AdaptiveConfig `yaml:"adaptive"`
}

// Validate SchedulerConfig is sane
func (c *SchedulerConfig) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("period must be greater than zero")
	}
	if c.MaxJitter <= 0 {
		return fmt.Errorf("max_jitter must be greater than zero")
	}
	if c.JitterSamples <= 0 {
		return fmt.Errorf("jitter_samples must be greater than zero")
	}
	if c.SpinThreshold < 0 || c.SpinThreshold >= c.Period {
		return fmt.Errorf("spin_threshold must be within [0, period)")
	}
	if err := c.RT.Validate(); err != nil {
		return err
	}
	return nil
}

// WatchdogConfig has the liveness timeout of every supervised component
type WatchdogConfig struct {
	RT       time.Duration `yaml:"rt"`
	Device   time.Duration `yaml:"device"`
	Producer time.Duration `yaml:"producer"`
}

// Validate WatchdogConfig is sane
func (c *WatchdogConfig) Validate() error {
	for name, timeout := range c.timeouts() {
		if err := (watchdog.Config{Timeout: timeout}).Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *WatchdogConfig) timeouts() map[string]time.Duration {
	return map[string]time.Duration{
		ComponentRT:       c.RT,
		ComponentDevice:   c.Device,
		ComponentProducer: c.Producer,
	}
}

// ProducerConfig describes the built-in test signal producer
type ProducerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Expression string        `yaml:"expression"`
	Interval   time.Duration `yaml:"interval"`
	Flags      uint8         `yaml:"flags"`
}

// Validate ProducerConfig is sane
func (c *ProducerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}
	if _, err := waveform.New(c.Expression); err != nil {
		return err
	}
	return nil
}

// Config specifies the daemon run options
type Config struct {
	Device          DeviceConfig    `yaml:"device"`
	Stream          rtstream.Config `yaml:"stream"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	Watchdog        WatchdogConfig  `yaml:"watchdog"`
	Producer        ProducerConfig  `yaml:"producer"`
	MonitoringPort  int             `yaml:"monitoring_port"`
	MetricsInterval time.Duration   `yaml:"metrics_interval"`
	ReportInterval  time.Duration   `yaml:"report_interval"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Kind:        hid.KindHIDRaw,
			Path:        "/dev/hidraw0",
			BaudRate:    hid.DefaultBaudRate,
			MaxTorqueNm: 20,
		},
		Stream: rtstream.DefaultConfig(),
		Scheduler: SchedulerConfig{
			Period:        scheduler.PeriodOneKHz,
			MaxJitter:     scheduler.DefaultMaxJitter,
			JitterSamples: scheduler.DefaultJitterSamples,
			SpinThreshold: scheduler.DefaultSpinThreshold,
			RealTime:      true,
			RT:            scheduler.DefaultRTSetup(),
			Adaptive:      scheduler.DefaultAdaptiveConfig(),
		},
		Watchdog: WatchdogConfig{
			RT:       watchdog.DefaultTimeout,
			Device:   250 * time.Millisecond,
			Producer: watchdog.DefaultTimeout,
		},
		Producer: ProducerConfig{
			Expression: waveform.DefaultExpression,
			Interval:   waveform.DefaultInterval,
		},
		MonitoringPort:  4280,
		MetricsInterval: time.Minute,
		ReportInterval:  time.Second,
	}
}

// Validate config is sane
func (c *Config) Validate() error {
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("invalid device config: %w", err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("invalid stream config: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}
	if err := c.Watchdog.Validate(); err != nil {
		return fmt.Errorf("invalid watchdog config: %w", err)
	}
	if err := c.Producer.Validate(); err != nil {
		return fmt.Errorf("invalid producer config: %w", err)
	}
	if c.MonitoringPort < 0 {
		return fmt.Errorf("monitoringport must be 0 or positive")
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics_interval must be greater than zero")
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("report_interval must be greater than zero")
	}
	if !c.Scheduler.Adaptive.IsValid() {
		log.Warningf("adaptive scheduling config %+v is out of range and will be normalized", c.Scheduler.Adaptive)
	}
	return nil
}

// ReadConfig reads config from the file
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(cData, &c)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// PrepareConfig prepares final version of config based on defaults, CLI flags and on-disk config, and validates resulting config
func PrepareConfig(cfgPath string, device string, monitoringPort int, producer bool, setFlags map[string]bool) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	warn := func(name string) {
		log.Warningf("overriding %s from CLI flag", name)
	}
	if cfgPath != "" {
		cfg, err = ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	}
	if setFlags["device"] {
		warn("device")
		cfg.Device.Path = device
	}
	if setFlags["monitoringport"] {
		warn("monitoringPort")
		cfg.MonitoringPort = monitoringPort
	}
	if setFlags["producer"] {
		warn("producer")
		cfg.Producer.Enabled = producer
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	log.Debugf("config: %+v", cfg)
	return cfg, nil
}
